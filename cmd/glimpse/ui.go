package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/metalagman/glimpse/internal/config"
	"github.com/metalagman/glimpse/internal/db"
	"github.com/metalagman/glimpse/internal/web"
)

func uiCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:          "ui",
		Short:        "Serve the read-only commit journal web UI",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			app := fx.New(
				fx.NopLogger,
				fx.Supply(cfg),
				fx.Provide(
					newJournalStore,
					func(store *db.Store) web.Journal { return store },
					web.NewServer,
					func(srv *web.Server) *http.Server {
						return &http.Server{
							Addr:              listen,
							Handler:           srv.Routes(),
							ReadHeaderTimeout: 5 * time.Second,
						}
					},
				),
				fx.Invoke(serveHTTP),
			)
			app.Run()
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:8686", "address to listen on")
	return cmd
}

func newJournalStore(lc fx.Lifecycle, cfg config.Config) (*db.Store, error) {
	store, closeFn, err := openJournal(cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closeFn()
			return nil
		},
	})
	return store, nil
}

func serveHTTP(lc fx.Lifecycle, srv *http.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info().Str("addr", ln.Addr().String()).Msg("journal ui listening")
			go func() {
				if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
					log.Error().Err(err).Msg("journal ui server")
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
