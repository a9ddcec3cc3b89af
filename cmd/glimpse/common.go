package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/metalagman/glimpse/internal/config"
	"github.com/metalagman/glimpse/internal/db"
	"github.com/metalagman/glimpse/internal/negotiate"
	"github.com/metalagman/glimpse/internal/privacy"
	"github.com/metalagman/glimpse/internal/sampler"
)

func loadConfig() (config.Config, error) {
	path := viper.GetString("config")
	if path == "" {
		path = filepath.Join(".glimpse", "config.json")
	}
	return config.Load(path)
}

// openJournal opens the commit journal, creating its directory on first
// use.
func openJournal(cfg config.Config) (*db.Store, func(), error) {
	path := cfg.Journal.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	database, err := db.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return db.NewStore(database), func() { _ = database.Close() }, nil
}

// newEngine wires a full engine: sampler per config, journal as the
// commit sink behind the privacy guard.
func newEngine(ctx context.Context, cfg config.Config) (*negotiate.Engine, func(), error) {
	store, closeFn, err := openJournal(cfg)
	if err != nil {
		return nil, nil, err
	}
	s, err := sampler.New(ctx, cfg.Sampler)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	engine := negotiate.New(negotiate.Config{
		Thresholds:  cfg.Thresholds(),
		Debounce:    cfg.Debounce,
		EssenceOnly: cfg.EssenceOnly,
		MaxAttempts: cfg.MaxAttempts,
	}, s, privacy.NewGuard(store))
	return engine, closeFn, nil
}
