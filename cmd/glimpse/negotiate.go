package main

import (
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/metalagman/glimpse/internal/logging"
	"github.com/metalagman/glimpse/internal/tui"
)

func negotiateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "negotiate",
		Short:        "Interactively negotiate a draft before committing it",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			engine, closeFn, err := newEngine(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			// Keep engine logging off the alternate screen.
			logging.Silence(io.Discard)

			p := tea.NewProgram(tui.New(engine), tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
	return cmd
}
