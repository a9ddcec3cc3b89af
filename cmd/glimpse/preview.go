package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/metalagman/glimpse/internal/draft"
	"github.com/metalagman/glimpse/internal/negotiate"
)

func previewCmd() *cobra.Command {
	var goal, constraints string
	var commit bool
	var essenceOnly bool
	cmd := &cobra.Command{
		Use:          "preview <text>",
		Short:        "Run one preview attempt for a draft",
		Long:         "Run a single negotiation attempt and print the sample, essence and any detected delta. With --commit, an aligned result is committed to the journal.",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if essenceOnly {
				cfg.EssenceOnly = true
			}
			engine, closeFn, err := newEngine(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			d := draft.Draft{Text: args[0], Goal: goal, Constraints: constraints}
			res, st, err := engine.Preview(cmd.Context(), d)
			if err != nil {
				return err
			}

			printResult(res, st)

			if commit && st == draft.StatusAligned {
				rec, err := engine.Commit(cmd.Context(), d, res)
				if err != nil {
					return err
				}
				fmt.Printf("committed %s\n", rec.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&goal, "goal", "", "goal anchor")
	cmd.Flags().StringVar(&constraints, "constraints", "", "constraints anchor")
	cmd.Flags().BoolVar(&commit, "commit", false, "commit if aligned")
	cmd.Flags().BoolVar(&essenceOnly, "essence-only", false, "show essence only, suppress the sample")
	return cmd
}

var (
	alignedLineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	deltaLineStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	essenceLineStyle = lipgloss.NewStyle().Faint(true)
)

func printResult(res draft.PreviewResult, st draft.AttemptStatus) {
	switch st {
	case draft.StatusAligned:
		fmt.Println(alignedLineStyle.Render(negotiate.LineAligned))
	case draft.StatusNotAligned:
		fmt.Println(deltaLineStyle.Render(negotiate.LineNotAligned))
	case draft.StatusStale:
		fmt.Println(essenceLineStyle.Render(negotiate.LineStale))
		return
	case draft.StatusRedial:
		fmt.Println(essenceLineStyle.Render(negotiate.LineRedial))
		return
	}

	if res.Sample != "" {
		if out, err := glamour.Render(res.Sample, "dark"); err == nil {
			fmt.Print(out)
		} else {
			fmt.Println(res.Sample)
		}
	}
	if res.Essence != "" {
		fmt.Println(essenceLineStyle.Render(res.Essence))
	}
	if res.Delta != "" {
		fmt.Println(deltaLineStyle.Render("Δ " + res.Delta))
	}
	fmt.Println(essenceLineStyle.Render(fmt.Sprintf("(%s)", res.Elapsed.Round(time.Millisecond))))
}
