package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func commitsCmd() *cobra.Command {
	var limit int
	var asYAML bool
	cmd := &cobra.Command{
		Use:          "commits",
		Short:        "List committed records from the journal",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, closeFn, err := openJournal(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			recs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if asYAML {
				return yaml.NewEncoder(os.Stdout).Encode(recs)
			}
			for _, rec := range recs {
				fmt.Printf("%s  %s  %s\n", rec.CommittedAt.Format("2006-01-02 15:04:05"), rec.ID, rec.Draft.Text)
			}
			if len(recs) == 0 {
				fmt.Println("no commits yet")
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum records to list")
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "dump full records as YAML")
	return cmd
}
