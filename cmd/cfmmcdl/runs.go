package main

import (
	"os"

	"github.com/spf13/cobra"

	"cfmmcdl/internal/ledger"
	"cfmmcdl/pkg/ui"
)

var runsLimit int

// runsCmd represents the runs command
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent batch runs from the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		summaries, err := ledger.ReadSummaries(cfg.Ledger.Path, runsLimit)
		if err != nil {
			return err
		}
		if len(summaries) == 0 {
			ui.PrintWarning("no runs recorded yet")
			return nil
		}
		ui.RenderRunsTable(os.Stdout, summaries)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "number of runs to show")
}
