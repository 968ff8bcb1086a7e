package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/scholarpath/scout-cli/internal/model"
	"github.com/scholarpath/scout-cli/internal/store"
)

var (
	runsStatus string
	runsLimit  int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List past ingestion runs and their statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		runs, err := e.Store.ListRuns(cmd.Context(), store.RunFilter{
			Status: model.RunStatus(runsStatus),
			Limit:  runsLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list runs")
		}
		return printJSON(runs)
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "filter by run status")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 0, "maximum runs to return")
	rootCmd.AddCommand(runsCmd)
}
