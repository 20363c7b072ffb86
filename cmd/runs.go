package main

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/spotgrid/internal/model"
	"github.com/sells-group/spotgrid/internal/report"
	"github.com/sells-group/spotgrid/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect assignment run history",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List assignment runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		runs, err := st.ListRuns(ctx, store.RunFilter{Status: model.RunStatus(status), Limit: limit})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if asJSON {
			return report.WriteJSON(cmd.OutOrStdout(), runs)
		}
		if len(runs) == 0 {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No runs found.")
			return nil
		}
		report.WriteRuns(cmd.OutOrStdout(), runs)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if errors.Is(err, store.ErrNotFound) {
			return eris.Errorf("run %s not found", args[0])
		}
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		return report.WriteJSON(cmd.OutOrStdout(), run)
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by status (running, complete, failed, aborted)")
	runsListCmd.Flags().Int("limit", 20, "max results")
	runsListCmd.Flags().Bool("json", false, "print as JSON")

	runsCmd.AddCommand(runsListCmd, runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}
