package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/spotgrid/internal/model"
	"github.com/sells-group/spotgrid/internal/report"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Partition stored assignments and check category totals",
	Long:  "Reconciles the assignments already in the store against the spot grand total without resolving or writing anything.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("reconcile"); err != nil {
			return eris.Wrap(err, "invalid config")
		}
		ctx := cmd.Context()

		params, err := runParamsFromFlags(cmd)
		if err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		eng, err := newEngine(cfg, st)
		if err != nil {
			return err
		}

		if bySpot, _ := cmd.Flags().GetBool("by-spot"); bySpot {
			idx, err := eng.SpotCategories(ctx, params)
			if err != nil {
				return eris.Wrap(err, "reconcile")
			}
			report.WriteSpotCategories(cmd.OutOrStdout(), idx)
			return nil
		}

		rep, recErr := eng.Reconcile(ctx, params)
		if rep != nil {
			asJSON, _ := cmd.Flags().GetBool("json")
			xlsxPath, _ := cmd.Flags().GetString("xlsx")
			if asJSON {
				if err := report.WriteJSON(cmd.OutOrStdout(), rep); err != nil {
					return err
				}
			} else {
				report.WriteTable(cmd.OutOrStdout(), rep)
			}
			if xlsxPath != "" {
				if err := report.SaveXLSX(xlsxPath, &model.RunSummary{RunID: "reconcile", Report: rep}); err != nil {
					return err
				}
			}
		}
		return eris.Wrap(recErr, "reconcile")
	},
}

func init() {
	addSelectionFlags(reconcileCmd)
	reconcileCmd.Flags().Bool("by-spot", false, "list the category of each spot instead of the totals")
	rootCmd.AddCommand(reconcileCmd)
}
