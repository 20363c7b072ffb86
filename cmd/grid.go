package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/spotgrid/internal/report"
	"github.com/sells-group/spotgrid/internal/schedule"
)

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Manage programming grids",
}

var gridLoadCmd = &cobra.Command{
	Use:   "load <grid.yaml>",
	Short: "Replace the stored grid with a YAML grid file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		grid, err := schedule.LoadGridFile(args[0])
		if err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.SaveGrid(ctx, grid); err != nil {
			return eris.Wrap(err, "grid load")
		}

		// Block anomalies are logged as collisions but never block the load.
		found := schedule.NewRegistry(*grid, st).ValidateBlocks(ctx)

		zap.L().Info("grid loaded",
			zap.String("file", args[0]),
			zap.Int("schedules", len(grid.Schedules)),
			zap.Int("assignments", len(grid.Assignments)),
			zap.Int("blocks", len(grid.Blocks)),
			zap.Int("collisions", len(found)),
		)
		return nil
	},
}

var gridCheckCmd = &cobra.Command{
	Use:   "check <grid.yaml>",
	Short: "Validate a grid file without storing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		grid, err := schedule.LoadGridFile(args[0])
		if err != nil {
			return err
		}

		found := schedule.NewRegistry(*grid, nil).ValidateBlocks(cmd.Context())
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d schedules, %d market assignments, %d blocks\n",
			len(grid.Schedules), len(grid.Assignments), len(grid.Blocks))
		if len(found) == 0 {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no block collisions")
			return nil
		}
		report.WriteCollisions(cmd.OutOrStdout(), found)
		return nil
	},
}

func init() {
	gridCmd.AddCommand(gridLoadCmd, gridCheckCmd)
	rootCmd.AddCommand(gridCmd)
}
