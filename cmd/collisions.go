package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/spotgrid/internal/model"
	"github.com/sells-group/spotgrid/internal/report"
	"github.com/sells-group/spotgrid/internal/store"
)

var collisionsCmd = &cobra.Command{
	Use:   "collisions",
	Short: "List schedule collisions detected by past runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		typ, _ := cmd.Flags().GetString("type")
		market, _ := cmd.Flags().GetString("market")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		cs, err := st.ListCollisions(ctx, store.CollisionFilter{
			Type:   model.CollisionType(typ),
			Market: market,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "collisions")
		}

		if asJSON {
			return report.WriteJSON(cmd.OutOrStdout(), cs)
		}
		if len(cs) == 0 {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No collisions found.")
			return nil
		}
		report.WriteCollisions(cmd.OutOrStdout(), cs)
		return nil
	},
}

func init() {
	collisionsCmd.Flags().String("type", "", "filter by type (market_overlap, block_overlap, block_interval)")
	collisionsCmd.Flags().String("market", "", "filter by market")
	collisionsCmd.Flags().Int("limit", 50, "max results")
	collisionsCmd.Flags().Bool("json", false, "print as JSON")
	rootCmd.AddCommand(collisionsCmd)
}
