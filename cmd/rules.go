package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/spotgrid/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect business rules",
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check [rules.yaml]",
	Short: "Validate a rule set and print it in evaluation order",
	Long:  "Validates the given rule file, the configured rules.path, or the built-in rule set when neither is set.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		rs, err := loadRules(cfg, path)
		if err != nil {
			return err
		}
		eng, err := rules.NewEngine(rs)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "PRIORITY\tID\tCATEGORY\tINTENT\tMULTI\tWHEN")
		for _, r := range eng.Rules() {
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%s\n", r.Priority, r.ID, r.Category, r.Intent, r.SpansMultiple, r.When)
		}
		return w.Flush()
	},
}

func init() {
	rulesCmd.AddCommand(rulesCheckCmd)
	rootCmd.AddCommand(rulesCmd)
}
