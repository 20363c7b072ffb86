package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/spotgrid/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "spotgrid",
	Short: "Spot category and language-block assignment engine",
	Long:  "Resolves every aired advertising spot to one revenue category and, for language-targeted spots, the programming blocks it aired in, then reconciles category totals against the grand total.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
