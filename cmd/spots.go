package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/spotgrid/internal/spotfile"
)

var spotsCmd = &cobra.Command{
	Use:   "spots",
	Short: "Manage aired spots",
}

var spotsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import aired spots from a traffic-log export",
	Long:  "Reads a CSV or XLSX spot export from a local path or an ftp:// URL and upserts the spots by id.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		src, _ := cmd.Flags().GetString("file")
		timeout, _ := cmd.Flags().GetDuration("ftp-timeout")

		spots, err := spotfile.Load(ctx, src, spotfile.Options{FTPTimeout: timeout})
		if err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.SaveSpots(ctx, spots); err != nil {
			return eris.Wrap(err, "spots import")
		}
		zap.L().Info("import complete", zap.Int("spots", len(spots)), zap.String("source", src))
		return nil
	},
}

func init() {
	spotsImportCmd.Flags().String("file", "", "export path or ftp:// URL, .csv or .xlsx (required)")
	spotsImportCmd.Flags().Duration("ftp-timeout", 30*time.Second, "FTP dial timeout")
	_ = spotsImportCmd.MarkFlagRequired("file")
	spotsCmd.AddCommand(spotsImportCmd)
	rootCmd.AddCommand(spotsCmd)
}
