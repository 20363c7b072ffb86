package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/spotgrid/internal/engine"
	"github.com/sells-group/spotgrid/internal/model"
	"github.com/sells-group/spotgrid/internal/report"
)

var assignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Resolve every spot to a category and language block",
	Long: `Runs the assignment engine: business rules first, then grid resolution,
then batched write-back and reconciliation. Exits non-zero when reconciliation
fails or any record was excluded with a hard error.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("assign"); err != nil {
			return eris.Wrap(err, "invalid config")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

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

		summary, runErr := eng.Run(ctx, params)
		if summary != nil {
			asJSON, _ := cmd.Flags().GetBool("json")
			xlsxPath, _ := cmd.Flags().GetString("xlsx")
			if err := emitSummary(cmd.OutOrStdout(), summary, asJSON, xlsxPath); err != nil {
				return err
			}
		}
		if runErr != nil {
			printHint(cmd.ErrOrStderr(), runErr)
			return eris.Wrap(runErr, "assign")
		}
		return nil
	},
}

// runParamsFromFlags reads the spot selection flags shared by assign and reconcile.
func runParamsFromFlags(cmd *cobra.Command) (engine.Params, error) {
	var p engine.Params

	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")
	year, _ := cmd.Flags().GetInt("year")
	p.Limit, _ = cmd.Flags().GetInt("limit")
	if f := cmd.Flags().Lookup("dry-run"); f != nil {
		p.DryRun, _ = cmd.Flags().GetBool("dry-run")
	}
	if f := cmd.Flags().Lookup("resume"); f != nil {
		p.ResumeRunID, _ = cmd.Flags().GetString("resume")
	}

	if p.Limit < 0 {
		return p, eris.New("--limit must not be negative")
	}
	if year != 0 {
		if fromStr != "" || toStr != "" {
			return p, eris.New("--year cannot be combined with --from/--to")
		}
		from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
		p.From, p.To = &from, &to
		return p, nil
	}

	var err error
	if p.From, err = parseDateFlag("from", fromStr); err != nil {
		return p, err
	}
	if p.To, err = parseDateFlag("to", toStr); err != nil {
		return p, err
	}
	if p.From != nil && p.To != nil && p.To.Before(*p.From) {
		return p, eris.New("--to is before --from")
	}
	return p, nil
}

func parseDateFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid --%s date (want YYYY-MM-DD)", name)
	}
	return &t, nil
}

func emitSummary(out io.Writer, summary *model.RunSummary, asJSON bool, xlsxPath string) error {
	if asJSON {
		if err := report.WriteJSON(out, summary); err != nil {
			return err
		}
	} else {
		report.WriteSummary(out, summary)
	}

	if xlsxPath != "" && summary.Report != nil {
		if err := report.SaveXLSX(xlsxPath, summary); err != nil {
			return err
		}
		zap.L().Info("reconciliation workbook written", zap.String("path", xlsxPath))
	}
	return nil
}

// exitHint explains why a finished run still exits non-zero.
func exitHint(err error) string {
	switch {
	case errors.Is(err, engine.ErrHardErrors):
		return "some records were excluded with hard errors"
	case errors.Is(err, context.Canceled):
		return "run aborted; resume it with --resume"
	default:
		return ""
	}
}

func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().String("from", "", "first air date to include (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "last air date to include (YYYY-MM-DD)")
	cmd.Flags().Int("year", 0, "restrict to one calendar year")
	cmd.Flags().Int("limit", 0, "max spots to process (0 = all)")
	cmd.Flags().Bool("json", false, "print the summary as JSON")
	cmd.Flags().String("xlsx", "", "also write the reconciliation workbook to this path")
}

func init() {
	addSelectionFlags(assignCmd)
	assignCmd.Flags().Bool("dry-run", false, "resolve and reconcile without writing")
	assignCmd.Flags().String("resume", "", "resume an interrupted run after its last checkpoint")
	rootCmd.AddCommand(assignCmd)
}

func printHint(out io.Writer, err error) {
	if hint := exitHint(err); hint != "" {
		_, _ = fmt.Fprintln(out, hint)
	}
}
