// Package report renders run summaries and reconciliation reports.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spotgrid/internal/model"
)

// WriteJSON writes v as indented JSON.
func WriteJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "report: encode json")
}

// WriteSummary writes the run counters followed by the category table.
func WriteSummary(out io.Writer, s *model.RunSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", s.RunID)
	if s.DryRun {
		_, _ = fmt.Fprintln(w, "Mode:\tdry run (nothing written)")
	}
	_, _ = fmt.Fprintf(w, "Spots loaded:\t%d\n", s.SpotsLoaded)
	_, _ = fmt.Fprintf(w, "  Excluded:\t%d\n", s.SpotsExcluded)
	_, _ = fmt.Fprintf(w, "  Manual overrides:\t%d\n", s.ManualOverrides)
	_, _ = fmt.Fprintf(w, "Rule applied:\t%d\n", s.RuleApplied)
	_, _ = fmt.Fprintf(w, "Grid computed:\t%d\n", s.GridComputed)
	_, _ = fmt.Fprintf(w, "No grid:\t%d\n", s.NoGrid)
	_, _ = fmt.Fprintf(w, "Needs review:\t%d\n", s.NeedsReview)
	_, _ = fmt.Fprintf(w, "Collisions:\t%d\n", s.Collisions)
	_, _ = fmt.Fprintf(w, "Written:\t%d in %d batches (last spot %d)\n", s.Written, s.Batches, s.LastSpotID)
	if n := len(s.HardErrors); n > 0 {
		_, _ = fmt.Fprintf(w, "Hard errors:\t%d\n", n)
		for _, he := range s.HardErrors {
			_, _ = fmt.Fprintf(w, "  spot %d:\t%s\n", he.SpotID, he.Reason)
		}
	}
	_ = w.Flush()

	if s.Report != nil {
		_, _ = fmt.Fprintln(out)
		WriteTable(out, s.Report)
	}
}

// WriteTable writes the per-category reconciliation table.
func WriteTable(out io.Writer, r *model.ReconciliationReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintln(w, "#\tCATEGORY\tSPOTS\tREVENUE\tPCT\tOK\t")
	for _, c := range r.Categories {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%.2f%%\t%s\t\n",
			c.Precedence, c.Name, c.Count, c.Revenue.StringFixed(2), c.Percent, mark(c.Reconciled))
	}
	_, _ = fmt.Fprintf(w, "\tTOTAL\t%d\t%s\t\t%s\t\n", r.CategorizedCount, r.CategorizedTotal.StringFixed(2), mark(r.Reconciled))
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\nGrand total %s over %d spots; discrepancy %s (tolerance %s)\n",
		r.GrandTotal.StringFixed(2), r.InputCount, r.AbsDiscrepancy.StringFixed(2), r.Tolerance.StringFixed(2))
	if r.ExcludedCount > 0 {
		_, _ = fmt.Fprintf(out, "Excluded %d spots worth %s\n", r.ExcludedCount, r.ExcludedRevenue.StringFixed(2))
	}
	if len(r.UnclaimedIDs) > 0 {
		_, _ = fmt.Fprintf(out, "Unclaimed spot ids: %v\n", r.UnclaimedIDs)
	}
	if len(r.DuplicateIDs) > 0 {
		_, _ = fmt.Fprintf(out, "Duplicate spot ids: %v\n", r.DuplicateIDs)
	}
	if !r.Reconciled {
		_, _ = fmt.Fprintln(out, "RECONCILIATION FAILED")
	}
}

// WriteCollisions writes a collision log table.
func WriteCollisions(out io.Writer, cs []model.Collision) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTYPE\tSEVERITY\tMARKET\tDATE\tCANDIDATES\tCHOSEN\tDETECTED")
	for _, c := range cs {
		date := ""
		if c.Date != nil {
			date = c.Date.Format("2006-01-02")
		}
		chosen := ""
		if c.ChosenID != nil {
			chosen = fmt.Sprint(*c.ChosenID)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%v\t%s\t%s\n",
			c.ID, c.Type, c.Severity, c.Market, date, c.CandidateIDs, chosen, c.DetectedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}

// WriteRuns writes a run history table.
func WriteRuns(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tCOMMITTED\tLAST_SPOT\tCREATED\tERROR")
	for _, r := range runs {
		errMsg := r.Error
		if len(errMsg) > 40 {
			errMsg = errMsg[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			truncateID(r.ID), r.Status, r.Committed, r.LastSpotID, r.CreatedAt.Format("2006-01-02 15:04"), errMsg)
	}
	_ = w.Flush()
}

// WriteSpotCategories writes one row per spot, ordered by spot id.
func WriteSpotCategories(out io.Writer, idx map[int64]string) {
	ids := make([]int64, 0, len(idx))
	for id := range idx {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SPOT\tCATEGORY")
	for _, id := range ids {
		_, _ = fmt.Fprintf(w, "%d\t%s\n", id, idx[id])
	}
	_ = w.Flush()
}

func mark(ok bool) string {
	if ok {
		return "yes"
	}
	return "NO"
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
