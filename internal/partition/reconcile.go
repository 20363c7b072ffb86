package partition

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/spotgrid/internal/model"
)

// DefaultTolerance is the largest revenue discrepancy a reconciled run may show.
var DefaultTolerance = decimal.NewFromInt(1)

// ErrReconciliationMismatch is the sentinel behind every MismatchError.
var ErrReconciliationMismatch = eris.New("reconciliation mismatch")

// MismatchError reports a partition that is not exhaustive or not additive.
type MismatchError struct {
	Report *model.ReconciliationReport
}

func (e *MismatchError) Error() string {
	r := e.Report
	return fmt.Sprintf("reconciliation mismatch: %d/%d spots categorized, %d duplicate, %d unclaimed, discrepancy %s (tolerance %s)",
		r.CategorizedCount, r.InputCount, len(r.DuplicateIDs), len(r.UnclaimedIDs),
		r.AbsDiscrepancy.StringFixed(2), r.Tolerance.StringFixed(2))
}

func (e *MismatchError) Unwrap() error { return ErrReconciliationMismatch }

// IsMismatch reports whether err is a reconciliation failure.
func IsMismatch(err error) bool {
	return errors.Is(err, ErrReconciliationMismatch)
}

// Reconcile verifies the partition independently of how it was built:
// every input id is categorized exactly once, each category total matches
// the revenue recomputed from the input, and the category totals sum to
// the grand total within tolerance.
func Reconcile(items []Item, results []model.CategoryResult, tolerance decimal.Decimal) *model.ReconciliationReport {
	revenue := make(map[int64]decimal.Decimal, len(items))
	grand := decimal.Zero
	inputDup := make(map[int64]bool)
	for _, it := range items {
		if _, ok := revenue[it.Spot.ID]; ok {
			inputDup[it.Spot.ID] = true
		}
		revenue[it.Spot.ID] = it.Spot.Revenue
		grand = grand.Add(it.Spot.Revenue)
	}

	report := &model.ReconciliationReport{
		InputCount:       len(items),
		GrandTotal:       grand,
		CategorizedTotal: decimal.Zero,
		Tolerance:        tolerance,
		ExcludedRevenue:  decimal.Zero,
		Reconciled:       true,
	}

	seen := make(map[int64]int, len(items))
	for _, r := range results {
		line := model.CategoryLine{
			Name:           r.Name,
			Precedence:     r.Precedence,
			Count:          r.Count,
			Revenue:        r.Revenue,
			Reconciled:     true,
			AbsDiscrepancy: decimal.Zero,
		}

		recomputed := decimal.Zero
		var unknown int
		for _, id := range r.SpotIDs {
			seen[id]++
			rev, ok := revenue[id]
			if !ok {
				unknown++
				continue
			}
			recomputed = recomputed.Add(rev)
		}

		switch {
		case unknown > 0:
			line.Reconciled = false
			line.DiscrepancyReason = fmt.Sprintf("%d spot ids not in input", unknown)
		case r.Count != len(r.SpotIDs):
			line.Reconciled = false
			line.DiscrepancyReason = fmt.Sprintf("count %d but %d spot ids", r.Count, len(r.SpotIDs))
		case !recomputed.Equal(r.Revenue):
			line.Reconciled = false
			line.DiscrepancyReason = "revenue differs from input"
		}
		if !recomputed.Equal(r.Revenue) {
			line.AbsDiscrepancy = r.Revenue.Sub(recomputed).Abs()
			if !recomputed.IsZero() {
				line.RelDiscrepancy = line.AbsDiscrepancy.Div(recomputed.Abs()).InexactFloat64()
			}
		}
		if !grand.IsZero() {
			line.Percent = r.Revenue.Div(grand).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
		}
		if !line.Reconciled {
			report.Reconciled = false
		}

		report.CategorizedCount += len(r.SpotIDs)
		report.CategorizedTotal = report.CategorizedTotal.Add(r.Revenue)
		report.Categories = append(report.Categories, line)
	}

	for id, n := range seen {
		if n > 1 || inputDup[id] {
			report.DuplicateIDs = append(report.DuplicateIDs, id)
		}
	}
	for id := range revenue {
		if seen[id] == 0 {
			report.UnclaimedIDs = append(report.UnclaimedIDs, id)
		}
	}
	sortIDs(report.DuplicateIDs)
	sortIDs(report.UnclaimedIDs)

	report.AbsDiscrepancy = grand.Sub(report.CategorizedTotal).Abs()
	if !grand.IsZero() {
		report.RelDiscrepancy = report.AbsDiscrepancy.Div(grand.Abs()).InexactFloat64()
	}

	if len(report.DuplicateIDs) > 0 || len(report.UnclaimedIDs) > 0 ||
		report.CategorizedCount != report.InputCount ||
		report.AbsDiscrepancy.GreaterThan(tolerance) {
		report.Reconciled = false
	}
	return report
}

// Check returns a *MismatchError when the report did not reconcile.
func Check(report *model.ReconciliationReport) error {
	if report == nil || report.Reconciled {
		return nil
	}
	return &MismatchError{Report: report}
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
