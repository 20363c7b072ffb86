package report

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/spotgrid/internal/model"
)

// Sheet names of the reconciliation workbook.
const (
	SheetCategories = "Categories"
	SheetTotals     = "Totals"
	SheetHardErrors = "Hard Errors"
)

// BuildXLSX lays the reconciliation report out as a workbook: one row per
// category, a totals sheet, and the hard errors when there are any.
func BuildXLSX(s *model.RunSummary) (*xlsx.File, error) {
	if s == nil || s.Report == nil {
		return nil, eris.New("report: summary has no reconciliation report")
	}
	r := s.Report
	f := xlsx.NewFile()

	cats, err := f.AddSheet(SheetCategories)
	if err != nil {
		return nil, eris.Wrap(err, "report: add categories sheet")
	}
	addStrings(cats.AddRow(), "Precedence", "Category", "Spots", "Revenue", "Percent", "Reconciled", "Discrepancy")
	for _, c := range r.Categories {
		row := cats.AddRow()
		row.AddCell().SetInt(c.Precedence)
		row.AddCell().SetString(c.Name)
		row.AddCell().SetInt(c.Count)
		row.AddCell().SetFloatWithFormat(c.Revenue.InexactFloat64(), "#,##0.00")
		row.AddCell().SetFloatWithFormat(c.Percent, "0.00")
		row.AddCell().SetBool(c.Reconciled)
		row.AddCell().SetString(c.DiscrepancyReason)
	}

	totals, err := f.AddSheet(SheetTotals)
	if err != nil {
		return nil, eris.Wrap(err, "report: add totals sheet")
	}
	addStrings(totals.AddRow(), "Run", s.RunID)
	addStrings(totals.AddRow(), "Grand total", r.GrandTotal.StringFixed(2))
	addStrings(totals.AddRow(), "Categorized total", r.CategorizedTotal.StringFixed(2))
	addStrings(totals.AddRow(), "Discrepancy", r.AbsDiscrepancy.StringFixed(2))
	addStrings(totals.AddRow(), "Tolerance", r.Tolerance.StringFixed(2))
	addStrings(totals.AddRow(), "Excluded revenue", r.ExcludedRevenue.StringFixed(2))
	row := totals.AddRow()
	row.AddCell().SetString("Spots")
	row.AddCell().SetInt(r.InputCount)
	row = totals.AddRow()
	row.AddCell().SetString("Reconciled")
	row.AddCell().SetBool(r.Reconciled)

	if len(s.HardErrors) > 0 {
		he, err := f.AddSheet(SheetHardErrors)
		if err != nil {
			return nil, eris.Wrap(err, "report: add hard errors sheet")
		}
		addStrings(he.AddRow(), "Spot", "Reason")
		for _, h := range s.HardErrors {
			row := he.AddRow()
			row.AddCell().SetInt(int(h.SpotID))
			row.AddCell().SetString(h.Reason)
		}
	}
	return f, nil
}

// WriteXLSX writes the workbook to out.
func WriteXLSX(out io.Writer, s *model.RunSummary) error {
	f, err := BuildXLSX(s)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(out), "report: write xlsx")
}

// SaveXLSX writes the workbook to path.
func SaveXLSX(path string, s *model.RunSummary) error {
	f, err := BuildXLSX(s)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "report: save xlsx %s", path)
}

func addStrings(row *xlsx.Row, values ...string) {
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
