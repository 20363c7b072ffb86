package spotfile

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/spotgrid/internal/model"
)

// ParseXLSX reads spots from the first sheet of a workbook, laid out like
// the CSV export with a header row.
func ParseXLSX(data []byte) ([]model.Spot, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "spotfile: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("spotfile: workbook has no sheets")
	}

	sheet := f.Sheets[0]
	records := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		records = append(records, rowToStrings(row))
	}
	return decodeRows(records)
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
