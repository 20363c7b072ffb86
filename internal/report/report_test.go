package report

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/spotgrid/internal/model"
)

func testSummary() *model.RunSummary {
	return &model.RunSummary{
		RunID:        "3f2a9c1e-0000-4000-8000-000000000001",
		SpotsLoaded:  100,
		GridComputed: 70,
		RuleApplied:  30,
		Written:      100,
		Batches:      1,
		LastSpotID:   100,
		HardErrors:   []model.HardError{{SpotID: 42, Reason: "no grid coverage but block references present"}},
		Report: &model.ReconciliationReport{
			Categories: []model.CategoryLine{
				{Name: model.CategoryDirectResponse, Precedence: 1, Count: 30, Revenue: decimal.NewFromInt(300), Percent: 30, Reconciled: true},
				{Name: model.CategoryOther, Precedence: 9, Count: 70, Revenue: decimal.NewFromInt(700), Percent: 70, Reconciled: true},
			},
			InputCount:       100,
			CategorizedCount: 100,
			GrandTotal:       decimal.NewFromInt(1000),
			CategorizedTotal: decimal.NewFromInt(1000),
			AbsDiscrepancy:   decimal.Zero,
			Tolerance:        decimal.NewFromInt(1),
			ExcludedRevenue:  decimal.Zero,
			Reconciled:       true,
		},
	}
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	WriteSummary(&buf, testSummary())
	out := buf.String()

	assert.Contains(t, out, "Spots loaded:")
	assert.Contains(t, out, "Direct Response")
	assert.Contains(t, out, "300.00")
	assert.Contains(t, out, "1000.00")
	assert.Contains(t, out, "spot 42:")
	assert.NotContains(t, out, "RECONCILIATION FAILED")
}

func TestWriteTable_Failed(t *testing.T) {
	r := testSummary().Report
	r.Reconciled = false
	r.UnclaimedIDs = []int64{7, 9}

	var buf bytes.Buffer
	WriteTable(&buf, r)
	assert.Contains(t, buf.String(), "RECONCILIATION FAILED")
	assert.Contains(t, buf.String(), "Unclaimed spot ids: [7 9]")
}

func TestWriteSpotCategories(t *testing.T) {
	var buf bytes.Buffer
	WriteSpotCategories(&buf, map[int64]string{
		12: model.CategoryOther,
		3:  model.CategoryDirectResponse,
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "CATEGORY")
	assert.Contains(t, lines[1], "Direct Response")
	assert.Contains(t, lines[2], "12")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, testSummary()))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, float64(100), got["written"])
	report := got["report"].(map[string]any)
	assert.Equal(t, true, report["reconciled"])
	assert.Equal(t, "1000", report["grand_total"])
}

func TestWriteCollisionsAndRuns(t *testing.T) {
	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	WriteCollisions(&buf, []model.Collision{{ID: 1, Type: model.CollisionMarketOverlap, Severity: model.SeverityError,
		Market: "DAL", Date: &day, CandidateIDs: []int64{10, 11}, ChosenID: model.Int64Ptr(11), DetectedAt: day}})
	assert.Contains(t, buf.String(), "market_overlap")
	assert.Contains(t, buf.String(), "2025-03-03")

	buf.Reset()
	WriteRuns(&buf, []model.Run{{ID: "3f2a9c1e-aaaa", Status: model.RunStatusComplete, Committed: 5, CreatedAt: day}})
	assert.Contains(t, buf.String(), "3f2a9c1e ")
	assert.Contains(t, buf.String(), "complete")
}

func TestXLSXRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, testSummary()))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)

	cats, ok := f.Sheet[SheetCategories]
	require.True(t, ok)
	require.Len(t, cats.Rows, 3)
	assert.Equal(t, "Category", cats.Rows[0].Cells[1].String())
	assert.Equal(t, model.CategoryDirectResponse, cats.Rows[1].Cells[1].String())
	assert.Equal(t, "30", cats.Rows[1].Cells[2].String())

	totals, ok := f.Sheet[SheetTotals]
	require.True(t, ok)
	assert.Equal(t, "1000.00", totals.Rows[1].Cells[1].String())

	he, ok := f.Sheet[SheetHardErrors]
	require.True(t, ok)
	assert.Equal(t, "42", he.Rows[1].Cells[0].String())
}

func TestSaveXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	s := testSummary()
	s.HardErrors = nil
	require.NoError(t, SaveXLSX(path, s))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	_, ok := f.Sheet[SheetHardErrors]
	assert.False(t, ok, "no hard errors sheet when there are none")
}

func TestBuildXLSX_NoReport(t *testing.T) {
	_, err := BuildXLSX(&model.RunSummary{})
	assert.Error(t, err)
}
