package partition

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spotgrid/internal/model"
)

func spot(id int64, kind model.SpotKind, revenue string) *model.Spot {
	return &model.Spot{ID: id, Kind: kind, Revenue: decimal.RequireFromString(revenue)}
}

func ruled(id int64, category string, spans bool) *model.Assignment {
	a := &model.Assignment{
		SpotID:        id,
		Intent:        model.IntentIndifferent,
		Method:        model.MethodRuleApplied,
		RuleID:        "r",
		RuleCategory:  category,
		Justification: "j",
		SpansMultiple: spans,
	}
	if spans {
		a.SpannedBlockIDs = []int64{}
	}
	return a
}

func single(id int64, intent model.CustomerIntent) *model.Assignment {
	return &model.Assignment{
		SpotID:     id,
		ScheduleID: model.Int64Ptr(1),
		BlockID:    model.Int64Ptr(10),
		Intent:     intent,
		Method:     model.MethodGridComputed,
	}
}

func byName(results []model.CategoryResult) map[string]model.CategoryResult {
	m := make(map[string]model.CategoryResult, len(results))
	for _, r := range results {
		m[r.Name] = r
	}
	return m
}

func TestPartition_HundredSpotsScenario(t *testing.T) {
	items := make([]Item, 0, 100)
	for i := int64(1); i <= 100; i++ {
		s := spot(i, model.KindCommercial, "10")
		if i <= 30 {
			items = append(items, Item{Spot: s, Assignment: ruled(i, model.CategoryDirectResponse, false)})
			continue
		}
		items = append(items, Item{Spot: s, Assignment: single(i, model.IntentLanguageSpecific)})
	}

	results := New(DefaultOptions()).Partition(items)
	got := byName(results)

	dr := got[model.CategoryDirectResponse]
	assert.Equal(t, 30, dr.Count)
	assert.True(t, decimal.NewFromInt(300).Equal(dr.Revenue))

	grid := decimal.Zero
	gridCount := 0
	for _, r := range results {
		if r.Name == model.CategoryDirectResponse {
			continue
		}
		grid = grid.Add(r.Revenue)
		gridCount += r.Count
	}
	assert.True(t, decimal.NewFromInt(700).Equal(grid))
	assert.Equal(t, 70, gridCount)

	report := Reconcile(items, results, DefaultTolerance)
	assert.True(t, report.Reconciled)
	assert.True(t, decimal.NewFromInt(1000).Equal(report.GrandTotal))
	assert.Equal(t, 100, report.CategorizedCount)
	assert.NoError(t, Check(report))
}

func TestPartition_Precedence(t *testing.T) {
	tests := []struct {
		name string
		item Item
		want string
	}{
		{"rule category wins over kind", Item{spot(1, model.KindProduction, "1"), ruled(1, model.CategoryMultiLanguage, true)}, model.CategoryMultiLanguage},
		{"production without grid", Item{spot(2, model.KindProduction, "1"), nil}, model.CategoryBrandedContent},
		{"production placed in a block", Item{spot(3, model.KindProduction, "1"), single(3, model.IntentLanguageSpecific)}, model.CategoryIndividualLanguage},
		{"service without grid", Item{spot(4, model.KindService, "1"), &model.Assignment{Intent: model.IntentNoGridCoverage, Method: model.MethodNoGridAvailable}}, model.CategoryServices},
		{"time specific single block", Item{spot(5, model.KindCommercial, "1"), single(5, model.IntentTimeSpecific)}, model.CategoryIndividualLanguage},
		{"sponsorship revenue type", Item{&model.Spot{ID: 6, Kind: model.KindCommercial, RevenueType: "roadblock", Revenue: decimal.NewFromInt(1)}, nil}, model.CategorySponsorship},
		{"indifferent multi block", Item{spot(7, model.KindBonus, "1"), &model.Assignment{SpansMultiple: true, SpannedBlockIDs: []int64{1, 2}, Intent: model.IntentIndifferent, Method: model.MethodGridComputed}}, model.CategoryMultiLanguage},
		{"time specific multi block", Item{spot(8, model.KindCommercial, "1"), &model.Assignment{SpansMultiple: true, SpannedBlockIDs: []int64{1, 2}, Intent: model.IntentTimeSpecific, Method: model.MethodGridComputed}}, model.CategoryMultiLanguage},
		{"package without block", Item{spot(9, model.KindPackage, "1"), nil}, model.CategoryPackage},
		{"unassigned commercial", Item{spot(10, model.KindCommercial, "1"), nil}, model.CategoryOther},
		{"paid programming rule", Item{spot(11, model.KindProgram, "1"), ruled(11, model.CategoryPaidProgramming, false)}, model.CategoryPaidProgramming},
	}

	p := New(DefaultOptions())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := CategoryIndex(p.Partition([]Item{tt.item}))
			assert.Equal(t, tt.want, idx[tt.item.Spot.ID])
		})
	}
}

func TestPartition_Exhaustive(t *testing.T) {
	kinds := []model.SpotKind{
		model.KindCommercial, model.KindBonus, model.KindProduction, model.KindService,
		model.KindProgram, model.KindPackage, model.KindCredit,
	}
	assignments := []func(int64) *model.Assignment{
		func(int64) *model.Assignment { return nil },
		func(id int64) *model.Assignment { return single(id, model.IntentLanguageSpecific) },
		func(id int64) *model.Assignment { return ruled(id, model.CategoryDirectResponse, false) },
		func(id int64) *model.Assignment { return ruled(id, model.CategoryMultiLanguage, true) },
		func(int64) *model.Assignment {
			return &model.Assignment{Intent: model.IntentNoGridCoverage, Method: model.MethodNoGridAvailable}
		},
	}

	var items []Item
	var id int64
	for _, k := range kinds {
		for _, mk := range assignments {
			id++
			items = append(items, Item{Spot: spot(id, k, "12.34"), Assignment: mk(id)})
		}
	}

	results := New(DefaultOptions()).Partition(items)
	require.Len(t, results, len(model.Categories))

	seen := map[int64]int{}
	for i, r := range results {
		assert.Equal(t, model.Categories[i], r.Name)
		assert.Equal(t, i+1, r.Precedence)
		for _, sid := range r.SpotIDs {
			seen[sid]++
		}
	}
	assert.Len(t, seen, len(items))
	for sid, n := range seen {
		assert.Equal(t, 1, n, "spot %d claimed %d times", sid, n)
	}

	report := Reconcile(items, results, DefaultTolerance)
	assert.True(t, report.Reconciled)
	assert.True(t, report.AbsDiscrepancy.IsZero())
}

func TestPartition_EmptyInput(t *testing.T) {
	results := New(DefaultOptions()).Partition(nil)
	require.Len(t, results, len(model.Categories))
	for _, r := range results {
		assert.Zero(t, r.Count)
		assert.NotNil(t, r.SpotIDs)
	}
	report := Reconcile(nil, results, DefaultTolerance)
	assert.True(t, report.Reconciled)
}
