package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spotgrid/internal/model"
)

func defaultEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultRules(DefaultOptions()))
	require.NoError(t, err)
	return e
}

func TestApply_DirectResponseBeatsPaidProgramming(t *testing.T) {
	e := defaultEngine(t)

	spot := &model.Spot{
		ID:          1,
		Agency:      model.StrPtr("WorldLink"),
		RevenueType: "Paid Programming",
	}
	m := e.Apply(spot)
	require.NotNil(t, m)
	assert.Equal(t, RuleDirectResponse, m.RuleID)
	assert.Equal(t, model.CategoryDirectResponse, m.Category)
}

func TestApply_DirectResponseViaBillingCode(t *testing.T) {
	e := defaultEngine(t)

	m := e.Apply(&model.Spot{BillingCode: "DRTV Partners:Acme"})
	require.NotNil(t, m)
	assert.Equal(t, RuleDirectResponse, m.RuleID)
}

func TestApply_NoAgencyFallsThrough(t *testing.T) {
	e := defaultEngine(t)

	spot := &model.Spot{RevenueType: "Internal Ad Sales", TimeIn: "20:00:00", TimeOut: "21:00:00"}
	assert.Nil(t, e.Apply(spot), "absent agency must not match any agency rule")
}

func TestApply_PaidProgramming(t *testing.T) {
	e := defaultEngine(t)

	m := e.Apply(&model.Spot{Agency: model.StrPtr("Acme Agency"), RevenueType: "Paid Programming"})
	require.NotNil(t, m)
	assert.Equal(t, RulePaidProgramming, m.RuleID)
	assert.False(t, m.SpansMultiple)
}

func TestApply_MediaBroadReachScenario(t *testing.T) {
	e := defaultEngine(t)

	spot := &model.Spot{
		ID:          42,
		TimeIn:      "00:00:00",
		TimeOut:     "23:59:59",
		Sector:      model.StrPtr("MEDIA"),
		Duration:    24 * time.Hour,
		RevenueType: "Internal Ad Sales",
	}
	m := e.Apply(spot)
	require.NotNil(t, m)
	assert.Equal(t, RuleMediaBroadReach, m.RuleID)

	a := m.Assignment(spot.ID)
	require.NoError(t, a.Validate())
	assert.Equal(t, model.MethodRuleApplied, a.Method)
	assert.True(t, a.SpansMultiple)
	assert.Nil(t, a.BlockID)
	assert.NotNil(t, a.SpannedBlockIDs)
	assert.Equal(t, model.CategoryMultiLanguage, a.RuleCategory)
	assert.NotEmpty(t, a.Justification)
}

func TestApply_SectorDurationOrder(t *testing.T) {
	e := defaultEngine(t)

	tests := []struct {
		name string
		spot model.Spot
		want string
	}{
		{"nonprofit long form", model.Spot{Sector: model.StrPtr("NPO"), Duration: 6 * time.Hour}, RuleNonprofitLong},
		{"nonprofit short", model.Spot{Sector: model.StrPtr("NPO"), Duration: time.Hour}, ""},
		{"extended any sector", model.Spot{Sector: model.StrPtr("AUTO"), Duration: 12 * time.Hour}, RuleExtendedContent},
		{"government", model.Spot{Sector: model.StrPtr("GOV"), Duration: 30 * time.Second}, RuleGovernmentPSA},
		{"government extended", model.Spot{Sector: model.StrPtr("GOV"), Duration: 13 * time.Hour}, RuleExtendedContent},
		{"media short window", model.Spot{Sector: model.StrPtr("MEDIA"), TimeIn: "20:00:00", TimeOut: "21:00:00"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := e.Apply(&tt.spot)
			if tt.want == "" {
				assert.Nil(t, m)
				return
			}
			require.NotNil(t, m)
			assert.Equal(t, tt.want, m.RuleID)
			assert.True(t, m.SpansMultiple)
		})
	}
}

func TestNewEngine_Validation(t *testing.T) {
	ok := Rule{ID: "a", Category: model.CategoryOther, Justification: "j", When: SectorIs("X")}

	_, err := NewEngine([]Rule{ok, ok})
	assert.ErrorContains(t, err, "duplicate")

	bad := ok
	bad.ID = "b"
	bad.Category = "Nope"
	_, err = NewEngine([]Rule{bad})
	assert.ErrorContains(t, err, "unknown category")

	bad = ok
	bad.When = nil
	_, err = NewEngine([]Rule{bad})
	assert.ErrorContains(t, err, "no predicate")

	bad = ok
	bad.Intent = model.IntentNoGridCoverage
	_, err = NewEngine([]Rule{bad})
	assert.ErrorContains(t, err, "cannot assign intent")
}

func TestNewEngine_OrdersByPriority(t *testing.T) {
	e, err := NewEngine([]Rule{
		{ID: "late", Priority: 50, Category: model.CategoryOther, Justification: "j", When: SectorIs("X")},
		{ID: "early", Priority: 5, Category: model.CategoryServices, Justification: "j", When: SectorIs("X")},
	})
	require.NoError(t, err)

	m := e.Apply(&model.Spot{Sector: model.StrPtr("x")})
	require.NotNil(t, m)
	assert.Equal(t, "early", m.RuleID)
	assert.Equal(t, "early", e.Rules()[0].ID)
}
