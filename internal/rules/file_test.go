package rules

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spotgrid/internal/model"
)

func TestLoadFile(t *testing.T) {
	yaml := `
rules:
  - id: direct_response
    priority: 10
    category: Direct Response
    justification: known DR agency
    when:
      any:
        - agency_contains: [worldlink]
        - billing_agency_contains: [worldlink]
  - id: long_nonprofit
    priority: 20
    category: Multi-Language
    justification: auto-resolved, nonprofit
    spans_multiple: true
    when:
      sector_in: [NPO]
      min_duration: 5h
`
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	e, err := NewEngine(loaded)
	require.NoError(t, err)

	m := e.Apply(&model.Spot{BillingCode: "WorldLink:Acme"})
	require.NotNil(t, m)
	assert.Equal(t, "direct_response", m.RuleID)

	m = e.Apply(&model.Spot{Sector: model.StrPtr("npo"), Duration: 6 * time.Hour})
	require.NotNil(t, m)
	assert.Equal(t, "long_nonprofit", m.RuleID)
	assert.True(t, m.SpansMultiple)

	assert.Nil(t, e.Apply(&model.Spot{Sector: model.StrPtr("NPO"), Duration: time.Hour}))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no rules", "rules: []", "no rules"},
		{"empty predicate", "rules:\n  - id: x\n    category: Other\n    justification: j\n", "empty predicate"},
		{"bad duration", "rules:\n  - id: x\n    category: Other\n    justification: j\n    when:\n      min_duration: forever\n", "min_duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
