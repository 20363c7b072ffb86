package schedule

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spotgrid/internal/model"
)

func TestLoadGridFile(t *testing.T) {
	yaml := `
schedules:
  - id: 2
    name: Dallas Grid
    version: 1
    type: market
    effective_start: 2024-01-01
    blocks:
      - days: [monday, tue]
        start: "20:00"
        end: "21:00:00"
        language: Mandarin
        name: The Starry Love
        type: drama
        day_part: prime
assignments:
  - id: 1
    market: DAL
    schedule_id: 2
    effective_start: 2024-01-01
    effective_end: 2024-12-31
    priority: 5
`
	path := filepath.Join(t.TempDir(), "grid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	grid, err := LoadGridFile(path)
	require.NoError(t, err)

	require.Len(t, grid.Schedules, 1)
	assert.Equal(t, model.ScheduleMarket, grid.Schedules[0].Type)
	assert.Nil(t, grid.Schedules[0].EffectiveEnd)

	require.Len(t, grid.Blocks, 2)
	assert.Equal(t, time.Monday, grid.Blocks[0].Day)
	assert.Equal(t, time.Tuesday, grid.Blocks[1].Day)
	assert.Equal(t, int64(1), grid.Blocks[0].ID)
	assert.Equal(t, int64(2), grid.Blocks[1].ID)
	assert.Equal(t, model.MustClock("20:00"), grid.Blocks[0].Start)
	assert.Equal(t, "Mandarin", grid.Blocks[0].Language)

	require.Len(t, grid.Assignments, 1)
	require.NotNil(t, grid.Assignments[0].EffectiveEnd)
	assert.Equal(t, 5, grid.Assignments[0].Priority)
}

func TestParseGrid_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown schedule", "schedules: []\nassignments:\n  - market: DAL\n    schedule_id: 9\n    effective_start: 2024-01-01\n", "unknown schedule"},
		{"bad date", "schedules:\n  - id: 1\n    name: X\n    effective_start: soon\n", "effective_start"},
		{"bad time", "schedules:\n  - id: 1\n    name: X\n    effective_start: 2024-01-01\n    blocks:\n      - days: [mon]\n        start: late\n        end: \"21:00\"\n", "malformed interval"},
		{"duplicate", "schedules:\n  - id: 1\n    name: X\n    effective_start: 2024-01-01\n  - id: 1\n    name: Y\n    effective_start: 2024-01-01\n", "duplicate schedule"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseGrid([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
