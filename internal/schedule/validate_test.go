package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spotgrid/internal/model"
)

func TestValidateBlocks(t *testing.T) {
	grid := model.Grid{
		Schedules: []model.Schedule{{ID: 1, Name: "Standard Grid", EffectiveStart: date("2024-01-01")}},
		Blocks: []model.Block{
			{ID: 1, ScheduleID: 1, Day: time.Monday, Start: model.MustClock("20:00"), End: model.MustClock("21:00"), Name: "A"},
			{ID: 2, ScheduleID: 1, Day: time.Monday, Start: model.MustClock("20:30"), End: model.MustClock("22:00"), Name: "B"},
			{ID: 3, ScheduleID: 1, Day: time.Monday, Start: model.MustClock("23:30"), End: model.MustClock("00:00"), Name: "Late"},
			{ID: 4, ScheduleID: 1, Day: time.Tuesday, Start: model.MustClock("22:00"), End: model.MustClock("02:00"), Name: "Overnight"},
			{ID: 5, ScheduleID: 1, Day: time.Wednesday, Start: model.MustClock("10:00"), End: model.MustClock("10:00"), Name: "Empty"},
		},
	}
	sink := &memorySink{}
	r := NewRegistry(grid, sink)

	found := r.ValidateBlocks(context.Background())
	require.Len(t, found, 3)

	byType := map[model.CollisionType][]model.Collision{}
	for _, c := range found {
		assert.Equal(t, model.SeverityWarning, c.Severity)
		byType[c.Type] = append(byType[c.Type], c)
	}
	require.Len(t, byType[model.CollisionBlockOverlap], 1)
	assert.Equal(t, []int64{1, 2}, byType[model.CollisionBlockOverlap][0].CandidateIDs)
	assert.Len(t, byType[model.CollisionBlockInterval], 2)
	assert.Len(t, sink.got, 3)
	assert.Equal(t, 3, r.Collisions())
}

func TestValidateBlocks_OvernightTail(t *testing.T) {
	grid := model.Grid{
		Schedules: []model.Schedule{{ID: 1, Name: "Standard Grid", EffectiveStart: date("2024-01-01")}},
		Blocks: []model.Block{
			{ID: 1, ScheduleID: 1, Day: time.Sunday, Start: model.MustClock("23:00"), End: model.MustClock("02:00"), Name: "Overnight"},
			{ID: 2, ScheduleID: 1, Day: time.Monday, Start: model.MustClock("01:00"), End: model.MustClock("03:00"), Name: "Early"},
			{ID: 3, ScheduleID: 1, Day: time.Monday, Start: model.MustClock("02:00"), End: model.MustClock("04:00"), Name: "Touching"},
		},
	}
	r := NewRegistry(grid, nil)

	var overlaps []model.Collision
	for _, c := range r.ValidateBlocks(context.Background()) {
		if c.Type == model.CollisionBlockOverlap {
			overlaps = append(overlaps, c)
		}
	}
	require.Len(t, overlaps, 2)
	assert.Equal(t, []int64{1, 2}, overlaps[1].CandidateIDs)
	assert.Contains(t, overlaps[1].Message, "Monday")
}
