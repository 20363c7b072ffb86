// Package schedule holds versioned programming grids and resolves which grid
// is authoritative for a market on a given date.
package schedule

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spotgrid/internal/model"
)

// CollisionSink receives registry anomalies. Implementations append to a log.
type CollisionSink interface {
	RecordCollision(ctx context.Context, c model.Collision) error
}

type resolveKey struct {
	market string
	date   string
}

type resolution struct {
	schedule *model.Schedule
	err      error
}

// Registry indexes a grid snapshot. It is safe for concurrent use; the
// snapshot itself is never mutated after construction.
type Registry struct {
	schedules map[int64]*model.Schedule
	byMarket  map[string][]model.MarketAssignment
	blocks    map[int64]map[time.Weekday][]model.Block
	sink      CollisionSink
	now       func() time.Time

	mu         sync.Mutex
	resolved   map[resolveKey]resolution
	collisions int
}

// NewRegistry builds a registry over grid. sink may be nil.
func NewRegistry(grid model.Grid, sink CollisionSink) *Registry {
	r := &Registry{
		schedules: make(map[int64]*model.Schedule, len(grid.Schedules)),
		byMarket:  make(map[string][]model.MarketAssignment),
		blocks:    make(map[int64]map[time.Weekday][]model.Block),
		sink:      sink,
		now:       time.Now,
		resolved:  make(map[resolveKey]resolution),
	}

	for i := range grid.Schedules {
		s := grid.Schedules[i]
		r.schedules[s.ID] = &s
	}
	for _, a := range grid.Assignments {
		key := normalizeMarket(a.Market)
		r.byMarket[key] = append(r.byMarket[key], a)
	}
	for _, b := range grid.Blocks {
		days, ok := r.blocks[b.ScheduleID]
		if !ok {
			days = make(map[time.Weekday][]model.Block)
			r.blocks[b.ScheduleID] = days
		}
		days[b.Day] = append(days[b.Day], b)
	}
	for _, days := range r.blocks {
		for d := range days {
			sortBlocks(days[d])
		}
	}
	return r
}

// Blocks returns a schedule's blocks for a weekday, ordered by start time.
// The returned slice must not be modified.
func (r *Registry) Blocks(scheduleID int64, day time.Weekday) []model.Block {
	return r.blocks[scheduleID][day]
}

// Collisions returns the number of collisions emitted so far.
func (r *Registry) Collisions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collisions
}

// ActiveScheduleFor returns the authoritative schedule for market on date.
//
// Among assignments covering the date, the highest priority wins. A tie on
// priority is a collision: it is logged and the most recently created
// assignment is used, so resolution never blocks on ambiguity.
func (r *Registry) ActiveScheduleFor(ctx context.Context, market string, date time.Time) (*model.Schedule, error) {
	key := resolveKey{market: normalizeMarket(market), date: date.Format("2006-01-02")}

	r.mu.Lock()
	if res, ok := r.resolved[key]; ok {
		r.mu.Unlock()
		return res.schedule, res.err
	}
	res, collision := r.resolve(key.market, date)
	r.resolved[key] = res
	if collision != nil {
		r.collisions++
	}
	r.mu.Unlock()

	if collision != nil {
		r.emit(ctx, *collision)
	}
	return res.schedule, res.err
}

func (r *Registry) resolve(market string, date time.Time) (resolution, *model.Collision) {
	var candidates []model.MarketAssignment
	for _, a := range r.byMarket[market] {
		if !a.Covers(date) {
			continue
		}
		s, ok := r.schedules[a.ScheduleID]
		if !ok || !s.ActiveOn(date) {
			continue
		}
		candidates = append(candidates, a)
	}

	if len(candidates) == 0 {
		return resolution{err: eris.Wrapf(model.ErrNoScheduleCoverage, "schedule: market %s on %s", market, date.Format("2006-01-02"))}, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	chosen := candidates[0]
	res := resolution{schedule: r.schedules[chosen.ScheduleID]}

	var tied []int64
	for _, c := range candidates {
		if c.Priority == chosen.Priority {
			tied = append(tied, c.ID)
		}
	}
	if len(tied) < 2 {
		return res, nil
	}

	d := date
	return res, &model.Collision{
		Type:         model.CollisionMarketOverlap,
		Severity:     model.SeverityError,
		Market:       market,
		ScheduleID:   model.Int64Ptr(chosen.ScheduleID),
		Date:         &d,
		CandidateIDs: tied,
		ChosenID:     model.Int64Ptr(chosen.ID),
		Message: fmt.Sprintf("%d assignments tie at priority %d; using most recent assignment %d",
			len(tied), chosen.Priority, chosen.ID),
		DetectedAt: r.now().UTC(),
	}
}

// emit logs a collision and forwards it to the sink. It never fails the caller.
func (r *Registry) emit(ctx context.Context, c model.Collision) {
	fields := []zap.Field{
		zap.String("type", string(c.Type)),
		zap.String("severity", string(c.Severity)),
		zap.String("market", c.Market),
		zap.Int64s("candidates", c.CandidateIDs),
		zap.String("message", c.Message),
	}
	if c.Severity == model.SeverityError {
		zap.L().Error("schedule collision", fields...)
	} else {
		zap.L().Warn("schedule collision", fields...)
	}

	if r.sink == nil {
		return
	}
	if err := r.sink.RecordCollision(ctx, c); err != nil {
		zap.L().Warn("schedule: failed to record collision", zap.Error(err))
	}
}

func normalizeMarket(m string) string {
	return strings.ToUpper(strings.TrimSpace(m))
}

func sortBlocks(blocks []model.Block) {
	sort.SliceStable(blocks, func(i, j int) bool {
		if blocks[i].Start != blocks[j].Start {
			return blocks[i].Start < blocks[j].Start
		}
		return blocks[i].ID < blocks[j].ID
	})
}
