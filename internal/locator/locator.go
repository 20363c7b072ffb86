// Package locator finds the programming blocks a spot's air-time window intersects.
package locator

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spotgrid/internal/model"
)

// Coverage describes how completely the located blocks cover a spot window.
type Coverage string

const (
	CoverageFull    Coverage = "FULL"
	CoveragePartial Coverage = "PARTIAL"
	CoverageNone    Coverage = "NONE"
)

// Registry is the part of the schedule registry the locator needs.
type Registry interface {
	ActiveScheduleFor(ctx context.Context, market string, date time.Time) (*model.Schedule, error)
	Blocks(scheduleID int64, day time.Weekday) []model.Block
}

// Request identifies a spot's airing.
type Request struct {
	Market  string
	Date    time.Time
	Day     time.Weekday
	TimeIn  string
	TimeOut string
}

// RequestFor builds a request from a spot.
func RequestFor(s *model.Spot) Request {
	return Request{Market: s.Market, Date: s.AirDate, Day: s.DayOfWeek, TimeIn: s.TimeIn, TimeOut: s.TimeOut}
}

// Result is the outcome of a lookup. Schedule is nil when the market has no
// active grid on the date.
type Result struct {
	Schedule *model.Schedule
	Window   model.Window
	Blocks   []model.Block
	Coverage Coverage
}

// Locator resolves spot windows against the active grid.
type Locator struct {
	reg Registry
}

// New creates a Locator.
func New(reg Registry) *Locator {
	return &Locator{reg: reg}
}

// candidate is a block projected onto the spot's two-day axis.
type candidate struct {
	block  model.Block
	window model.Window
}

// Locate returns the blocks intersecting the request window. A window that
// lies entirely inside one block yields just that block, the earliest
// starting one when overlapping blocks both contain it.
//
// Windows are compared on an axis anchored at midnight of the spot's day.
// The previous day's rollover blocks contribute their post-midnight tail, and
// when the spot itself crosses midnight the next day's blocks are included.
// A missing schedule yields CoverageNone without an error; an unparsable
// window yields model.ErrMalformedInterval.
func (l *Locator) Locate(ctx context.Context, req Request) (Result, error) {
	w, err := model.ParseWindow(req.TimeIn, req.TimeOut)
	if err != nil {
		return Result{Coverage: CoverageNone}, err
	}

	sched, err := l.reg.ActiveScheduleFor(ctx, req.Market, req.Date)
	if err != nil {
		if errors.Is(err, model.ErrNoScheduleCoverage) {
			return Result{Window: w, Coverage: CoverageNone}, nil
		}
		return Result{}, eris.Wrap(err, "locator: resolve schedule")
	}

	res := Result{Schedule: sched, Window: w, Coverage: CoverageNone}

	var hits []candidate
	for _, c := range l.candidates(sched.ID, req.Day, w) {
		if c.window.Overlaps(w) {
			hits = append(hits, c)
		}
	}
	if len(hits) == 0 {
		return res, nil
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].window.Start < hits[j].window.Start
	})

	for _, h := range hits {
		if h.window.Contains(w) {
			res.Blocks = []model.Block{h.block}
			res.Coverage = CoverageFull
			return res, nil
		}
	}

	res.Blocks = make([]model.Block, len(hits))
	for i, h := range hits {
		res.Blocks[i] = h.block
	}
	res.Coverage = coverage(w, hits)
	return res, nil
}

func (l *Locator) candidates(scheduleID int64, day time.Weekday, w model.Window) []candidate {
	var out []candidate

	prev := (day + 6) % 7
	for _, b := range l.reg.Blocks(scheduleID, prev) {
		bw, err := b.Window()
		if err != nil || !bw.CrossesMidnight() {
			continue
		}
		out = append(out, candidate{block: b, window: bw.Shift(-1)})
	}

	for _, b := range l.reg.Blocks(scheduleID, day) {
		bw, err := b.Window()
		if err != nil {
			continue
		}
		out = append(out, candidate{block: b, window: bw})
	}

	if w.CrossesMidnight() {
		next := (day + 1) % 7
		for _, b := range l.reg.Blocks(scheduleID, next) {
			bw, err := b.Window()
			if err != nil {
				continue
			}
			out = append(out, candidate{block: b, window: bw.Shift(1)})
		}
	}
	return out
}

// coverage reports FULL when the union of hits covers w without gaps.
// hits must be sorted by start.
func coverage(w model.Window, hits []candidate) Coverage {
	reached := w.Start
	for _, h := range hits {
		if h.window.Start > reached {
			return CoveragePartial
		}
		if h.window.End > reached {
			reached = h.window.End
		}
		if reached >= w.End {
			return CoverageFull
		}
	}
	return CoveragePartial
}
