package model

import (
	"time"
)

// ScheduleType scopes a programming grid.
type ScheduleType string

const (
	ScheduleStandard ScheduleType = "standard"
	ScheduleMarket   ScheduleType = "market"
	ScheduleSeasonal ScheduleType = "seasonal"
)

// Schedule is a named, versioned programming grid.
type Schedule struct {
	ID             int64        `json:"id" yaml:"id"`
	Name           string       `json:"name" yaml:"name"`
	Version        int          `json:"version" yaml:"version"`
	Type           ScheduleType `json:"type" yaml:"type"`
	EffectiveStart time.Time    `json:"effective_start" yaml:"effective_start"`
	EffectiveEnd   *time.Time   `json:"effective_end,omitempty" yaml:"effective_end,omitempty"`
}

// ActiveOn reports whether the schedule is in effect on date.
func (s *Schedule) ActiveOn(date time.Time) bool {
	return inRange(date, s.EffectiveStart, s.EffectiveEnd)
}

// MarketAssignment binds a market to a schedule over a date range.
// Higher priority wins when ranges overlap.
type MarketAssignment struct {
	ID             int64      `json:"id" yaml:"id"`
	Market         string     `json:"market" yaml:"market"`
	ScheduleID     int64      `json:"schedule_id" yaml:"schedule_id"`
	EffectiveStart time.Time  `json:"effective_start" yaml:"effective_start"`
	EffectiveEnd   *time.Time `json:"effective_end,omitempty" yaml:"effective_end,omitempty"`
	Priority       int        `json:"priority" yaml:"priority"`
	CreatedAt      time.Time  `json:"created_at" yaml:"created_at"`
}

// Covers reports whether the assignment's range contains date.
func (a *MarketAssignment) Covers(date time.Time) bool {
	return inRange(date, a.EffectiveStart, a.EffectiveEnd)
}

// Block is a time-and-language slot of a schedule on one weekday.
type Block struct {
	ID         int64        `json:"id"`
	ScheduleID int64        `json:"schedule_id"`
	Day        time.Weekday `json:"day"`
	Start      ClockTime    `json:"start"`
	End        ClockTime    `json:"end"`
	Language   string       `json:"language"`
	Name       string       `json:"name"`
	BlockType  string       `json:"block_type"`
	DayPart    string       `json:"day_part"`
}

// Window returns the block's interval on its own day.
func (b *Block) Window() (Window, error) {
	return NewWindow(b.Start, b.End)
}

// RollsOver reports whether the block spills into the following day.
// A block ending exactly at the day boundary does not.
func (b *Block) RollsOver() bool {
	w, err := b.Window()
	return err == nil && w.CrossesMidnight()
}

// dayOf truncates t to a calendar date in UTC.
func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// inRange compares calendar dates; end is inclusive and nil means open-ended.
func inRange(date, start time.Time, end *time.Time) bool {
	d := dayOf(date)
	if d.Before(dayOf(start)) {
		return false
	}
	return end == nil || !d.After(dayOf(*end))
}

// Grid is a snapshot of schedules, market assignments and blocks.
// It is loaded once per run and treated as read-only.
type Grid struct {
	Schedules   []Schedule         `json:"schedules"`
	Assignments []MarketAssignment `json:"assignments"`
	Blocks      []Block            `json:"blocks"`
}
