package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ClockTime is a wall-clock offset in seconds since midnight.
type ClockTime int

// DayLength is the length of a broadcast day.
const DayLength ClockTime = 24 * 60 * 60

// lastSecond is the legacy "end of day" marker used by grids and spot logs.
const lastSecond ClockTime = DayLength - 1

// ParseClockTime parses HH:MM or HH:MM:SS. "24:00:00" is accepted as the day boundary.
func ParseClockTime(s string) (ClockTime, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, eris.Wrapf(ErrMalformedInterval, "clock: %q", s)
	}

	var vals [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, eris.Wrapf(ErrMalformedInterval, "clock: %q", s)
		}
		vals[i] = n
	}

	h, m, sec := vals[0], vals[1], vals[2]
	if m > 59 || sec > 59 || h > 24 || (h == 24 && (m != 0 || sec != 0)) {
		return 0, eris.Wrapf(ErrMalformedInterval, "clock: %q out of range", s)
	}
	return ClockTime(h*3600 + m*60 + sec), nil
}

// MustClock is ParseClockTime for literals known to be valid.
func MustClock(s string) ClockTime {
	c, err := ParseClockTime(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String formats the offset as HH:MM:SS.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", int(c)/3600, (int(c)%3600)/60, int(c)%60)
}

// AsEnd maps the end-of-day markers 23:59:59 and 24:00:00 onto DayLength.
func (c ClockTime) AsEnd() ClockTime {
	if c == lastSecond || c == DayLength {
		return DayLength
	}
	return c
}

// Window is a half-open [Start, End) interval relative to the start of a day.
// End exceeds DayLength when the interval crosses midnight.
type Window struct {
	Start ClockTime
	End   ClockTime
}

// ParseWindow parses a time-in/time-out pair. A time-out at or before the
// time-in is read as crossing midnight; identical bounds are rejected.
func ParseWindow(in, out string) (Window, error) {
	start, err := ParseClockTime(in)
	if err != nil {
		return Window{}, eris.Wrap(err, "window: time in")
	}
	end, err := ParseClockTime(out)
	if err != nil {
		return Window{}, eris.Wrap(err, "window: time out")
	}
	return NewWindow(start, end)
}

// NewWindow builds a window from parsed bounds, applying end-of-day and rollover rules.
func NewWindow(start, end ClockTime) (Window, error) {
	if start >= DayLength {
		return Window{}, eris.Wrapf(ErrMalformedInterval, "window: start %s at day boundary", start)
	}
	if start == end {
		return Window{}, eris.Wrapf(ErrMalformedInterval, "window: empty interval at %s", start)
	}
	end = end.AsEnd()
	if end <= start {
		end += DayLength
	}
	return Window{Start: start, End: end}, nil
}

// Length returns the window duration.
func (w Window) Length() time.Duration {
	return time.Duration(w.End-w.Start) * time.Second
}

// DayShare is the fraction of the broadcast day covered by the window.
func (w Window) DayShare() float64 {
	return float64(w.End-w.Start) / float64(DayLength)
}

// CrossesMidnight reports whether the window runs into the following day.
func (w Window) CrossesMidnight() bool {
	return w.End > DayLength
}

// Shift moves the window by a whole number of days.
func (w Window) Shift(days int) Window {
	off := ClockTime(days) * DayLength
	return Window{Start: w.Start + off, End: w.End + off}
}

// Overlaps reports whether two half-open windows intersect.
func (w Window) Overlaps(o Window) bool {
	return w.Start < o.End && o.Start < w.End
}

// Contains reports whether o lies entirely inside w.
func (w Window) Contains(o Window) bool {
	return w.Start <= o.Start && o.End <= w.End
}

func (w Window) String() string {
	return fmt.Sprintf("[%s,%s)", (w.Start % DayLength), (w.End % DayLength))
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ParseWeekday accepts full or abbreviated English day names in any case.
func ParseWeekday(s string) (time.Weekday, error) {
	d, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, eris.Errorf("weekday: unknown day %q", s)
	}
	return d, nil
}
