package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClockTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    ClockTime
		wantErr bool
	}{
		{"00:00:00", 0, false},
		{"20:00", 20 * 3600, false},
		{"23:59:59", DayLength - 1, false},
		{"24:00:00", DayLength, false},
		{" 06:30:15 ", 6*3600 + 30*60 + 15, false},
		{"24:00:01", 0, true},
		{"12:60:00", 0, true},
		{"noon", 0, true},
		{"", 0, true},
		{"1:2:3:4", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseClockTime(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformedInterval))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClockTimeString(t *testing.T) {
	assert.Equal(t, "20:05:09", ClockTime(20*3600+5*60+9).String())
	assert.Equal(t, "00:00:00", ClockTime(0).String())
}

func TestParseWindow(t *testing.T) {
	t.Run("same day", func(t *testing.T) {
		w, err := ParseWindow("20:00:00", "21:00:00")
		require.NoError(t, err)
		assert.Equal(t, MustClock("20:00"), w.Start)
		assert.Equal(t, MustClock("21:00"), w.End)
		assert.Equal(t, time.Hour, w.Length())
		assert.False(t, w.CrossesMidnight())
	})

	t.Run("end of day marker", func(t *testing.T) {
		w, err := ParseWindow("00:00:00", "23:59:59")
		require.NoError(t, err)
		assert.Equal(t, DayLength, w.End)
		assert.InDelta(t, 1.0, w.DayShare(), 1e-9)
	})

	t.Run("crosses midnight", func(t *testing.T) {
		w, err := ParseWindow("23:45:00", "00:15:00")
		require.NoError(t, err)
		assert.True(t, w.CrossesMidnight())
		assert.Equal(t, 30*time.Minute, w.Length())
	})

	t.Run("ends at midnight", func(t *testing.T) {
		w, err := ParseWindow("23:30:00", "00:00:00")
		require.NoError(t, err)
		assert.Equal(t, DayLength, w.End)
		assert.False(t, w.CrossesMidnight())
	})

	t.Run("empty", func(t *testing.T) {
		_, err := ParseWindow("10:00:00", "10:00:00")
		assert.True(t, errors.Is(err, ErrMalformedInterval))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseWindow("10:00:00", "late")
		assert.True(t, errors.Is(err, ErrMalformedInterval))
	})
}

func TestWindowOverlapsAndContains(t *testing.T) {
	block := Window{Start: MustClock("20:00"), End: MustClock("21:00")}

	assert.True(t, block.Overlaps(Window{Start: MustClock("20:30"), End: MustClock("21:30")}))
	assert.False(t, block.Overlaps(Window{Start: MustClock("21:00"), End: MustClock("22:00")}), "half-open intervals touching at a boundary do not overlap")
	assert.True(t, block.Contains(Window{Start: MustClock("20:00"), End: MustClock("21:00")}))
	assert.False(t, block.Contains(Window{Start: MustClock("19:59"), End: MustClock("21:00")}))

	shifted := block.Shift(1)
	assert.Equal(t, DayLength+MustClock("20:00"), shifted.Start)
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday("Monday")
	require.NoError(t, err)
	assert.Equal(t, time.Monday, d)

	d, err = ParseWeekday("thu")
	require.NoError(t, err)
	assert.Equal(t, time.Thursday, d)

	_, err = ParseWeekday("someday")
	assert.Error(t, err)
}
