package schedule

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/spotgrid/internal/model"
)

// GridFile is the on-disk form of externally authored grids.
type GridFile struct {
	Schedules   []ScheduleSpec   `yaml:"schedules"`
	Assignments []AssignmentSpec `yaml:"assignments"`
}

// ScheduleSpec describes one schedule version and its blocks.
type ScheduleSpec struct {
	ID             int64       `yaml:"id"`
	Name           string      `yaml:"name"`
	Version        int         `yaml:"version"`
	Type           string      `yaml:"type"`
	EffectiveStart string      `yaml:"effective_start"`
	EffectiveEnd   string      `yaml:"effective_end"`
	Blocks         []BlockSpec `yaml:"blocks"`
}

// BlockSpec describes a block repeated on one or more weekdays.
type BlockSpec struct {
	Days      []string `yaml:"days"`
	Start     string   `yaml:"start"`
	End       string   `yaml:"end"`
	Language  string   `yaml:"language"`
	Name      string   `yaml:"name"`
	BlockType string   `yaml:"type"`
	DayPart   string   `yaml:"day_part"`
}

// AssignmentSpec binds a market to a schedule.
type AssignmentSpec struct {
	ID             int64  `yaml:"id"`
	Market         string `yaml:"market"`
	ScheduleID     int64  `yaml:"schedule_id"`
	EffectiveStart string `yaml:"effective_start"`
	EffectiveEnd   string `yaml:"effective_end"`
	Priority       int    `yaml:"priority"`
}

const dateLayout = "2006-01-02"

// LoadGridFile reads a grid definition file.
func LoadGridFile(path string) (*model.Grid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "schedule: read grid file %s", path)
	}
	return ParseGrid(data)
}

// ParseGrid converts grid YAML into a model.Grid. Blocks are numbered from 1
// in file order, one id per listed day, so an unchanged file keeps its ids.
func ParseGrid(data []byte) (*model.Grid, error) {
	var f GridFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "schedule: parse grid file")
	}

	grid := &model.Grid{}
	known := make(map[int64]bool, len(f.Schedules))

	for _, ss := range f.Schedules {
		if ss.ID == 0 || ss.Name == "" {
			return nil, eris.Errorf("schedule: schedule entries need an id and a name")
		}
		if known[ss.ID] {
			return nil, eris.Errorf("schedule: duplicate schedule id %d", ss.ID)
		}
		known[ss.ID] = true

		start, end, err := parseRange(ss.EffectiveStart, ss.EffectiveEnd)
		if err != nil {
			return nil, eris.Wrapf(err, "schedule: %s", ss.Name)
		}
		typ := model.ScheduleType(ss.Type)
		if typ == "" {
			typ = model.ScheduleStandard
		}
		grid.Schedules = append(grid.Schedules, model.Schedule{
			ID:             ss.ID,
			Name:           ss.Name,
			Version:        ss.Version,
			Type:           typ,
			EffectiveStart: start,
			EffectiveEnd:   end,
		})

		for _, bs := range ss.Blocks {
			blocks, err := expandBlock(ss.ID, bs)
			if err != nil {
				return nil, eris.Wrapf(err, "schedule: %s block %q", ss.Name, bs.Name)
			}
			for i := range blocks {
				blocks[i].ID = int64(len(grid.Blocks) + 1)
				grid.Blocks = append(grid.Blocks, blocks[i])
			}
		}
	}

	for _, as := range f.Assignments {
		if as.Market == "" {
			return nil, eris.New("schedule: assignment without market")
		}
		if !known[as.ScheduleID] {
			return nil, eris.Errorf("schedule: assignment for %s references unknown schedule %d", as.Market, as.ScheduleID)
		}
		start, end, err := parseRange(as.EffectiveStart, as.EffectiveEnd)
		if err != nil {
			return nil, eris.Wrapf(err, "schedule: assignment for %s", as.Market)
		}
		grid.Assignments = append(grid.Assignments, model.MarketAssignment{
			ID:             as.ID,
			Market:         as.Market,
			ScheduleID:     as.ScheduleID,
			EffectiveStart: start,
			EffectiveEnd:   end,
			Priority:       as.Priority,
		})
	}

	return grid, nil
}

func expandBlock(scheduleID int64, bs BlockSpec) ([]model.Block, error) {
	start, err := model.ParseClockTime(bs.Start)
	if err != nil {
		return nil, err
	}
	end, err := model.ParseClockTime(bs.End)
	if err != nil {
		return nil, err
	}
	if len(bs.Days) == 0 {
		return nil, eris.New("no days listed")
	}

	out := make([]model.Block, 0, len(bs.Days))
	for _, d := range bs.Days {
		day, err := model.ParseWeekday(d)
		if err != nil {
			return nil, err
		}
		out = append(out, model.Block{
			ScheduleID: scheduleID,
			Day:        day,
			Start:      start,
			End:        end,
			Language:   bs.Language,
			Name:       bs.Name,
			BlockType:  bs.BlockType,
			DayPart:    bs.DayPart,
		})
	}
	return out, nil
}

func parseRange(startStr, endStr string) (time.Time, *time.Time, error) {
	start, err := time.Parse(dateLayout, startStr)
	if err != nil {
		return time.Time{}, nil, eris.Wrapf(err, "effective_start %q", startStr)
	}
	if endStr == "" {
		return start, nil, nil
	}
	end, err := time.Parse(dateLayout, endStr)
	if err != nil {
		return time.Time{}, nil, eris.Wrapf(err, "effective_end %q", endStr)
	}
	if end.Before(start) {
		return time.Time{}, nil, eris.Errorf("effective_end %s before effective_start %s", endStr, startStr)
	}
	return start, &end, nil
}
