package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sells-group/spotgrid/internal/model"
)

// ValidateBlocks checks every schedule/day for malformed and overlapping
// blocks, including overnight blocks that run into the next day's blocks. Findings are emitted as warning collisions and returned.
func (r *Registry) ValidateBlocks(ctx context.Context) []model.Collision {
	var found []model.Collision

	ids := make([]int64, 0, len(r.blocks))
	for id := range r.blocks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		for day := time.Sunday; day <= time.Saturday; day++ {
			found = append(found, r.validateDay(id, day)...)
		}
	}

	r.mu.Lock()
	r.collisions += len(found)
	r.mu.Unlock()

	for _, c := range found {
		r.emit(ctx, c)
	}
	return found
}

func (r *Registry) validateDay(scheduleID int64, day time.Weekday) []model.Collision {
	blocks := r.blocks[scheduleID][day]
	if len(blocks) == 0 {
		return nil
	}

	var out []model.Collision
	warn := func(typ model.CollisionType, ids []int64, msg string) {
		out = append(out, model.Collision{
			Type:         typ,
			Severity:     model.SeverityWarning,
			ScheduleID:   model.Int64Ptr(scheduleID),
			CandidateIDs: ids,
			Message:      fmt.Sprintf("%s: %s", day, msg),
			DetectedAt:   r.now().UTC(),
		})
	}

	windows := make([]model.Window, len(blocks))
	valid := make([]bool, len(blocks))
	for i := range blocks {
		b := &blocks[i]
		w, err := b.Window()
		if err != nil {
			warn(model.CollisionBlockInterval, []int64{b.ID}, fmt.Sprintf("block %d %q has an empty interval", b.ID, b.Name))
			continue
		}
		if w.CrossesMidnight() {
			warn(model.CollisionBlockInterval, []int64{b.ID},
				fmt.Sprintf("block %d %q rolls past midnight (%s-%s)", b.ID, b.Name, b.Start, b.End))
		}
		windows[i] = w
		valid[i] = true
	}

	for i := range blocks {
		if !valid[i] {
			continue
		}
		for j := i + 1; j < len(blocks); j++ {
			if !valid[j] || !windows[i].Overlaps(windows[j]) {
				continue
			}
			warn(model.CollisionBlockOverlap, []int64{blocks[i].ID, blocks[j].ID},
				fmt.Sprintf("blocks %d %q and %d %q overlap", blocks[i].ID, blocks[i].Name, blocks[j].ID, blocks[j].Name))
		}
	}

	// Overnight blocks of the previous day run into this one.
	for _, p := range r.blocks[scheduleID][(day+6)%7] {
		pw, err := p.Window()
		if err != nil || !pw.CrossesMidnight() {
			continue
		}
		tail := pw.Shift(-1)
		for i := range blocks {
			if !valid[i] || !tail.Overlaps(windows[i]) {
				continue
			}
			warn(model.CollisionBlockOverlap, []int64{p.ID, blocks[i].ID},
				fmt.Sprintf("overnight block %d %q runs into block %d %q", p.ID, p.Name, blocks[i].ID, blocks[i].Name))
		}
	}
	return out
}
