// Package intent infers what an advertiser bought from the blocks a spot aired in.
package intent

import (
	"golang.org/x/text/cases"

	"github.com/sells-group/spotgrid/internal/locator"
	"github.com/sells-group/spotgrid/internal/model"
)

// DefaultBroadReachShare is the share of the broadcast day above which a
// multi-block window is read as a rotator/bonus placement.
const DefaultBroadReachShare = 0.75

// Resolution is the intent classification for one spot.
type Resolution struct {
	Intent          model.CustomerIntent
	SpansMultiple   bool
	ScheduleID      *int64
	BlockID         *int64
	SpannedBlockIDs []int64
}

// Resolver classifies locator results. It is a pure function of its inputs.
type Resolver struct {
	broadReach float64
}

// NewResolver creates a Resolver. A non-positive threshold selects the default.
func NewResolver(broadReachShare float64) *Resolver {
	if broadReachShare <= 0 {
		broadReachShare = DefaultBroadReachShare
	}
	return &Resolver{broadReach: broadReachShare}
}

// Resolve maps a spot and its located blocks to a customer intent:
//   - no blocks: no_grid_coverage
//   - one block: language_specific, or time_specific when the spot declares a
//     different language than the block
//   - several blocks: indifferent when the window covers more than the
//     broad-reach share of the day, time_specific otherwise
func (r *Resolver) Resolve(spot *model.Spot, res locator.Result) Resolution {
	out := Resolution{}
	if res.Schedule != nil {
		out.ScheduleID = model.Int64Ptr(res.Schedule.ID)
	}

	switch {
	case res.Coverage == locator.CoverageNone || len(res.Blocks) == 0:
		out.Intent = model.IntentNoGridCoverage

	case len(res.Blocks) == 1:
		b := res.Blocks[0]
		out.BlockID = model.Int64Ptr(b.ID)
		out.Intent = model.IntentLanguageSpecific
		if r.languageDiffers(spot.Language, b.Language) {
			out.Intent = model.IntentTimeSpecific
		}

	default:
		out.SpansMultiple = true
		out.SpannedBlockIDs = make([]int64, len(res.Blocks))
		for i, b := range res.Blocks {
			out.SpannedBlockIDs[i] = b.ID
		}
		out.Intent = model.IntentTimeSpecific
		if res.Window.DayShare() > r.broadReach {
			out.Intent = model.IntentIndifferent
		}
	}
	return out
}

// languageDiffers is NULL-safe: a spot without a declared language never differs.
func (r *Resolver) languageDiffers(declared *string, block string) bool {
	if declared == nil || *declared == "" || block == "" {
		return false
	}
	// Casers carry state, so each call folds with its own.
	fold := cases.Fold()
	return fold.String(*declared) != fold.String(block)
}
