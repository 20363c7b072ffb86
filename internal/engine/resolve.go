package engine

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/spotgrid/internal/intent"
	"github.com/sells-group/spotgrid/internal/locator"
	"github.com/sells-group/spotgrid/internal/model"
	"github.com/sells-group/spotgrid/internal/rules"
)

type recordSource int

const (
	sourceComputed recordSource = iota
	sourceManual
	sourceCommitted
)

// record is one spot's slot in a run.
type record struct {
	spot       *model.Spot
	assignment *model.Assignment
	source     recordSource
	invalid    bool
}

// resolveSet bundles the pure resolution stages.
type resolveSet struct {
	rules    *rules.Engine
	locator  *locator.Locator
	resolver *intent.Resolver
}

func newResolveSet(re *rules.Engine, loc *locator.Locator, res *intent.Resolver) *resolveSet {
	return &resolveSet{rules: re, locator: loc, resolver: res}
}

// resolveAll resolves spots in parallel. Output order matches input order.
// Manual overrides are carried verbatim, and on resume spots at or before
// afterID reuse their committed record.
func (rs *resolveSet) resolveAll(ctx context.Context, spots []*model.Spot, prior map[int64]*model.Assignment, afterID int64, workers int) ([]record, error) {
	out := make([]record, len(spots))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, sp := range spots {
		out[i].spot = sp
		if a, ok := prior[sp.ID]; ok {
			if a.Method == model.MethodManualOverride {
				out[i].assignment, out[i].source = a, sourceManual
				continue
			}
			if afterID > 0 && sp.ID <= afterID {
				out[i].assignment, out[i].source = a, sourceCommitted
				continue
			}
		}

		g.Go(func() error {
			a, err := rs.resolve(gctx, sp)
			if err != nil {
				return err
			}
			out[i].assignment = a
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "engine: resolve spots")
	}
	return out, nil
}

// resolve produces the assignment for one spot: rules first, then the grid.
func (rs *resolveSet) resolve(ctx context.Context, sp *model.Spot) (*model.Assignment, error) {
	if m := rs.rules.Apply(sp); m != nil {
		a := m.Assignment(sp.ID)
		return &a, nil
	}

	res, err := rs.locator.Locate(ctx, locator.RequestFor(sp))
	if err != nil {
		if errors.Is(err, model.ErrMalformedInterval) {
			return &model.Assignment{
				SpotID:       sp.ID,
				Intent:       model.IntentNoGridCoverage,
				Method:       model.MethodNoGridAvailable,
				NeedsReview:  true,
				ReviewReason: "malformed air time " + sp.TimeIn + "-" + sp.TimeOut,
			}, nil
		}
		return nil, err
	}

	r := rs.resolver.Resolve(sp, res)
	a := &model.Assignment{
		SpotID:          sp.ID,
		ScheduleID:      r.ScheduleID,
		BlockID:         r.BlockID,
		SpannedBlockIDs: r.SpannedBlockIDs,
		SpansMultiple:   r.SpansMultiple,
		Intent:          r.Intent,
		Method:          model.MethodGridComputed,
	}

	switch {
	case res.Schedule == nil:
		a.Method = model.MethodNoGridAvailable
		a.NeedsReview, a.ReviewReason = true, "no active schedule for market "+sp.Market
	case r.Intent == model.IntentNoGridCoverage:
		a.Method = model.MethodNoGridAvailable
		a.NeedsReview, a.ReviewReason = true, "no block covers the air time"
	case res.Coverage == locator.CoveragePartial:
		a.NeedsReview, a.ReviewReason = true, "partial grid coverage"
	}
	return a, nil
}
