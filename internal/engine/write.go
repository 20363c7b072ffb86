package engine

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/spotgrid/internal/model"
	"github.com/sells-group/spotgrid/internal/resilience"
	"github.com/sells-group/spotgrid/internal/store"
)

// write commits records in batches. Each batch is retried on a busy store
// and paced by the commit limiter. After the checkpoint lands the writer
// lease is renewed. A batch rejected by a constraint is re-committed record
// by record so only the offending records are lost.
func (e *Engine) write(ctx context.Context, log *zap.Logger, lease store.Lease, summary *model.RunSummary, records []model.Assignment) error {
	limit := rate.Inf
	if e.opts.CommitsPerSecond > 0 {
		limit = rate.Limit(e.opts.CommitsPerSecond)
	}
	limiter := rate.NewLimiter(limit, 1)

	retry := e.opts.Retry
	retry.OnRetry = resilience.RetryLogger("engine", "save assignments")

	for start := 0; start < len(records); start += e.opts.BatchSize {
		// Committed batches stay valid if the run stops here.
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "engine: cancelled between batches")
		}
		end := min(start+e.opts.BatchSize, len(records))
		batch := records[start:end]

		if err := limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "engine: commit pacing")
		}

		err := resilience.Do(ctx, retry, func(ctx context.Context) error {
			return e.store.SaveAssignments(ctx, batch)
		})
		written := len(batch)
		if err != nil {
			if !isConstraint(err) {
				return eris.Wrapf(err, "engine: save batch ending at spot %d", batch[len(batch)-1].SpotID)
			}
			log.Warn("batch rejected by constraint, retrying record by record",
				zap.Int64("first_spot_id", batch[0].SpotID), zap.Error(err))
			if written, err = e.writeEach(ctx, retry, summary, batch); err != nil {
				return err
			}
		}

		summary.Written += written
		summary.Batches++
		summary.LastSpotID = batch[len(batch)-1].SpotID
		// The batch is durable, so its checkpoint must land even if the run was cancelled meanwhile.
		if err := e.store.CheckpointRun(context.WithoutCancel(ctx), summary.RunID, summary.LastSpotID, summary.Written); err != nil {
			return eris.Wrap(err, "engine: checkpoint")
		}
		if err := lease.Renew(context.WithoutCancel(ctx)); err != nil {
			return eris.Wrap(err, "engine: renew writer")
		}
		log.Debug("batch committed",
			zap.Int("size", len(batch)),
			zap.Int("written", written),
			zap.Int64("last_spot_id", summary.LastSpotID))
	}
	return nil
}

func (e *Engine) writeEach(ctx context.Context, retry resilience.RetryConfig, summary *model.RunSummary, batch []model.Assignment) (int, error) {
	written := 0
	for i := range batch {
		one := batch[i : i+1]
		err := resilience.Do(ctx, retry, func(ctx context.Context) error {
			return e.store.SaveAssignments(ctx, one)
		})
		switch {
		case err == nil:
			written++
		case isConstraint(err):
			summary.HardErrors = append(summary.HardErrors, hardError(one[0].SpotID, err))
		default:
			return written, eris.Wrapf(err, "engine: save spot %d", one[0].SpotID)
		}
	}
	return written, nil
}

func isConstraint(err error) bool {
	var cv *model.ConstraintViolation
	return errors.Is(err, store.ErrConstraint) || errors.As(err, &cv)
}
