// Package engine orchestrates an assignment run: resolve every spot, write
// the records back in checkpointed batches, then partition and reconcile.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/sells-group/spotgrid/internal/intent"
	"github.com/sells-group/spotgrid/internal/locator"
	"github.com/sells-group/spotgrid/internal/model"
	"github.com/sells-group/spotgrid/internal/partition"
	"github.com/sells-group/spotgrid/internal/resilience"
	"github.com/sells-group/spotgrid/internal/rules"
	"github.com/sells-group/spotgrid/internal/schedule"
	"github.com/sells-group/spotgrid/internal/store"
)

// ErrHardErrors means some records were excluded from the write-back
// because they violate a data invariant.
var ErrHardErrors = eris.New("engine: records excluded with hard errors")

// Options configure a run.
type Options struct {
	BatchSize           int
	Workers             int
	CommitsPerSecond    float64
	ExcludeRevenueTypes []string
	BroadReachShare     float64
	Tolerance           decimal.Decimal
	Partition           partition.Options
	Retry               resilience.RetryConfig
}

// DefaultOptions returns the standard run options.
func DefaultOptions() Options {
	return Options{
		BatchSize:           500,
		Workers:             8,
		CommitsPerSecond:    20,
		ExcludeRevenueTypes: []string{"Trade"},
		BroadReachShare:     intent.DefaultBroadReachShare,
		Tolerance:           partition.DefaultTolerance,
		Partition:           partition.DefaultOptions(),
		Retry:               resilience.DefaultRetryConfig(),
	}
}

// Params select the spots of one run.
type Params struct {
	From        *time.Time
	To          *time.Time
	Limit       int
	DryRun      bool
	ResumeRunID string
}

// Engine runs assignment passes against a store.
type Engine struct {
	store store.Store
	rules *rules.Engine
	opts  Options
}

// New creates an Engine.
func New(st store.Store, re *rules.Engine, opts Options) *Engine {
	def := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.BroadReachShare <= 0 {
		opts.BroadReachShare = def.BroadReachShare
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = def.Retry
	}
	return &Engine{store: st, rules: re, opts: opts}
}

// Run executes one assignment run and returns its summary. The summary is
// returned alongside ErrHardErrors or a *partition.MismatchError so callers
// can still print it.
func (e *Engine) Run(ctx context.Context, p Params) (*model.RunSummary, error) {
	log := zap.L().With(zap.String("component", "engine"), zap.Bool("dry_run", p.DryRun))

	params := model.RunParams{From: p.From, To: p.To, Limit: p.Limit, DryRun: p.DryRun, ResumeOf: p.ResumeRunID}
	var afterID int64
	if p.ResumeRunID != "" {
		prior, err := e.store.GetRun(ctx, p.ResumeRunID)
		if err != nil {
			return nil, eris.Wrapf(err, "engine: load run %s to resume", p.ResumeRunID)
		}
		afterID = prior.LastSpotID
		if params.From == nil && params.To == nil && params.Limit == 0 {
			params.From, params.To, params.Limit = prior.Params.From, prior.Params.To, prior.Params.Limit
		}
		log.Info("resuming run", zap.String("resume_of", prior.ID), zap.Int64("after_spot_id", afterID))
	}

	summary := &model.RunSummary{DryRun: p.DryRun, RuleHits: make(map[string]int), LastSpotID: afterID}

	var (
		run   *model.Run
		lease store.Lease
	)
	if p.DryRun {
		summary.RunID = "dry-run-" + uuid.NewString()
	} else {
		retry := e.opts.Retry
		retry.OnRetry = resilience.RetryLogger("engine", "acquire writer")
		var err error
		lease, err = resilience.DoVal(ctx, retry, e.store.AcquireWriter)
		if err != nil {
			return nil, eris.Wrap(err, "engine: acquire writer")
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("engine: release writer", zap.Error(err))
			}
		}()

		run, err = e.store.CreateRun(ctx, params)
		if err != nil {
			return nil, eris.Wrap(err, "engine: create run")
		}
		summary.RunID = run.ID
		log = log.With(zap.String("run_id", run.ID))
	}

	err := e.execute(ctx, log, params, afterID, lease, summary)
	if run != nil {
		e.finish(ctx, log, run.ID, summary, err)
	}
	return summary, err
}

// finish records the outcome on the run row. It uses a context detached from
// cancellation so an aborted run still leaves its resumption point behind.
func (e *Engine) finish(ctx context.Context, log *zap.Logger, runID string, summary *model.RunSummary, runErr error) {
	status := model.RunStatusComplete
	msg := ""
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		status, msg = model.RunStatusAborted, runErr.Error()
	default:
		status, msg = model.RunStatusFailed, runErr.Error()
	}

	if err := e.store.FinishRun(context.WithoutCancel(ctx), runID, status, summary, msg); err != nil {
		log.Error("engine: finish run", zap.Error(err))
		return
	}
	log.Info("run finished",
		zap.String("status", string(status)),
		zap.Int("written", summary.Written),
		zap.Int64("last_spot_id", summary.LastSpotID),
	)
}

func (e *Engine) execute(ctx context.Context, log *zap.Logger, params model.RunParams, afterID int64, lease store.Lease, summary *model.RunSummary) error {
	grid, err := e.store.LoadGrid(ctx)
	if err != nil {
		return eris.Wrap(err, "engine: load grid")
	}
	var sink schedule.CollisionSink
	if !params.DryRun {
		sink = e.store
	}
	reg := schedule.NewRegistry(*grid, sink)
	reg.ValidateBlocks(ctx)

	spots, err := e.store.ListSpots(ctx, store.SpotFilter{From: params.From, To: params.To, Limit: params.Limit})
	if err != nil {
		return eris.Wrap(err, "engine: list spots")
	}
	summary.SpotsLoaded = len(spots)

	prior, err := e.priorAssignments(ctx)
	if err != nil {
		return err
	}

	included, excluded, excludedRevenue := e.exclude(spots)
	summary.SpotsExcluded = excluded

	rs := newResolveSet(e.rules, locator.New(reg), intent.NewResolver(e.opts.BroadReachShare))
	records, err := rs.resolveAll(ctx, included, prior, afterID, e.opts.Workers)
	if err != nil {
		return err
	}
	summary.Collisions = reg.Collisions()

	var pending []model.Assignment
	for i := range records {
		rec := &records[i]
		switch rec.source {
		case sourceManual:
			summary.ManualOverrides++
		case sourceCommitted:
		case sourceComputed:
			tally(summary, rec.assignment)
			if err := rec.assignment.Validate(); err != nil {
				summary.HardErrors = append(summary.HardErrors, hardError(rec.assignment.SpotID, err))
				rec.invalid = true
				continue
			}
			pending = append(pending, *rec.assignment)
		}
		if rec.assignment != nil && rec.assignment.NeedsReview {
			summary.NeedsReview++
		}
	}

	if !params.DryRun {
		if err := e.write(ctx, log, lease, summary, pending); err != nil {
			return err
		}
	}

	items := make([]partition.Item, len(records))
	for i, rec := range records {
		items[i] = partition.Item{Spot: rec.spot}
		if !rec.invalid {
			items[i].Assignment = rec.assignment
		}
	}
	results := partition.New(e.opts.Partition).Partition(items)
	report := partition.Reconcile(items, results, e.opts.Tolerance)
	report.ExcludedCount = excluded
	report.ExcludedRevenue = excludedRevenue
	summary.Report = report

	if err := partition.Check(report); err != nil {
		log.Error("reconciliation failed", zap.Error(err))
		return err
	}
	if len(summary.HardErrors) > 0 {
		return eris.Wrapf(ErrHardErrors, "%d records", len(summary.HardErrors))
	}
	return nil
}

func (e *Engine) priorAssignments(ctx context.Context) (map[int64]*model.Assignment, error) {
	list, err := e.store.ListAssignments(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "engine: list assignments")
	}
	out := make(map[int64]*model.Assignment, len(list))
	for i := range list {
		out[list[i].SpotID] = &list[i]
	}
	return out, nil
}

// exclude drops spots whose revenue type is never categorized.
func (e *Engine) exclude(spots []model.Spot) ([]*model.Spot, int, decimal.Decimal) {
	fold := cases.Fold()
	skip := make(map[string]bool, len(e.opts.ExcludeRevenueTypes))
	for _, rt := range e.opts.ExcludeRevenueTypes {
		skip[fold.String(strings.TrimSpace(rt))] = true
	}

	included := make([]*model.Spot, 0, len(spots))
	excluded := 0
	revenue := decimal.Zero
	for i := range spots {
		if skip[fold.String(strings.TrimSpace(spots[i].RevenueType))] {
			excluded++
			revenue = revenue.Add(spots[i].Revenue)
			continue
		}
		included = append(included, &spots[i])
	}
	return included, excluded, revenue
}

func tally(summary *model.RunSummary, a *model.Assignment) {
	switch a.Method {
	case model.MethodRuleApplied:
		summary.RuleApplied++
		summary.RuleHits[a.RuleID]++
	case model.MethodNoGridAvailable:
		summary.NoGrid++
	case model.MethodGridComputed:
		summary.GridComputed++
	}
}

func hardError(spotID int64, err error) model.HardError {
	var cv *model.ConstraintViolation
	if errors.As(err, &cv) {
		return model.HardError{SpotID: cv.SpotID, Reason: cv.Reason}
	}
	return model.HardError{SpotID: spotID, Reason: fmt.Sprint(err)}
}

// storedView is the partition of the selected spots under their stored
// assignments.
type storedView struct {
	items           []partition.Item
	results         []model.CategoryResult
	excluded        int
	excludedRevenue decimal.Decimal
}

func (e *Engine) stored(ctx context.Context, p Params) (*storedView, error) {
	spots, err := e.store.ListSpots(ctx, store.SpotFilter{From: p.From, To: p.To, Limit: p.Limit})
	if err != nil {
		return nil, eris.Wrap(err, "engine: list spots")
	}
	prior, err := e.priorAssignments(ctx)
	if err != nil {
		return nil, err
	}

	included, excluded, excludedRevenue := e.exclude(spots)
	items := make([]partition.Item, len(included))
	for i, sp := range included {
		items[i] = partition.Item{Spot: sp, Assignment: prior[sp.ID]}
	}
	return &storedView{
		items:           items,
		results:         partition.New(e.opts.Partition).Partition(items),
		excluded:        excluded,
		excludedRevenue: excludedRevenue,
	}, nil
}

// Reconcile partitions the stored assignments of the selected spots without
// resolving or writing anything. Spots without a stored record are
// partitioned as unassigned.
func (e *Engine) Reconcile(ctx context.Context, p Params) (*model.ReconciliationReport, error) {
	v, err := e.stored(ctx, p)
	if err != nil {
		return nil, err
	}
	report := partition.Reconcile(v.items, v.results, e.opts.Tolerance)
	report.ExcludedCount = v.excluded
	report.ExcludedRevenue = v.excludedRevenue
	return report, partition.Check(report)
}

// SpotCategories maps each selected spot to the category its stored
// assignment places it in. Excluded spots are absent.
func (e *Engine) SpotCategories(ctx context.Context, p Params) (map[int64]string, error) {
	v, err := e.stored(ctx, p)
	if err != nil {
		return nil, err
	}
	return partition.CategoryIndex(v.results), nil
}
