// Package store persists spots, grids, assignments, collisions and runs.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spotgrid/internal/model"
)

var (
	// ErrStoreBusy means exclusive write access could not be obtained in time.
	ErrStoreBusy = eris.New("store busy")

	// ErrConstraint means the store rejected a record that breaks a schema invariant.
	ErrConstraint = eris.New("store constraint violation")

	// ErrNotFound is returned by single-row lookups.
	ErrNotFound = eris.New("not found")
)

// SpotFilter selects spots for a run. Spots are always returned in id order.
type SpotFilter struct {
	From    *time.Time
	To      *time.Time
	Market  string
	AfterID int64
	Limit   int
}

// CollisionFilter specifies criteria for listing collisions.
type CollisionFilter struct {
	Type   model.CollisionType `json:"type,omitempty"`
	Market string              `json:"market,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Lease is exclusive write access held by one run.
type Lease interface {
	// Renew extends the lease. It fails with ErrStoreBusy when another
	// writer has taken over.
	Renew(ctx context.Context) error
	Release(ctx context.Context) error
}

// Store defines the persistence interface for the assignment engine.
type Store interface {
	// Spots
	ListSpots(ctx context.Context, filter SpotFilter) ([]model.Spot, error)
	SaveSpots(ctx context.Context, spots []model.Spot) error

	// Grid
	LoadGrid(ctx context.Context) (*model.Grid, error)
	SaveGrid(ctx context.Context, grid *model.Grid) error

	// Assignments
	ListAssignments(ctx context.Context) ([]model.Assignment, error)
	SaveAssignments(ctx context.Context, batch []model.Assignment) error

	// Collisions
	RecordCollision(ctx context.Context, c model.Collision) error
	ListCollisions(ctx context.Context, filter CollisionFilter) ([]model.Collision, error)

	// Runs
	CreateRun(ctx context.Context, params model.RunParams) (*model.Run, error)
	CheckpointRun(ctx context.Context, runID string, lastSpotID int64, committed int) error
	FinishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary, runErr string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lifecycle
	AcquireWriter(ctx context.Context) (Lease, error)
	Migrate(ctx context.Context) error
	Close() error
}

// assignmentColumns is the column order shared by both backends.
var assignmentColumns = []string{
	"spot_id", "schedule_id", "block_id", "spanned_block_ids", "spans_multiple",
	"intent", "method", "needs_review", "review_reason", "rule_id", "rule_category", "justification",
}

const dateLayout = "2006-01-02"

func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	return t, eris.Wrapf(err, "store: parse date %q", s)
}

func parseNullDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseDate(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal")
	}
	return string(b), nil
}

func validateBatch(batch []model.Assignment) error {
	for i := range batch {
		if err := batch[i].Validate(); err != nil {
			return eris.Wrap(err, "store: save assignments")
		}
	}
	return nil
}
