package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RunStatus represents the state of an assignment run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
	RunStatusAborted  RunStatus = "aborted"
)

// RunParams are the control parameters of an assignment run.
type RunParams struct {
	From     *time.Time `json:"from,omitempty"`
	To       *time.Time `json:"to,omitempty"`
	Limit    int        `json:"limit,omitempty"`
	DryRun   bool       `json:"dry_run"`
	ResumeOf string     `json:"resume_of,omitempty"`
}

// Run is one execution of the assignment engine.
type Run struct {
	ID         string      `json:"id"`
	Status     RunStatus   `json:"status"`
	Params     RunParams   `json:"params"`
	LastSpotID int64       `json:"last_spot_id"`
	Committed  int         `json:"committed"`
	Summary    *RunSummary `json:"summary,omitempty"`
	Error      string      `json:"error,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// HardError is a record excluded from the write-back because it needs a code or data fix.
type HardError struct {
	SpotID int64  `json:"spot_id"`
	Reason string `json:"reason"`
}

// RunSummary is the machine-readable outcome printed by the CLI and stored on the run.
type RunSummary struct {
	RunID           string                `json:"run_id"`
	DryRun          bool                  `json:"dry_run"`
	SpotsLoaded     int                   `json:"spots_loaded"`
	SpotsExcluded   int                   `json:"spots_excluded"`
	RuleApplied     int                   `json:"rule_applied"`
	GridComputed    int                   `json:"grid_computed"`
	NoGrid          int                   `json:"no_grid"`
	ManualOverrides int                   `json:"manual_overrides"`
	NeedsReview     int                   `json:"needs_review"`
	Collisions      int                   `json:"collisions"`
	Written         int                   `json:"written"`
	Batches         int                   `json:"batches"`
	LastSpotID      int64                 `json:"last_spot_id"`
	HardErrors      []HardError           `json:"hard_errors,omitempty"`
	RuleHits        map[string]int        `json:"rule_hits,omitempty"`
	Report          *ReconciliationReport `json:"report,omitempty"`
}

// CategoryLine is one row of the reconciliation report.
type CategoryLine struct {
	Name              string          `json:"name"`
	Precedence        int             `json:"precedence"`
	Count             int             `json:"count"`
	Revenue           decimal.Decimal `json:"revenue"`
	Percent           float64         `json:"percent"`
	Reconciled        bool            `json:"reconciled"`
	AbsDiscrepancy    decimal.Decimal `json:"abs_discrepancy,omitempty"`
	RelDiscrepancy    float64         `json:"rel_discrepancy,omitempty"`
	DiscrepancyReason string          `json:"discrepancy_reason,omitempty"`
}

// ReconciliationReport is the contract consumed by the reporting layer.
type ReconciliationReport struct {
	Categories       []CategoryLine  `json:"categories"`
	InputCount       int             `json:"input_count"`
	CategorizedCount int             `json:"categorized_count"`
	DuplicateIDs     []int64         `json:"duplicate_ids,omitempty"`
	UnclaimedIDs     []int64         `json:"unclaimed_ids,omitempty"`
	GrandTotal       decimal.Decimal `json:"grand_total"`
	CategorizedTotal decimal.Decimal `json:"categorized_total"`
	AbsDiscrepancy   decimal.Decimal `json:"abs_discrepancy"`
	RelDiscrepancy   float64         `json:"rel_discrepancy"`
	Tolerance        decimal.Decimal `json:"tolerance"`
	ExcludedCount    int             `json:"excluded_count"`
	ExcludedRevenue  decimal.Decimal `json:"excluded_revenue"`
	Reconciled       bool            `json:"reconciled"`
}
