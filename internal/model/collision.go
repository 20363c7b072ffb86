package model

import "time"

// CollisionType classifies a schedule registry anomaly.
type CollisionType string

const (
	CollisionMarketOverlap CollisionType = "market_overlap"
	CollisionBlockOverlap  CollisionType = "block_overlap"
	CollisionBlockInterval CollisionType = "block_interval"
)

// Severity of a collision record.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Collision is an append-only observability record emitted by the schedule registry.
type Collision struct {
	ID           int64         `json:"id,omitempty"`
	Type         CollisionType `json:"type"`
	Severity     Severity      `json:"severity"`
	Market       string        `json:"market,omitempty"`
	ScheduleID   *int64        `json:"schedule_id,omitempty"`
	Date         *time.Time    `json:"date,omitempty"`
	CandidateIDs []int64       `json:"candidate_ids"`
	ChosenID     *int64        `json:"chosen_id,omitempty"`
	Message      string        `json:"message"`
	DetectedAt   time.Time     `json:"detected_at"`
}
