package model

// CustomerIntent is the inferred advertiser preference for a spot.
type CustomerIntent string

const (
	IntentLanguageSpecific CustomerIntent = "language_specific"
	IntentTimeSpecific     CustomerIntent = "time_specific"
	IntentIndifferent      CustomerIntent = "indifferent"
	IntentNoGridCoverage   CustomerIntent = "no_grid_coverage"
)

// AssignmentMethod records how an assignment was produced.
type AssignmentMethod string

const (
	MethodGridComputed    AssignmentMethod = "grid_computed"
	MethodRuleApplied     AssignmentMethod = "rule_applied"
	MethodManualOverride  AssignmentMethod = "manual_override"
	MethodNoGridAvailable AssignmentMethod = "no_grid_available"
)

// Assignment is the resolution record for one spot. It deliberately carries
// no run identifiers or timestamps: re-running on unchanged inputs must
// reproduce it exactly.
type Assignment struct {
	SpotID          int64            `json:"spot_id"`
	ScheduleID      *int64           `json:"schedule_id"`
	BlockID         *int64           `json:"block_id"`
	SpannedBlockIDs []int64          `json:"spanned_block_ids"`
	SpansMultiple   bool             `json:"spans_multiple_blocks"`
	Intent          CustomerIntent   `json:"customer_intent"`
	Method          AssignmentMethod `json:"assignment_method"`
	NeedsReview     bool             `json:"needs_review"`
	ReviewReason    string           `json:"review_reason,omitempty"`
	RuleID          string           `json:"rule_id,omitempty"`
	RuleCategory    string           `json:"rule_category,omitempty"`
	Justification   string           `json:"justification,omitempty"`
}

// Validate checks the record invariants:
//   - spans multiple blocks: no single block, spanned list present
//   - no grid coverage: neither a block nor a spanned list
//   - rule applied: rule id and justification present
func (a *Assignment) Validate() error {
	violation := func(reason string) error {
		return &ConstraintViolation{SpotID: a.SpotID, Reason: reason}
	}

	switch a.Intent {
	case IntentLanguageSpecific, IntentTimeSpecific, IntentIndifferent, IntentNoGridCoverage:
	default:
		return violation("unknown customer intent " + string(a.Intent))
	}
	switch a.Method {
	case MethodGridComputed, MethodRuleApplied, MethodManualOverride, MethodNoGridAvailable:
	default:
		return violation("unknown assignment method " + string(a.Method))
	}

	if a.SpansMultiple {
		if a.BlockID != nil {
			return violation("spans multiple blocks but has a single block id")
		}
		if a.SpannedBlockIDs == nil {
			return violation("spans multiple blocks without a spanned block list")
		}
	} else if a.SpannedBlockIDs != nil {
		return violation("spanned block list set on a single-block assignment")
	}

	if a.Intent == IntentNoGridCoverage && (a.BlockID != nil || a.SpannedBlockIDs != nil) {
		return violation("no grid coverage but block references present")
	}

	if a.Method == MethodRuleApplied && (a.RuleID == "" || a.Justification == "") {
		return violation("rule applied without rule id and justification")
	}
	if a.Method != MethodRuleApplied && a.Method != MethodManualOverride && a.RuleID != "" {
		return violation("rule id set on a non-rule assignment")
	}
	return nil
}

// HasGridAssignment reports whether the spot was placed in at least one block.
func (a *Assignment) HasGridAssignment() bool {
	return a != nil && (a.BlockID != nil || len(a.SpannedBlockIDs) > 0)
}
