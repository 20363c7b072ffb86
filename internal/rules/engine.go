// Package rules evaluates precedence-ordered business rules that pre-empt
// grid-based resolution of a spot.
package rules

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spotgrid/internal/model"
)

// Rule is a predicate/action pair. Lower Priority values are evaluated first.
type Rule struct {
	ID            string
	Priority      int
	Category      string
	Justification string
	SpansMultiple bool
	Intent        model.CustomerIntent
	When          Predicate
}

// Match records which rule fired for a spot.
type Match struct {
	RuleID        string               `json:"rule_id"`
	Category      string               `json:"category"`
	Justification string               `json:"justification"`
	SpansMultiple bool                 `json:"spans_multiple"`
	Intent        model.CustomerIntent `json:"intent"`
}

// Assignment converts a match into the spot's assignment record. Rule
// matches never reference a schedule or a single block; a multi-block
// action records an empty, present spanned-block list.
func (m *Match) Assignment(spotID int64) model.Assignment {
	a := model.Assignment{
		SpotID:        spotID,
		SpansMultiple: m.SpansMultiple,
		Intent:        m.Intent,
		Method:        model.MethodRuleApplied,
		RuleID:        m.RuleID,
		RuleCategory:  m.Category,
		Justification: m.Justification,
	}
	if m.SpansMultiple {
		a.SpannedBlockIDs = []int64{}
	}
	return a
}

// Engine evaluates rules in priority order; the first match wins.
type Engine struct {
	rules []Rule
}

// NewEngine validates and orders a rule set.
func NewEngine(rules []Rule) (*Engine, error) {
	seen := make(map[string]bool, len(rules))
	ordered := make([]Rule, 0, len(rules))

	for _, r := range rules {
		switch {
		case r.ID == "":
			return nil, eris.New("rules: rule without id")
		case seen[r.ID]:
			return nil, eris.Errorf("rules: duplicate rule id %q", r.ID)
		case !model.IsCategory(r.Category):
			return nil, eris.Errorf("rules: rule %q targets unknown category %q", r.ID, r.Category)
		case r.When == nil:
			return nil, eris.Errorf("rules: rule %q has no predicate", r.ID)
		case r.Justification == "":
			return nil, eris.Errorf("rules: rule %q has no justification", r.ID)
		}
		seen[r.ID] = true

		if r.Intent == "" {
			r.Intent = model.IntentIndifferent
		}
		switch r.Intent {
		case model.IntentLanguageSpecific, model.IntentTimeSpecific, model.IntentIndifferent:
		default:
			return nil, eris.Errorf("rules: rule %q cannot assign intent %q", r.ID, r.Intent)
		}
		ordered = append(ordered, r)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})
	return &Engine{rules: ordered}, nil
}

// Rules returns the rules in evaluation order.
func (e *Engine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Apply returns the first matching rule for s, or nil to fall through to the grid.
func (e *Engine) Apply(s *model.Spot) *Match {
	for i := range e.rules {
		r := &e.rules[i]
		if !r.When.Match(s) {
			continue
		}
		return &Match{
			RuleID:        r.ID,
			Category:      r.Category,
			Justification: r.Justification,
			SpansMultiple: r.SpansMultiple,
			Intent:        r.Intent,
		}
	}
	return nil
}
