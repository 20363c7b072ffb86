// Package partition splits a run's spots into mutually exclusive revenue
// categories and reconciles the result against the input.
package partition

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sells-group/spotgrid/internal/model"
)

// Item is a spot together with its resolved assignment. A nil Assignment
// means the spot is still unassigned.
type Item struct {
	Spot       *model.Spot
	Assignment *model.Assignment
}

// ruleCategory returns the category a rule or operator fixed for the item.
func (it Item) ruleCategory() string {
	if it.Assignment == nil {
		return ""
	}
	return it.Assignment.RuleCategory
}

// Options configure the category predicates.
type Options struct {
	// SponsorshipRevenueTypes lists revenue-type labels that mark
	// sponsorship or roadblock campaigns.
	SponsorshipRevenueTypes []string
}

// DefaultOptions returns the standard partition options.
func DefaultOptions() Options {
	return Options{SponsorshipRevenueTypes: []string{"Sponsorship", "Roadblock"}}
}

type extraction struct {
	name  string
	claim func(Item) bool
}

// Partitioner runs the ordered category extractions.
type Partitioner struct {
	steps []extraction
}

// New builds a partitioner with the category precedence fixed by model.Categories.
func New(opts Options) *Partitioner {
	sponsorship := make(map[string]bool, len(opts.SponsorshipRevenueTypes))
	for _, rt := range opts.SponsorshipRevenueTypes {
		if rt = strings.ToLower(strings.TrimSpace(rt)); rt != "" {
			sponsorship[rt] = true
		}
	}

	unplaced := func(it Item) bool { return !it.Assignment.HasGridAssignment() }
	kind := func(it Item, k model.SpotKind) bool { return it.Spot.Kind == k }

	heuristics := map[string]func(Item) bool{
		model.CategoryDirectResponse:  func(Item) bool { return false },
		model.CategoryPaidProgramming: func(Item) bool { return false },
		model.CategoryBrandedContent: func(it Item) bool {
			return kind(it, model.KindProduction) && unplaced(it)
		},
		model.CategoryServices: func(it Item) bool {
			return kind(it, model.KindService) && unplaced(it)
		},
		model.CategoryIndividualLanguage: func(it Item) bool {
			a := it.Assignment
			return a != nil && a.BlockID != nil &&
				(a.Intent == model.IntentLanguageSpecific || a.Intent == model.IntentTimeSpecific)
		},
		model.CategorySponsorship: func(it Item) bool {
			return sponsorship[strings.ToLower(strings.TrimSpace(it.Spot.RevenueType))]
		},
		model.CategoryMultiLanguage: func(it Item) bool {
			a := it.Assignment
			return a != nil && (a.Intent == model.IntentIndifferent || a.SpansMultiple)
		},
		model.CategoryPackage: func(it Item) bool {
			return kind(it, model.KindPackage) && (it.Assignment == nil || it.Assignment.BlockID == nil)
		},
		model.CategoryOther: func(Item) bool { return true },
	}

	p := &Partitioner{}
	for _, name := range model.Categories {
		h := heuristics[name]
		p.steps = append(p.steps, extraction{
			name: name,
			claim: func(it Item) bool {
				if rc := it.ruleCategory(); rc != "" {
					return rc == name
				}
				return h(it)
			},
		})
	}
	return p
}

// Partition assigns every item to exactly one category. Each extraction
// claims matching items from the remaining pool and removes them, so an
// item taken by an earlier category is never seen by a later one. The
// catch-all category empties the pool.
func (p *Partitioner) Partition(items []Item) []model.CategoryResult {
	pool := make([]int, len(items))
	for i := range items {
		pool[i] = i
	}

	results := make([]model.CategoryResult, 0, len(p.steps))
	for prec, step := range p.steps {
		res := model.CategoryResult{
			Name:       step.name,
			Precedence: prec + 1,
			SpotIDs:    []int64{},
			Revenue:    decimal.Zero,
		}

		remaining := pool[:0]
		for _, idx := range pool {
			it := items[idx]
			if !step.claim(it) {
				remaining = append(remaining, idx)
				continue
			}
			res.SpotIDs = append(res.SpotIDs, it.Spot.ID)
			res.Revenue = res.Revenue.Add(it.Spot.Revenue)
		}
		pool = remaining
		res.Count = len(res.SpotIDs)
		results = append(results, res)
	}
	return results
}

// CategoryIndex maps each spot id to the category that claimed it.
func CategoryIndex(results []model.CategoryResult) map[int64]string {
	idx := make(map[int64]string)
	for _, r := range results {
		for _, id := range r.SpotIDs {
			idx[id] = r.Name
		}
	}
	return idx
}
