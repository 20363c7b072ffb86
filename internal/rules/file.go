package rules

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/spotgrid/internal/model"
)

// File is the YAML form of a rule set.
type File struct {
	Rules []RuleSpec `yaml:"rules"`
}

// RuleSpec is one rule as written in a rule file.
type RuleSpec struct {
	ID            string        `yaml:"id"`
	Priority      int           `yaml:"priority"`
	Category      string        `yaml:"category"`
	Justification string        `yaml:"justification"`
	SpansMultiple bool          `yaml:"spans_multiple"`
	Intent        string        `yaml:"intent"`
	When          PredicateSpec `yaml:"when"`
}

// PredicateSpec lists conditions that must all hold. Any holds when at
// least one nested spec holds.
type PredicateSpec struct {
	AgencyContains        []string        `yaml:"agency_contains"`
	BillingAgencyContains []string        `yaml:"billing_agency_contains"`
	RevenueType           string          `yaml:"revenue_type"`
	SectorIn              []string        `yaml:"sector_in"`
	MinDuration           string          `yaml:"min_duration"`
	MinWindowShare        float64         `yaml:"min_window_share"`
	Any                   []PredicateSpec `yaml:"any"`
}

// Build compiles the spec into a predicate.
func (p PredicateSpec) Build() (Predicate, error) {
	var all All

	if len(p.AgencyContains) > 0 {
		all = append(all, AgencyContains(p.AgencyContains...))
	}
	if len(p.BillingAgencyContains) > 0 {
		all = append(all, BillingAgencyContains(p.BillingAgencyContains...))
	}
	if p.RevenueType != "" {
		all = append(all, RevenueTypeIs(p.RevenueType))
	}
	if len(p.SectorIn) > 0 {
		all = append(all, SectorIs(p.SectorIn...))
	}
	if p.MinDuration != "" {
		d, err := time.ParseDuration(p.MinDuration)
		if err != nil {
			return nil, eris.Wrapf(err, "rules: min_duration %q", p.MinDuration)
		}
		all = append(all, DurationAtLeast(d))
	}
	if p.MinWindowShare > 0 {
		all = append(all, WindowShareAtLeast(p.MinWindowShare))
	}
	if len(p.Any) > 0 {
		var alts Any
		for _, sub := range p.Any {
			pred, err := sub.Build()
			if err != nil {
				return nil, err
			}
			alts = append(alts, pred)
		}
		all = append(all, alts)
	}

	switch len(all) {
	case 0:
		return nil, eris.New("rules: empty predicate")
	case 1:
		return all[0], nil
	default:
		return all, nil
	}
}

// LoadFile reads a rule file and returns its rules.
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: read %s", path)
	}
	return Parse(data)
}

// Parse decodes rule YAML.
func Parse(data []byte) ([]Rule, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "rules: parse")
	}
	if len(f.Rules) == 0 {
		return nil, eris.New("rules: file defines no rules")
	}

	out := make([]Rule, 0, len(f.Rules))
	for _, rs := range f.Rules {
		pred, err := rs.When.Build()
		if err != nil {
			return nil, eris.Wrapf(err, "rules: rule %q", rs.ID)
		}
		out = append(out, Rule{
			ID:            rs.ID,
			Priority:      rs.Priority,
			Category:      rs.Category,
			Justification: rs.Justification,
			SpansMultiple: rs.SpansMultiple,
			Intent:        model.CustomerIntent(rs.Intent),
			When:          pred,
		})
	}
	return out, nil
}
