package rules

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/sells-group/spotgrid/internal/model"
)

// Predicate is a test over a typed spot. Every predicate is NULL-safe: a
// comparison against an absent field is false, never a default match.
type Predicate interface {
	Match(s *model.Spot) bool
	String() string
}

func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func foldAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if f := fold(p); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func containsAny(value string, patterns []string) bool {
	v := fold(value)
	if v == "" {
		return false
	}
	for _, p := range patterns {
		if strings.Contains(v, p) {
			return true
		}
	}
	return false
}

// All matches when every member matches. An empty All never matches.
type All []Predicate

func (a All) Match(s *model.Spot) bool {
	if len(a) == 0 {
		return false
	}
	for _, p := range a {
		if !p.Match(s) {
			return false
		}
	}
	return true
}

func (a All) String() string { return join(a, " AND ") }

// Any matches when at least one member matches.
type Any []Predicate

func (a Any) Match(s *model.Spot) bool {
	for _, p := range a {
		if p.Match(s) {
			return true
		}
	}
	return false
}

func (a Any) String() string { return join(a, " OR ") }

func join[T ~[]Predicate](ps T, sep string) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

type agencyContains struct{ patterns []string }

// AgencyContains matches a case-insensitive substring of the agency name.
// Spots without an agency never match.
func AgencyContains(patterns ...string) Predicate {
	return agencyContains{patterns: foldAll(patterns)}
}

func (p agencyContains) Match(s *model.Spot) bool {
	if s.Agency == nil {
		return false
	}
	return containsAny(*s.Agency, p.patterns)
}

func (p agencyContains) String() string {
	return fmt.Sprintf("agency contains %q", p.patterns)
}

type billingAgencyContains struct{ patterns []string }

// BillingAgencyContains matches any agency in the billing code's agency chain.
// The customer segment of a code with a chain is never inspected; a code
// without one is matched whole.
func BillingAgencyContains(patterns ...string) Predicate {
	return billingAgencyContains{patterns: foldAll(patterns)}
}

func (p billingAgencyContains) Match(s *model.Spot) bool {
	bc := s.Billing()
	if !bc.HasAgency() {
		return containsAny(bc.Customer, p.patterns)
	}
	for _, agency := range bc.AgencyChain {
		if containsAny(agency, p.patterns) {
			return true
		}
	}
	return false
}

func (p billingAgencyContains) String() string {
	return fmt.Sprintf("billing agency contains %q", p.patterns)
}

type revenueTypeIs struct{ value string }

// RevenueTypeIs matches the revenue-type label exactly (surrounding blanks ignored).
func RevenueTypeIs(value string) Predicate {
	return revenueTypeIs{value: strings.TrimSpace(value)}
}

func (p revenueTypeIs) Match(s *model.Spot) bool {
	return p.value != "" && strings.TrimSpace(s.RevenueType) == p.value
}

func (p revenueTypeIs) String() string {
	return fmt.Sprintf("revenue type = %q", p.value)
}

type sectorIs struct{ sectors []string }

// SectorIs matches one of the given sector codes, ignoring case.
func SectorIs(sectors ...string) Predicate {
	return sectorIs{sectors: foldAll(sectors)}
}

func (p sectorIs) Match(s *model.Spot) bool {
	if s.Sector == nil {
		return false
	}
	v := fold(*s.Sector)
	for _, sec := range p.sectors {
		if v == sec {
			return true
		}
	}
	return false
}

func (p sectorIs) String() string {
	return fmt.Sprintf("sector in %q", p.sectors)
}

type durationAtLeast struct{ min time.Duration }

// DurationAtLeast matches spots whose duration is at least min.
// A zero duration is treated as unknown.
func DurationAtLeast(min time.Duration) Predicate {
	return durationAtLeast{min: min}
}

func (p durationAtLeast) Match(s *model.Spot) bool {
	return p.min > 0 && s.Duration > 0 && s.Duration >= p.min
}

func (p durationAtLeast) String() string {
	return fmt.Sprintf("duration >= %s", p.min)
}

type windowShareAtLeast struct{ share float64 }

// WindowShareAtLeast matches spots whose air window covers at least share
// of the broadcast day. Unparsable windows never match.
func WindowShareAtLeast(share float64) Predicate {
	return windowShareAtLeast{share: share}
}

func (p windowShareAtLeast) Match(s *model.Spot) bool {
	if p.share <= 0 {
		return false
	}
	w, err := s.Window()
	if err != nil {
		return false
	}
	return w.DayShare() >= p.share
}

func (p windowShareAtLeast) String() string {
	return fmt.Sprintf("window share >= %.2f", p.share)
}
