package rules

import (
	"time"

	"github.com/sells-group/spotgrid/internal/model"
)

// Options parameterize the canonical rule set.
type Options struct {
	DirectResponsePatterns     []string
	PaidProgrammingRevenueType string
	BroadReachShare            float64
	NonprofitMinDuration       time.Duration
	ExtendedMinDuration        time.Duration
	MediaSectors               []string
	NonprofitSectors           []string
	GovernmentSectors          []string
}

// DefaultOptions returns the canonical thresholds.
func DefaultOptions() Options {
	return Options{
		DirectResponsePatterns:     []string{"worldlink", "direct response", "drtv", "mercury media"},
		PaidProgrammingRevenueType: "Paid Programming",
		BroadReachShare:            0.75,
		NonprofitMinDuration:       5 * time.Hour,
		ExtendedMinDuration:        12 * time.Hour,
		MediaSectors:               []string{"MEDIA"},
		NonprofitSectors:           []string{"NPO"},
		GovernmentSectors:          []string{"GOV"},
	}
}

// Rule ids of the canonical set.
const (
	RuleDirectResponse  = "direct_response_agency"
	RulePaidProgramming = "paid_programming"
	RuleMediaBroadReach = "media_broad_reach"
	RuleNonprofitLong   = "nonprofit_long_form"
	RuleExtendedContent = "extended_content"
	RuleGovernmentPSA   = "government_psa"
)

// DefaultRules builds the canonical rule set in its required precedence.
func DefaultRules(o Options) []Rule {
	return []Rule{
		{
			ID:            RuleDirectResponse,
			Priority:      10,
			Category:      model.CategoryDirectResponse,
			Justification: "agency or billing agency matches a direct-response agency",
			When: Any{
				AgencyContains(o.DirectResponsePatterns...),
				BillingAgencyContains(o.DirectResponsePatterns...),
			},
		},
		{
			ID:            RulePaidProgramming,
			Priority:      20,
			Category:      model.CategoryPaidProgramming,
			Justification: "revenue type is explicitly " + o.PaidProgrammingRevenueType,
			When:          RevenueTypeIs(o.PaidProgrammingRevenueType),
		},
		{
			ID:            RuleMediaBroadReach,
			Priority:      30,
			Category:      model.CategoryMultiLanguage,
			Justification: "auto-resolved, broad reach: media-sector campaign spans most of the broadcast day",
			SpansMultiple: true,
			When:          All{SectorIs(o.MediaSectors...), WindowShareAtLeast(o.BroadReachShare)},
		},
		{
			ID:            RuleNonprofitLong,
			Priority:      31,
			Category:      model.CategoryMultiLanguage,
			Justification: "auto-resolved, nonprofit: long-form nonprofit campaign",
			SpansMultiple: true,
			When:          All{SectorIs(o.NonprofitSectors...), DurationAtLeast(o.NonprofitMinDuration)},
		},
		{
			ID:            RuleExtendedContent,
			Priority:      32,
			Category:      model.CategoryMultiLanguage,
			Justification: "auto-resolved, extended content: duration exceeds the extended threshold",
			SpansMultiple: true,
			When:          DurationAtLeast(o.ExtendedMinDuration),
		},
		{
			ID:            RuleGovernmentPSA,
			Priority:      33,
			Category:      model.CategoryMultiLanguage,
			Justification: "auto-resolved, public service: government-sector spot",
			SpansMultiple: true,
			When:          SectorIs(o.GovernmentSectors...),
		},
	}
}
