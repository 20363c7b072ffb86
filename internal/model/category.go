package model

import "github.com/shopspring/decimal"

// Revenue category names, in partition precedence order.
const (
	CategoryDirectResponse     = "Direct Response"
	CategoryPaidProgramming    = "Paid Programming"
	CategoryBrandedContent     = "Branded Content"
	CategoryServices           = "Services"
	CategoryIndividualLanguage = "Individual Language"
	CategorySponsorship        = "Sponsorship / Roadblock"
	CategoryMultiLanguage      = "Multi-Language"
	CategoryPackage            = "Package"
	CategoryOther              = "Other"
)

// Categories lists every category in precedence order.
var Categories = []string{
	CategoryDirectResponse,
	CategoryPaidProgramming,
	CategoryBrandedContent,
	CategoryServices,
	CategoryIndividualLanguage,
	CategorySponsorship,
	CategoryMultiLanguage,
	CategoryPackage,
	CategoryOther,
}

// IsCategory reports whether name is a known category.
func IsCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}

// CategoryResult is the per-run aggregate for one category.
type CategoryResult struct {
	Name       string          `json:"name"`
	Precedence int             `json:"precedence"`
	SpotIDs    []int64         `json:"spot_ids"`
	Revenue    decimal.Decimal `json:"revenue"`
	Count      int             `json:"count"`
}
