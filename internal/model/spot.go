package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SpotKind is the traffic-log kind of an aired spot.
type SpotKind string

const (
	KindCommercial SpotKind = "commercial"
	KindBonus      SpotKind = "bonus"
	KindProduction SpotKind = "production"
	KindService    SpotKind = "service"
	KindProgram    SpotKind = "program"
	KindPackage    SpotKind = "package"
	KindCredit     SpotKind = "credit"
)

// Spot is one aired advertisement instance. Spots are read-only to the engine.
type Spot struct {
	ID          int64           `json:"id"`
	Market      string          `json:"market"`
	AirDate     time.Time       `json:"air_date"`
	DayOfWeek   time.Weekday    `json:"day_of_week"`
	TimeIn      string          `json:"time_in"`
	TimeOut     string          `json:"time_out"`
	Duration    time.Duration   `json:"duration"`
	Kind        SpotKind        `json:"kind"`
	Revenue     decimal.Decimal `json:"revenue"`
	RevenueType string          `json:"revenue_type"`
	Agency      *string         `json:"agency,omitempty"`
	Sector      *string         `json:"sector,omitempty"`
	BillingCode string          `json:"billing_code"`
	Language    *string         `json:"language,omitempty"`
}

// Window parses the spot's air-time interval.
func (s *Spot) Window() (Window, error) {
	return ParseWindow(s.TimeIn, s.TimeOut)
}

// Billing parses the spot's billing code.
func (s *Spot) Billing() BillingCode {
	return ParseBillingCode(s.BillingCode)
}

// StrPtr returns a pointer to v. Empty strings map to nil so that
// blank source columns behave as absent values.
func StrPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}
