// Package spotfile reads aired-spot exports into model spots.
package spotfile

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/spotgrid/internal/model"
)

// Columns are the recognized header names. Only id, market, air_date,
// time_in, time_out and revenue are required.
var Columns = []string{
	"id", "market", "air_date", "time_in", "time_out", "duration", "kind",
	"revenue", "revenue_type", "agency", "sector", "billing_code", "language",
}

var required = []string{"id", "market", "air_date", "time_in", "time_out", "revenue"}

// ParseCSV reads a header row followed by one spot per row. Blank optional
// columns become absent values.
func ParseCSV(r io.Reader) ([]model.Spot, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "spotfile: read csv")
	}
	return decodeRows(records)
}

// decodeRows maps a header row plus data rows onto spots.
func decodeRows(records [][]string) ([]model.Spot, error) {
	if len(records) == 0 {
		return nil, nil
	}

	index := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return nil, eris.Errorf("spotfile: missing column %q", col)
		}
	}

	spots := make([]model.Spot, 0, len(records)-1)
	for n, row := range records[1:] {
		if blank(row) {
			continue
		}
		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		sp, err := parseRow(get)
		if err != nil {
			return nil, eris.Wrapf(err, "spotfile: row %d", n+2)
		}
		spots = append(spots, sp)
	}
	return spots, nil
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseRow(get func(string) string) (model.Spot, error) {
	id, err := strconv.ParseInt(get("id"), 10, 64)
	if err != nil {
		return model.Spot{}, eris.Wrapf(err, "id %q", get("id"))
	}
	airDate, err := time.Parse("2006-01-02", get("air_date"))
	if err != nil {
		return model.Spot{}, eris.Wrapf(err, "air_date %q", get("air_date"))
	}
	revenue, err := decimal.NewFromString(get("revenue"))
	if err != nil {
		return model.Spot{}, eris.Wrapf(err, "revenue %q", get("revenue"))
	}

	sp := model.Spot{
		ID:          id,
		Market:      get("market"),
		AirDate:     airDate,
		DayOfWeek:   airDate.Weekday(),
		TimeIn:      get("time_in"),
		TimeOut:     get("time_out"),
		Kind:        model.SpotKind(strings.ToLower(get("kind"))),
		Revenue:     revenue,
		RevenueType: get("revenue_type"),
		Agency:      model.StrPtr(get("agency")),
		Sector:      model.StrPtr(get("sector")),
		BillingCode: get("billing_code"),
		Language:    model.StrPtr(get("language")),
	}
	if sp.Kind == "" {
		sp.Kind = model.KindCommercial
	}

	sp.Duration, err = parseDuration(get("duration"))
	if err != nil {
		return model.Spot{}, err
	}
	if sp.Duration == 0 {
		// Malformed windows stay zero-length; the engine flags them.
		if w, err := sp.Window(); err == nil {
			sp.Duration = w.Length()
		}
	}
	return sp, nil
}

// parseDuration accepts whole seconds or a Go duration string.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, eris.Wrapf(err, "duration %q", s)
	}
	return d, nil
}
