package model

import "strings"

// BillingCode is a parsed "Agency[:SubAgency...]:Customer" billing reference.
type BillingCode struct {
	Raw         string   `json:"raw"`
	AgencyChain []string `json:"agency_chain,omitempty"`
	Customer    string   `json:"customer"`
}

// ParseBillingCode splits on the last colon: everything before it is the
// agency chain, everything after it is the customer. A code without a colon
// is a direct (agency-less) customer.
func ParseBillingCode(raw string) BillingCode {
	bc := BillingCode{Raw: raw}
	raw = strings.TrimSpace(raw)
	idx := strings.LastIndex(raw, ":")
	if idx < 0 {
		bc.Customer = raw
		return bc
	}

	bc.Customer = strings.TrimSpace(raw[idx+1:])
	for _, part := range strings.Split(raw[:idx], ":") {
		if part = strings.TrimSpace(part); part != "" {
			bc.AgencyChain = append(bc.AgencyChain, part)
		}
	}
	return bc
}

// HasAgency reports whether the code names at least one agency.
func (b BillingCode) HasAgency() bool {
	return len(b.AgencyChain) > 0
}
