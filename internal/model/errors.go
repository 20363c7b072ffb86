package model

import (
	"fmt"

	"github.com/rotisserie/eris"
)

var (
	// ErrNoScheduleCoverage means a market has no active schedule on a date.
	ErrNoScheduleCoverage = eris.New("no schedule coverage")

	// ErrMalformedInterval means a time-in/time-out pair cannot be parsed or is empty.
	ErrMalformedInterval = eris.New("malformed interval")
)

// ConstraintViolation is an assignment record that breaks a data invariant.
// It is a hard error: the record is never written.
type ConstraintViolation struct {
	SpotID int64
	Reason string
}

func (e *ConstraintViolation) Error() string {
	return fmt.Sprintf("constraint violation for spot %d: %s", e.SpotID, e.Reason)
}
