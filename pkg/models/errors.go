// Package models defines the data types shared by the curve fitting,
// butterfly and reporting packages.
package models

import "errors"

// Error taxonomy shared by the analytics packages. Call sites wrap these with
// fmt.Errorf("%w: ...") so callers can test with errors.Is.
var (
	// ErrValidation marks malformed input: empty or mismatched series,
	// wrong parameter counts, inverted bounds.
	ErrValidation = errors.New("validation error")

	// ErrNumericalDegeneracy marks inputs the math cannot handle: zero
	// variance, zero standard deviation, non-positive decay parameters.
	ErrNumericalDegeneracy = errors.New("numerical degeneracy")

	// ErrNonConvergence marks an optimization that exhausted its budget.
	// It is recorded as a quality signal and never aborts a run.
	ErrNonConvergence = errors.New("optimization did not converge")
)
