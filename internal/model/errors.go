package model

import "github.com/rotisserie/eris"

var (
	// ErrInvalidCategory is returned for a shape whose category is unknown, when the
	// strict category policy is enabled.
	ErrInvalidCategory = eris.New("invalid category")

	// ErrMissingAttribute is returned when a shape lacks an attribute its category requires.
	ErrMissingAttribute = eris.New("missing attribute")

	// ErrInvalidAttribute is returned for negative, NaN or infinite attribute values.
	ErrInvalidAttribute = eris.New("invalid attribute")

	// ErrDivisionByZero is returned when a sketched attribute used as a relative-error
	// divisor is zero.
	ErrDivisionByZero = eris.New("division by zero")

	// ErrStoreUnavailable is returned when the reference store cannot be reached, the
	// query fails or times out.
	ErrStoreUnavailable = eris.New("reference store unavailable")

	// ErrInvalidScore is returned when a store yields a NaN or infinite score. It is a
	// service failure, not a validation error.
	ErrInvalidScore = eris.New("invalid score")
)

// IsValidation reports whether err is a request validation failure rather than a
// service failure.
func IsValidation(err error) bool {
	return eris.Is(err, ErrInvalidCategory) ||
		eris.Is(err, ErrMissingAttribute) ||
		eris.Is(err, ErrInvalidAttribute) ||
		eris.Is(err, ErrDivisionByZero)
}
