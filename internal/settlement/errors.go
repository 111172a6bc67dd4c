package settlement

import "errors"

// Eligibility error kinds surfaced to callers with a stable code. None of
// these mutate state.
const (
	KindNotFound        = "not_found"
	KindMissingSeller   = "missing_seller"
	KindOwnCourse       = "own_course"
	KindAlreadyEnrolled = "already_enrolled"
	KindNotPayable      = "not_payable"
	KindInvalidAmount   = "invalid_amount"
)

// Error is a checkout eligibility failure with a machine-readable kind.
type Error struct {
	Kind    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// NewError creates an eligibility error.
func NewError(kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// AsError extracts an eligibility error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
