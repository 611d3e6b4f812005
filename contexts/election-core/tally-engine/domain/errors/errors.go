package errors

import "errors"

var (
	ErrInvalidTallyInput  = errors.New("invalid tally input")
	ErrTallyNotConfigured = errors.New("tally is not configured for this election")
	ErrTallyForbidden     = errors.New("tally disclosure is not permitted for this caller")
	ErrConflict           = errors.New("tally conflict")
)
