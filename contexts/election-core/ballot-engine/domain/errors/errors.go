package errors

import "errors"

var (
	ErrInvalidVoteInput     = errors.New("invalid vote input")
	ErrVoteNotFound         = errors.New("vote not found")
	ErrVoteNotOwned         = errors.New("vote belongs to another voter")
	ErrGraceWindowExpired   = errors.New("grace window has expired")
	ErrVoteAlreadyFinalized = errors.New("vote is already finalized")
	ErrConflict             = errors.New("vote conflict")
)
