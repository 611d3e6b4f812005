package entities

import "time"

// VoteState is the explicit lifecycle state of a cast vote. A vote is counted
// in the tally if and only if it reaches StateConfirmed; confirmed and undone
// are terminal.
type VoteState string

const (
	StatePending   VoteState = "pending"
	StateConfirmed VoteState = "confirmed"
	StateUndone    VoteState = "undone"
)

// VoteRecord is one cast vote. Records are never destroyed; terminal records
// are retained as the audit trail.
type VoteRecord struct {
	VoteID        string
	ElectionID    string
	CandidateID   string
	CandidateName string
	VoterID       string
	State         VoteState
	CastAt        time.Time
	GraceEndsAt   time.Time
	FinalizedAt   *time.Time
	UndoneAt      *time.Time
}

// Terminal reports whether the record can never change state again.
func (v VoteRecord) Terminal() bool {
	return v.State == StateConfirmed || v.State == StateUndone
}

// UndoableAt reports whether the originator may still retract the vote.
// Undo is allowed strictly before the grace window ends.
func (v VoteRecord) UndoableAt(now time.Time) bool {
	return v.State == StatePending && now.UTC().Before(v.GraceEndsAt.UTC())
}

// DueAt reports whether the reaper may finalize the vote. Finalization must
// never happen before the vote's own grace window has elapsed.
func (v VoteRecord) DueAt(now time.Time) bool {
	return v.State == StatePending && !now.UTC().Before(v.GraceEndsAt.UTC())
}
