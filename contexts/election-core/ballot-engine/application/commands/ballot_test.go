package commands

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quorum/contexts/election-core/ballot-engine/adapters/memory"
	"quorum/contexts/election-core/ballot-engine/domain/entities"
	domainerrors "quorum/contexts/election-core/ballot-engine/domain/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newBallotUseCase(store *memory.Store, clock *fakeClock) BallotUseCase {
	return BallotUseCase{
		Votes:              store,
		Clock:              clock,
		IDGen:              store,
		DefaultGracePeriod: 20 * time.Second,
	}
}

func TestCastVoteStartsPendingWithGraceWindow(t *testing.T) {
	store := memory.NewStore(nil)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	uc := newBallotUseCase(store, clock)

	vote, err := uc.CastVote(context.Background(), CastVoteCommand{
		ElectionID:         "election-1",
		CandidateID:        "candidate-1",
		CandidateName:      "Ada Lovelace",
		VoterID:            "voter-1",
		GracePeriodSeconds: 30,
	})
	if err != nil {
		t.Fatalf("cast vote failed: %v", err)
	}
	if vote.State != entities.StatePending {
		t.Fatalf("expected pending state, got %s", vote.State)
	}
	if got, want := vote.GraceEndsAt, clock.Now().Add(30*time.Second); !got.Equal(want) {
		t.Fatalf("expected grace end %s, got %s", want, got)
	}
	if vote.VoteID == "" {
		t.Fatalf("expected generated vote id")
	}
}

func TestCastVoteAppliesDefaultGracePeriod(t *testing.T) {
	store := memory.NewStore(nil)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	uc := newBallotUseCase(store, clock)

	vote, err := uc.CastVote(context.Background(), CastVoteCommand{
		ElectionID:    "election-1",
		CandidateID:   "candidate-1",
		CandidateName: "Ada Lovelace",
	})
	if err != nil {
		t.Fatalf("cast vote failed: %v", err)
	}
	if got, want := vote.GraceEndsAt, clock.Now().Add(20*time.Second); !got.Equal(want) {
		t.Fatalf("expected default grace end %s, got %s", want, got)
	}
}

func TestCastVoteRejectsInvalidInput(t *testing.T) {
	store := memory.NewStore(nil)
	clock := &fakeClock{now: time.Now().UTC()}
	uc := newBallotUseCase(store, clock)

	cases := []CastVoteCommand{
		{CandidateID: "candidate-1", CandidateName: "Ada"},
		{ElectionID: "election-1", CandidateName: "Ada"},
		{ElectionID: "election-1", CandidateID: "candidate-1"},
		{ElectionID: "election-1", CandidateID: "candidate-1", CandidateName: "Ada", GracePeriodSeconds: -5},
	}
	for i, cmd := range cases {
		if _, err := uc.CastVote(context.Background(), cmd); !errors.Is(err, domainerrors.ErrInvalidVoteInput) {
			t.Fatalf("case %d: expected ErrInvalidVoteInput, got %v", i, err)
		}
	}
}

func TestUndoVoteInsideGraceWindow(t *testing.T) {
	store := memory.NewStore(nil)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	uc := newBallotUseCase(store, clock)

	vote, err := uc.CastVote(context.Background(), CastVoteCommand{
		ElectionID:         "election-1",
		CandidateID:        "candidate-1",
		CandidateName:      "Ada Lovelace",
		VoterID:            "voter-1",
		GracePeriodSeconds: 30,
	})
	if err != nil {
		t.Fatalf("cast vote failed: %v", err)
	}

	clock.Advance(5 * time.Second)
	undone, err := uc.UndoVote(context.Background(), UndoVoteCommand{VoteID: vote.VoteID, VoterID: "voter-1"})
	if err != nil {
		t.Fatalf("undo vote failed: %v", err)
	}
	if undone.State != entities.StateUndone {
		t.Fatalf("expected undone state, got %s", undone.State)
	}
	if undone.UndoneAt == nil {
		t.Fatalf("expected undone timestamp")
	}
}

func TestUndoVoteRefusedAtWindowBoundary(t *testing.T) {
	store := memory.NewStore(nil)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	uc := newBallotUseCase(store, clock)

	vote, err := uc.CastVote(context.Background(), CastVoteCommand{
		ElectionID:         "election-1",
		CandidateID:        "candidate-1",
		CandidateName:      "Ada Lovelace",
		VoterID:            "voter-1",
		GracePeriodSeconds: 30,
	})
	if err != nil {
		t.Fatalf("cast vote failed: %v", err)
	}

	// Exactly at the boundary counts as expired even before the reaper runs.
	clock.Advance(30 * time.Second)
	if _, err := uc.UndoVote(context.Background(), UndoVoteCommand{VoteID: vote.VoteID, VoterID: "voter-1"}); !errors.Is(err, domainerrors.ErrGraceWindowExpired) {
		t.Fatalf("expected ErrGraceWindowExpired, got %v", err)
	}
}

func TestUndoVoteRejectsNonOwner(t *testing.T) {
	store := memory.NewStore(nil)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	uc := newBallotUseCase(store, clock)

	vote, err := uc.CastVote(context.Background(), CastVoteCommand{
		ElectionID:         "election-1",
		CandidateID:        "candidate-1",
		CandidateName:      "Ada Lovelace",
		VoterID:            "voter-1",
		GracePeriodSeconds: 30,
	})
	if err != nil {
		t.Fatalf("cast vote failed: %v", err)
	}

	if _, err := uc.UndoVote(context.Background(), UndoVoteCommand{VoteID: vote.VoteID, VoterID: "voter-2"}); !errors.Is(err, domainerrors.ErrVoteNotOwned) {
		t.Fatalf("expected ErrVoteNotOwned, got %v", err)
	}
}

func TestUndoVoteTwiceReportsAlreadyFinalized(t *testing.T) {
	store := memory.NewStore(nil)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	uc := newBallotUseCase(store, clock)

	vote, err := uc.CastVote(context.Background(), CastVoteCommand{
		ElectionID:         "election-1",
		CandidateID:        "candidate-1",
		CandidateName:      "Ada Lovelace",
		VoterID:            "voter-1",
		GracePeriodSeconds: 30,
	})
	if err != nil {
		t.Fatalf("cast vote failed: %v", err)
	}

	if _, err := uc.UndoVote(context.Background(), UndoVoteCommand{VoteID: vote.VoteID, VoterID: "voter-1"}); err != nil {
		t.Fatalf("first undo failed: %v", err)
	}
	if _, err := uc.UndoVote(context.Background(), UndoVoteCommand{VoteID: vote.VoteID, VoterID: "voter-1"}); !errors.Is(err, domainerrors.ErrVoteAlreadyFinalized) {
		t.Fatalf("expected ErrVoteAlreadyFinalized, got %v", err)
	}
}

func TestUndoVoteUnknownIDReportsNotFound(t *testing.T) {
	store := memory.NewStore(nil)
	clock := &fakeClock{now: time.Now().UTC()}
	uc := newBallotUseCase(store, clock)

	if _, err := uc.UndoVote(context.Background(), UndoVoteCommand{VoteID: "missing", VoterID: "voter-1"}); !errors.Is(err, domainerrors.ErrVoteNotFound) {
		t.Fatalf("expected ErrVoteNotFound, got %v", err)
	}
}
