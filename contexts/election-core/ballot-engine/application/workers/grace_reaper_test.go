package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quorum/contexts/election-core/ballot-engine/adapters/memory"
	"quorum/contexts/election-core/ballot-engine/application/commands"
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

func castPending(t *testing.T, store *memory.Store, clock *fakeClock, voteID string, graceSeconds int) entities.VoteRecord {
	t.Helper()
	now := clock.Now()
	vote := entities.VoteRecord{
		VoteID:        voteID,
		ElectionID:    "election-1",
		CandidateID:   "candidate-1",
		CandidateName: "Ada Lovelace",
		VoterID:       "voter-1",
		State:         entities.StatePending,
		CastAt:        now,
		GraceEndsAt:   now.Add(time.Duration(graceSeconds) * time.Second),
	}
	if err := store.SaveVote(context.Background(), vote); err != nil {
		t.Fatalf("save vote failed: %v", err)
	}
	return vote
}

func TestReaperFinalizesOnlyDueVotes(t *testing.T) {
	store := memory.NewStore(nil)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	castPending(t, store, clock, "vote-due", 10)
	castPending(t, store, clock, "vote-later", 60)

	clock.Advance(10 * time.Second)
	reaper := GraceReaper{Votes: store, Clock: clock}
	if err := reaper.RunOnce(context.Background()); err != nil {
		t.Fatalf("reaper pass failed: %v", err)
	}

	due, err := store.GetVote(context.Background(), "vote-due")
	if err != nil {
		t.Fatalf("get vote failed: %v", err)
	}
	if due.State != entities.StateConfirmed {
		t.Fatalf("expected confirmed state, got %s", due.State)
	}
	if due.FinalizedAt == nil {
		t.Fatalf("expected finalized timestamp")
	}

	later, err := store.GetVote(context.Background(), "vote-later")
	if err != nil {
		t.Fatalf("get vote failed: %v", err)
	}
	if later.State != entities.StatePending {
		t.Fatalf("expected pending state, got %s", later.State)
	}
}

func TestReaperEmitsOneOutboxMessagePerVote(t *testing.T) {
	store := memory.NewStore(nil)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	castPending(t, store, clock, "vote-1", 10)

	clock.Advance(10 * time.Second)
	reaper := GraceReaper{Votes: store, Clock: clock}
	if err := reaper.RunOnce(context.Background()); err != nil {
		t.Fatalf("reaper pass failed: %v", err)
	}
	// Re-running must not produce a second envelope for the same vote.
	if err := reaper.RunOnce(context.Background()); err != nil {
		t.Fatalf("second reaper pass failed: %v", err)
	}

	messages, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 outbox message, got %d", len(messages))
	}
	if messages[0].OutboxID != "vote-confirmed-vote-1" {
		t.Fatalf("unexpected outbox id %s", messages[0].OutboxID)
	}
	if messages[0].EventType != TopicVoteConfirmed {
		t.Fatalf("unexpected event type %s", messages[0].EventType)
	}
}

func TestFinalizeBeforeGraceEndIsNoOp(t *testing.T) {
	store := memory.NewStore(nil)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	vote := castPending(t, store, clock, "vote-1", 10)

	// FinalizeVote enforces the grace window itself; a caller may not
	// confirm early even by skipping the due scan.
	clock.Advance(9 * time.Second)
	envelope, err := newBallotEnvelope("vote-confirmed-vote-1", TopicVoteConfirmed, vote.ElectionID, clock.Now(), nil)
	if err != nil {
		t.Fatalf("build envelope failed: %v", err)
	}
	record, won, err := store.FinalizeVote(context.Background(), vote.VoteID, clock.Now(), envelope)
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if won {
		t.Fatalf("vote confirmed before its grace window elapsed")
	}
	if record.State != entities.StatePending {
		t.Fatalf("expected pending state, got %s", record.State)
	}
	messages, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected empty outbox, got %d messages", len(messages))
	}
}

func TestReaperSkipsUndoneVotes(t *testing.T) {
	store := memory.NewStore(nil)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	vote := castPending(t, store, clock, "vote-1", 10)

	if _, err := store.TransitionVote(context.Background(), vote.VoteID, entities.StatePending, entities.StateUndone, clock.Now()); err != nil {
		t.Fatalf("undo transition failed: %v", err)
	}

	clock.Advance(10 * time.Second)
	reaper := GraceReaper{Votes: store, Clock: clock}
	if err := reaper.RunOnce(context.Background()); err != nil {
		t.Fatalf("reaper pass failed: %v", err)
	}

	updated, err := store.GetVote(context.Background(), vote.VoteID)
	if err != nil {
		t.Fatalf("get vote failed: %v", err)
	}
	if updated.State != entities.StateUndone {
		t.Fatalf("expected undone state, got %s", updated.State)
	}
	messages, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected empty outbox, got %d messages", len(messages))
	}
}

func TestConcurrentUndoAndFinalizeHasOneWinner(t *testing.T) {
	for i := 0; i < 50; i++ {
		store := memory.NewStore(nil)
		clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
		vote := castPending(t, store, clock, "vote-race", 10)

		// The undo checks the window against a time still inside it while the
		// reaper sees the window as elapsed, so both CAS attempts race.
		undoClock := &fakeClock{now: clock.Now().Add(9 * time.Second)}
		reapClock := &fakeClock{now: clock.Now().Add(10 * time.Second)}
		uc := commands.BallotUseCase{Votes: store, Clock: undoClock, IDGen: store}
		reaper := GraceReaper{Votes: store, Clock: reapClock}

		var wg sync.WaitGroup
		var undoErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, undoErr = uc.UndoVote(context.Background(), commands.UndoVoteCommand{VoteID: vote.VoteID, VoterID: "voter-1"})
		}()
		go func() {
			defer wg.Done()
			if err := reaper.RunOnce(context.Background()); err != nil {
				t.Errorf("reaper pass failed: %v", err)
			}
		}()
		wg.Wait()

		final, err := store.GetVote(context.Background(), vote.VoteID)
		if err != nil {
			t.Fatalf("get vote failed: %v", err)
		}
		messages, err := store.ListPendingOutbox(context.Background(), 10)
		if err != nil {
			t.Fatalf("list outbox failed: %v", err)
		}
		switch final.State {
		case entities.StateConfirmed:
			if undoErr == nil {
				t.Fatalf("vote confirmed but undo also succeeded")
			}
			if !errors.Is(undoErr, domainerrors.ErrVoteAlreadyFinalized) {
				t.Fatalf("expected ErrVoteAlreadyFinalized for losing undo, got %v", undoErr)
			}
			if len(messages) != 1 {
				t.Fatalf("confirmed vote must emit exactly one event, got %d", len(messages))
			}
		case entities.StateUndone:
			if undoErr != nil {
				t.Fatalf("vote undone but undo reported error: %v", undoErr)
			}
			if len(messages) != 0 {
				t.Fatalf("undone vote must emit no events, got %d", len(messages))
			}
		default:
			t.Fatalf("vote left in non-terminal state %s", final.State)
		}
	}
}
