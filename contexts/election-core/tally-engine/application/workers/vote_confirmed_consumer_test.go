package workers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"quorum/contexts/election-core/tally-engine/adapters/memory"
	"quorum/contexts/election-core/tally-engine/application/commands"
	"quorum/contexts/election-core/tally-engine/domain/entities"
	"quorum/contexts/election-core/tally-engine/ports"
)

// flakyTallies fails a fixed number of applies before delegating, standing in
// for a transient store outage.
type flakyTallies struct {
	*memory.Store
	failures int
}

func (f *flakyTallies) ApplyConfirmedVote(ctx context.Context, electionID, candidateID, voteID string, at time.Time) (entities.TallySnapshot, bool, error) {
	if f.failures > 0 {
		f.failures--
		return entities.TallySnapshot{}, false, errors.New("store unavailable")
	}
	return f.Store.ApplyConfirmedVote(ctx, electionID, candidateID, voteID, at)
}

func confirmedEnvelope(t *testing.T, eventID, voteID string) ports.EventEnvelope {
	t.Helper()
	payload, err := json.Marshal(map[string]string{
		"vote_id":      voteID,
		"election_id":  "election-1",
		"candidate_id": "candidate-a",
	})
	if err != nil {
		t.Fatalf("marshal payload failed: %v", err)
	}
	return ports.EventEnvelope{
		EventID:       eventID,
		EventType:     "vote.confirmed",
		OccurredAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		SourceService: "ballot-engine",
		SchemaVersion: 1,
		PartitionKey:  "election-1",
		Data:          payload,
	}
}

func TestVoteConfirmedConsumerReplayIsHarmless(t *testing.T) {
	store := memory.NewStore()
	consumer := VoteConfirmedConsumer{
		Dedup: store,
		Aggregator: commands.TallyAggregatorUseCase{
			Tallies: store,
			Clock:   store,
		},
		Clock: store,
	}

	event := confirmedEnvelope(t, "vote-confirmed-vote-1", "vote-1")
	if err := consumer.handleVoteConfirmed(context.Background(), event); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if err := consumer.handleVoteConfirmed(context.Background(), event); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}

	snapshot, err := store.LatestSnapshot(context.Background(), "election-1")
	if err != nil {
		t.Fatalf("latest snapshot failed: %v", err)
	}
	if snapshot.TotalVotes != 1 {
		t.Fatalf("expected 1 vote after redelivery, got %d", snapshot.TotalVotes)
	}
}

func TestVoteConfirmedConsumerDistinctEventsSameVoteCountOnce(t *testing.T) {
	store := memory.NewStore()
	consumer := VoteConfirmedConsumer{
		Dedup: store,
		Aggregator: commands.TallyAggregatorUseCase{
			Tallies: store,
			Clock:   store,
		},
		Clock: store,
	}

	// Event-level dedup misses a republish under a new event id; the
	// aggregator's applied-vote set still absorbs it.
	if err := consumer.handleVoteConfirmed(context.Background(), confirmedEnvelope(t, "event-1", "vote-1")); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if err := consumer.handleVoteConfirmed(context.Background(), confirmedEnvelope(t, "event-2", "vote-1")); err != nil {
		t.Fatalf("second delivery failed: %v", err)
	}

	snapshot, err := store.LatestSnapshot(context.Background(), "election-1")
	if err != nil {
		t.Fatalf("latest snapshot failed: %v", err)
	}
	if snapshot.TotalVotes != 1 {
		t.Fatalf("expected 1 vote, got %d", snapshot.TotalVotes)
	}
}

func TestVoteConfirmedConsumerRetriesAfterApplyFailure(t *testing.T) {
	store := memory.NewStore()
	tallies := &flakyTallies{Store: store, failures: 1}
	consumer := VoteConfirmedConsumer{
		Dedup: store,
		Aggregator: commands.TallyAggregatorUseCase{
			Tallies: tallies,
			Clock:   store,
		},
		Clock: store,
	}

	// The failed apply must not leave a dedup reservation behind, or the
	// redelivery would skip and the vote would never be counted.
	event := confirmedEnvelope(t, "vote-confirmed-vote-1", "vote-1")
	if err := consumer.handleVoteConfirmed(context.Background(), event); err == nil {
		t.Fatalf("expected first delivery to fail")
	}
	if err := consumer.handleVoteConfirmed(context.Background(), event); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}

	snapshot, err := store.LatestSnapshot(context.Background(), "election-1")
	if err != nil {
		t.Fatalf("latest snapshot failed: %v", err)
	}
	if snapshot.TotalVotes != 1 {
		t.Fatalf("expected 1 vote after retry, got %d", snapshot.TotalVotes)
	}
}
