package ports

import (
	"context"
	"time"

	"quorum/contexts/election-core/ballot-engine/domain/entities"
	"quorum/internal/shared/events"
)

type VoteRepository interface {
	SaveVote(ctx context.Context, vote entities.VoteRecord) error
	GetVote(ctx context.Context, voteID string) (entities.VoteRecord, error)
	ListVotesByElection(ctx context.Context, electionID string) ([]entities.VoteRecord, error)

	// TransitionVote is the compare-and-set primitive for the vote state
	// machine: the transition applies only if the record is currently in the
	// from state. When two callers race on the same record exactly one wins;
	// the loser observes ErrVoteAlreadyFinalized.
	TransitionVote(
		ctx context.Context,
		voteID string,
		from entities.VoteState,
		to entities.VoteState,
		at time.Time,
	) (entities.VoteRecord, error)

	// ListDuePending returns pending votes whose grace window has elapsed at
	// now. The reaper re-scans on every pass, so finalizations survive process
	// restarts without extra recovery state.
	ListDuePending(ctx context.Context, now time.Time, limit int) ([]entities.VoteRecord, error)

	// FinalizeVote atomically transitions a pending, due vote to confirmed and
	// appends the vote-confirmed envelope to the outbox. The bool result is
	// false when the record was already terminal (a benign no-op, not an
	// error). The transition and the outbox append either both happen or
	// neither does.
	FinalizeVote(
		ctx context.Context,
		voteID string,
		at time.Time,
		envelope EventEnvelope,
	) (entities.VoteRecord, bool, error)
}

type EventEnvelope = events.Envelope

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
