package ports

import (
	"context"
	"time"

	"quorum/contexts/election-core/tally-engine/domain/entities"
	"quorum/internal/shared/events"
)

// EventEnvelope is the canonical cross-context event shape.
type EventEnvelope = events.Envelope

// TallyRepository owns the per-election tally history. ApplyConfirmedVote is
// the only write path for counts: it checks the applied-vote set and performs
// the increment in the same critical section, so replaying the same vote id
// never double-counts.
type TallyRepository interface {
	// ApplyConfirmedVote records one confirmed vote. It returns the snapshot
	// current after the call and whether the vote was newly applied.
	ApplyConfirmedVote(ctx context.Context, electionID string, candidateID string, voteID string, at time.Time) (entities.TallySnapshot, bool, error)

	// LatestSnapshot returns the newest snapshot, or a zero-valued snapshot
	// for the election when none exists yet.
	LatestSnapshot(ctx context.Context, electionID string) (entities.TallySnapshot, error)

	// SnapshotAsOf returns the newest snapshot taken at or before cutoff, or
	// a zero-valued snapshot when none qualifies.
	SnapshotAsOf(ctx context.Context, electionID string, cutoff time.Time) (entities.TallySnapshot, error)

	// ListDeltasSince returns sealed deltas with Seq > sinceSeq in sequence
	// order.
	ListDeltasSince(ctx context.Context, electionID string, sinceSeq int64) ([]entities.DeltaRecord, error)

	// PendingDeltaElections lists elections holding increments not yet sealed
	// into a delta.
	PendingDeltaElections(ctx context.Context) ([]string, error)

	// CutDelta seals all pending increments for the election into one delta
	// record. It is a no-op (false) when nothing is pending or when the last
	// cut is more recent than minInterval.
	CutDelta(ctx context.Context, electionID string, now time.Time, minInterval time.Duration) (entities.DeltaRecord, bool, error)
}

// ConfigRepository stores disclosure policies, one per (tenant, election).
type ConfigRepository interface {
	UpsertConfig(ctx context.Context, config entities.TallyConfiguration) (entities.TallyConfiguration, error)

	// GetConfig returns the active configuration for the election or
	// ErrTallyNotConfigured.
	GetConfig(ctx context.Context, electionID string) (entities.TallyConfiguration, error)
}

type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}

type EventDedupStore interface {
	ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
