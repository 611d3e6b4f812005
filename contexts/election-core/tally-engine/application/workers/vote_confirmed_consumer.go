package workers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	application "quorum/contexts/election-core/tally-engine/application"
	"quorum/contexts/election-core/tally-engine/application/commands"
	"quorum/contexts/election-core/tally-engine/ports"
)

const (
	voteConfirmedTopic = "vote.confirmed"
	defaultTallyCG     = "tally-engine-confirmed-cg"
)

// VoteConfirmedConsumer feeds the aggregator from the ballot engine's
// vote.confirmed stream. Delivery is at-least-once; the aggregator's
// applied-vote set makes processing idempotent. The dedup reservation is
// committed only after a successful apply, so a transient apply failure
// never makes a later redelivery skip as already processed.
type VoteConfirmedConsumer struct {
	Subscriber    ports.EventSubscriber
	Dedup         ports.EventDedupStore
	Aggregator    commands.TallyAggregatorUseCase
	Clock         ports.Clock
	ConsumerGroup string
	DedupTTL      time.Duration
	Disabled      bool
	Logger        *slog.Logger
}

func (c VoteConfirmedConsumer) Start(ctx context.Context) error {
	logger := application.ResolveLogger(c.Logger)
	if c.Disabled {
		logger.Info("vote confirmed consumer disabled by feature flag",
			"event", "tally_confirmed_consumer_disabled",
			"module", "election-core/tally-engine",
			"layer", "worker",
		)
		return nil
	}
	group := strings.TrimSpace(c.ConsumerGroup)
	if group == "" {
		group = defaultTallyCG
	}
	if err := c.Subscriber.Subscribe(ctx, voteConfirmedTopic, group, c.handleVoteConfirmed); err != nil {
		logger.Error("vote confirmed subscribe failed",
			"event", "tally_confirmed_consumer_subscribe_failed",
			"module", "election-core/tally-engine",
			"layer", "worker",
			"topic", voteConfirmedTopic,
			"consumer_group", group,
			"error", err.Error(),
		)
		return err
	}
	logger.Info("vote confirmed consumer subscription active",
		"event", "tally_confirmed_consumer_started",
		"module", "election-core/tally-engine",
		"layer", "worker",
		"consumer_group", group,
	)
	return nil
}

func (c VoteConfirmedConsumer) handleVoteConfirmed(ctx context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(c.Logger)

	var payload struct {
		VoteID      string `json:"vote_id"`
		ElectionID  string `json:"election_id"`
		CandidateID string `json:"candidate_id"`
	}
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		logger.Error("vote confirmed payload decode failed",
			"event", "tally_confirmed_decode_failed",
			"module", "election-core/tally-engine",
			"layer", "worker",
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return err
	}

	_, _, err := c.Aggregator.OnVoteConfirmed(ctx, commands.ApplyVoteCommand{
		ElectionID:  payload.ElectionID,
		CandidateID: payload.CandidateID,
		VoteID:      payload.VoteID,
	})
	if err != nil {
		logger.Error("vote confirmed apply failed",
			"event", "tally_confirmed_apply_failed",
			"module", "election-core/tally-engine",
			"layer", "worker",
			"event_id", event.EventID,
			"vote_id", strings.TrimSpace(payload.VoteID),
			"error", err.Error(),
		)
		return err
	}

	// Reserve only after the apply landed. Losing the reservation is safe:
	// a redelivery re-runs the apply, which dedups by vote id.
	alreadyProcessed, err := c.Dedup.ReserveEvent(ctx, event.EventID, hashPayload(event.Data), c.now().Add(c.dedupTTL()))
	if err != nil {
		logger.Error("vote confirmed dedupe failed",
			"event", "tally_confirmed_dedupe_failed",
			"module", "election-core/tally-engine",
			"layer", "worker",
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return err
	}
	if alreadyProcessed {
		logger.Debug("vote confirmed replay detected",
			"event", "tally_confirmed_replayed",
			"module", "election-core/tally-engine",
			"layer", "worker",
			"event_id", event.EventID,
		)
	}
	return nil
}

func hashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func (c VoteConfirmedConsumer) now() time.Time {
	now := time.Now().UTC()
	if c.Clock != nil {
		now = c.Clock.Now().UTC()
	}
	return now
}

func (c VoteConfirmedConsumer) dedupTTL() time.Duration {
	if c.DedupTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return c.DedupTTL
}
