package workers

import (
	"encoding/json"
	"time"

	"quorum/contexts/election-core/ballot-engine/ports"
)

// TopicVoteConfirmed carries one event per finalized vote. The tally engine
// is the only consumer.
const TopicVoteConfirmed = "vote.confirmed"

// newBallotEnvelope builds canonical envelopes for reaper-produced events.
// The event id is derived from the vote id so outbox deduplication yields
// exactly-once emission per finalized vote.
func newBallotEnvelope(
	eventID string,
	eventType string,
	electionID string,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    "ballot-engine",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "election_id",
		PartitionKey:     electionID,
		Data:             payload,
	}, nil
}
