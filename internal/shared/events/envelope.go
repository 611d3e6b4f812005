package events

import (
	"encoding/json"
	"time"
)

// Envelope is the canonical event shape exchanged between quorum services.
// Producers append envelopes to their outbox; the relay publishes them to the
// bus keyed by EventType. Keep this backward compatible across services.
type Envelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    int             `json:"schema_version"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	Data             json.RawMessage `json:"data"`
}
