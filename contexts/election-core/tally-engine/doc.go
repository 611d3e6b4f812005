// Package tallyengine implements the tally aggregation service inside the
// election-core context.
//
// The module consumes vote.confirmed events from the ballot engine, folds
// them into a per-election snapshot history with vote-id deduplication, cuts
// interval-batched delta records, and gates every read through the
// per-election disclosure policy (live, delayed, admin_only, disabled).
package tallyengine
