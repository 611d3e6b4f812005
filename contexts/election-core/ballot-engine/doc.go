// Package ballotengine implements the vote confirmation service inside the
// election-core context.
//
// The module owns the vote confirmation state machine (pending, confirmed,
// undone), the grace-period reaper that finalizes pending votes, and the
// outbox-backed publication of vote.confirmed events. Business rules live in
// the domain and application layers; infrastructure stays behind ports and
// adapters.
package ballotengine
