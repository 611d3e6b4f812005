package workers

import (
	"context"
	"log/slog"
	"time"

	application "quorum/contexts/election-core/ballot-engine/application"
	"quorum/contexts/election-core/ballot-engine/ports"
)

// GraceReaper finalizes pending votes whose grace window has elapsed. Each
// finalization is a single atomic repository operation that flips the record
// to confirmed and appends the vote.confirmed envelope to the outbox, so a
// vote can never be counted without its confirmed transition.
type GraceReaper struct {
	Votes     ports.VoteRepository
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

// RunOnce scans one batch of due pending votes and finalizes each. A failure
// on an individual vote is logged and retried on the next pass; it never
// blocks finalization of the remaining votes. Re-running over an
// already-confirmed record is a no-op, and every pass re-scans persisted
// pending records, so restarts lose nothing.
func (r GraceReaper) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}

	now := r.now()
	due, err := r.Votes.ListDuePending(ctx, now, limit)
	if err != nil {
		logger.Error("reaper scan failed",
			"event", "ballot_reaper_scan_failed",
			"module", "election-core/ballot-engine",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}
	if len(due) == 0 {
		logger.Debug("reaper found no due votes",
			"event", "ballot_reaper_noop",
			"module", "election-core/ballot-engine",
			"layer", "worker",
		)
		return nil
	}

	finalized := 0
	for _, vote := range due {
		envelope, err := newBallotEnvelope(
			"vote-confirmed-"+vote.VoteID,
			TopicVoteConfirmed,
			vote.ElectionID,
			now,
			map[string]any{
				"vote_id":       vote.VoteID,
				"election_id":   vote.ElectionID,
				"candidate_id":  vote.CandidateID,
				"grace_ends_at": vote.GraceEndsAt.UTC().Format(time.RFC3339),
			},
		)
		if err != nil {
			logger.Error("reaper envelope build failed",
				"event", "ballot_reaper_envelope_failed",
				"module", "election-core/ballot-engine",
				"layer", "worker",
				"vote_id", vote.VoteID,
				"error", err.Error(),
			)
			continue
		}
		_, won, err := r.Votes.FinalizeVote(ctx, vote.VoteID, now, envelope)
		if err != nil {
			logger.Error("reaper finalize failed",
				"event", "ballot_reaper_finalize_failed",
				"module", "election-core/ballot-engine",
				"layer", "worker",
				"vote_id", vote.VoteID,
				"error", err.Error(),
			)
			continue
		}
		if !won {
			// Lost the race to an undo between scan and finalize.
			logger.Debug("reaper skipped terminal vote",
				"event", "ballot_reaper_skipped_terminal",
				"module", "election-core/ballot-engine",
				"layer", "worker",
				"vote_id", vote.VoteID,
			)
			continue
		}
		finalized++
	}

	logger.Info("reaper pass completed",
		"event", "ballot_reaper_completed",
		"module", "election-core/ballot-engine",
		"layer", "worker",
		"due", len(due),
		"finalized", finalized,
	)
	return nil
}

func (r GraceReaper) now() time.Time {
	now := time.Now().UTC()
	if r.Clock != nil {
		now = r.Clock.Now().UTC()
	}
	return now
}
