package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "quorum/contexts/election-core/tally-engine/application"
	"quorum/contexts/election-core/tally-engine/domain/entities"
	domainerrors "quorum/contexts/election-core/tally-engine/domain/errors"
	"quorum/contexts/election-core/tally-engine/ports"
)

// ApplyVoteCommand carries one confirmed vote from the ballot engine.
type ApplyVoteCommand struct {
	ElectionID  string
	CandidateID string
	VoteID      string
}

// TallyAggregatorUseCase folds confirmed votes into the tally history. The
// repository dedups by vote id, so at-least-once delivery from the bus never
// double-counts.
type TallyAggregatorUseCase struct {
	Tallies ports.TallyRepository
	Clock   ports.Clock
	Logger  *slog.Logger
}

// OnVoteConfirmed applies one confirmed vote. The returned bool reports
// whether the vote was newly counted; a replay returns false with the
// unchanged snapshot.
func (uc TallyAggregatorUseCase) OnVoteConfirmed(ctx context.Context, cmd ApplyVoteCommand) (entities.TallySnapshot, bool, error) {
	logger := application.ResolveLogger(uc.Logger)

	electionID := strings.TrimSpace(cmd.ElectionID)
	candidateID := strings.TrimSpace(cmd.CandidateID)
	voteID := strings.TrimSpace(cmd.VoteID)
	if electionID == "" || candidateID == "" || voteID == "" {
		return entities.TallySnapshot{}, false, domainerrors.ErrInvalidTallyInput
	}

	snapshot, applied, err := uc.Tallies.ApplyConfirmedVote(ctx, electionID, candidateID, voteID, uc.now())
	if err != nil {
		logger.Error("tally apply failed",
			"event", "tally_apply_failed",
			"module", "election-core/tally-engine",
			"layer", "application",
			"election_id", electionID,
			"vote_id", voteID,
			"error", err.Error(),
		)
		return entities.TallySnapshot{}, false, err
	}
	if !applied {
		logger.Debug("tally apply skipped replayed vote",
			"event", "tally_apply_replayed",
			"module", "election-core/tally-engine",
			"layer", "application",
			"election_id", electionID,
			"vote_id", voteID,
		)
		return snapshot, false, nil
	}

	logger.Info("tally applied confirmed vote",
		"event", "tally_applied",
		"module", "election-core/tally-engine",
		"layer", "application",
		"election_id", electionID,
		"candidate_id", candidateID,
		"vote_id", voteID,
		"seq", snapshot.Seq,
		"total_votes", snapshot.TotalVotes,
	)
	return snapshot, true, nil
}

func (uc TallyAggregatorUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}
