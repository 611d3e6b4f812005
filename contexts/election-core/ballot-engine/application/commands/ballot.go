package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "quorum/contexts/election-core/ballot-engine/application"
	"quorum/contexts/election-core/ballot-engine/domain/entities"
	domainerrors "quorum/contexts/election-core/ballot-engine/domain/errors"
	"quorum/contexts/election-core/ballot-engine/ports"
)

// CastVoteCommand is the write-model input for casting a provisional vote.
type CastVoteCommand struct {
	ElectionID         string
	CandidateID        string
	CandidateName      string
	VoterID            string
	GracePeriodSeconds int
}

// UndoVoteCommand requests a voter-owned retraction inside the grace window.
type UndoVoteCommand struct {
	VoteID  string
	VoterID string
}

// BallotUseCase orchestrates the vote confirmation state machine. All state
// transitions go through the repository's compare-and-set primitive so an
// undo racing the reaper's finalization resolves to exactly one winner.
type BallotUseCase struct {
	Votes              ports.VoteRepository
	Clock              ports.Clock
	IDGen              ports.IDGenerator
	DefaultGracePeriod time.Duration
	Logger             *slog.Logger
}

// CastVote records a vote in the pending state with a grace window during
// which the originator may retract it. Pending votes are invisible to the
// tally until the reaper confirms them.
func (uc BallotUseCase) CastVote(ctx context.Context, cmd CastVoteCommand) (entities.VoteRecord, error) {
	logger := application.ResolveLogger(uc.Logger)

	electionID := strings.TrimSpace(cmd.ElectionID)
	candidateID := strings.TrimSpace(cmd.CandidateID)
	candidateName := strings.TrimSpace(cmd.CandidateName)

	grace := time.Duration(cmd.GracePeriodSeconds) * time.Second
	if cmd.GracePeriodSeconds == 0 && uc.DefaultGracePeriod > 0 {
		grace = uc.DefaultGracePeriod
	}

	if electionID == "" || candidateID == "" || candidateName == "" || grace <= 0 {
		logger.Warn("vote cast validation failed",
			"event", "ballot_cast_validation_failed",
			"module", "election-core/ballot-engine",
			"layer", "application",
			"election_id", electionID,
			"candidate_id", candidateID,
		)
		return entities.VoteRecord{}, domainerrors.ErrInvalidVoteInput
	}

	voteID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.VoteRecord{}, err
	}

	now := uc.now()
	vote := entities.VoteRecord{
		VoteID:        voteID,
		ElectionID:    electionID,
		CandidateID:   candidateID,
		CandidateName: candidateName,
		VoterID:       strings.TrimSpace(cmd.VoterID),
		State:         entities.StatePending,
		CastAt:        now,
		GraceEndsAt:   now.Add(grace),
	}
	if err := uc.Votes.SaveVote(ctx, vote); err != nil {
		logger.Error("vote cast save failed",
			"event", "ballot_cast_save_failed",
			"module", "election-core/ballot-engine",
			"layer", "application",
			"vote_id", voteID,
			"election_id", electionID,
			"error", err.Error(),
		)
		return entities.VoteRecord{}, err
	}

	logger.Info("vote cast",
		"event", "ballot_cast",
		"module", "election-core/ballot-engine",
		"layer", "application",
		"vote_id", vote.VoteID,
		"election_id", vote.ElectionID,
		"candidate_id", vote.CandidateID,
		"grace_ends_at", vote.GraceEndsAt.Format(time.RFC3339),
	)
	return vote, nil
}

// UndoVote retracts a pending vote. It succeeds only strictly before the
// grace window ends; at or after the boundary it fails with
// ErrGraceWindowExpired even when the reaper has not finalized the record
// yet. Losing the race against finalization reports ErrVoteAlreadyFinalized.
func (uc BallotUseCase) UndoVote(ctx context.Context, cmd UndoVoteCommand) (entities.VoteRecord, error) {
	logger := application.ResolveLogger(uc.Logger)

	voteID := strings.TrimSpace(cmd.VoteID)
	if voteID == "" {
		return entities.VoteRecord{}, domainerrors.ErrInvalidVoteInput
	}

	vote, err := uc.Votes.GetVote(ctx, voteID)
	if err != nil {
		return entities.VoteRecord{}, err
	}
	if vote.VoterID != "" && !strings.EqualFold(vote.VoterID, strings.TrimSpace(cmd.VoterID)) {
		logger.Warn("vote undo rejected for non-owner",
			"event", "ballot_undo_not_owner",
			"module", "election-core/ballot-engine",
			"layer", "application",
			"vote_id", voteID,
		)
		return entities.VoteRecord{}, domainerrors.ErrVoteNotOwned
	}
	if vote.Terminal() {
		return entities.VoteRecord{}, domainerrors.ErrVoteAlreadyFinalized
	}

	now := uc.now()
	if !vote.UndoableAt(now) {
		logger.Info("vote undo refused after grace window",
			"event", "ballot_undo_window_expired",
			"module", "election-core/ballot-engine",
			"layer", "application",
			"vote_id", voteID,
			"grace_ends_at", vote.GraceEndsAt.Format(time.RFC3339),
		)
		return entities.VoteRecord{}, domainerrors.ErrGraceWindowExpired
	}

	updated, err := uc.Votes.TransitionVote(ctx, voteID, entities.StatePending, entities.StateUndone, now)
	if err != nil {
		return entities.VoteRecord{}, err
	}

	logger.Info("vote undone",
		"event", "ballot_undone",
		"module", "election-core/ballot-engine",
		"layer", "application",
		"vote_id", updated.VoteID,
		"election_id", updated.ElectionID,
		"candidate_id", updated.CandidateID,
	)
	return updated, nil
}

func (uc BallotUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}
