package queries

import (
	"context"
	"strings"

	"quorum/contexts/election-core/ballot-engine/domain/entities"
	domainerrors "quorum/contexts/election-core/ballot-engine/domain/errors"
	"quorum/contexts/election-core/ballot-engine/ports"
)

// VoteStatusUseCase serves read-only lookups against the confirmation store.
type VoteStatusUseCase struct {
	Votes ports.VoteRepository
}

func (uc VoteStatusUseCase) GetVote(ctx context.Context, voteID string) (entities.VoteRecord, error) {
	voteID = strings.TrimSpace(voteID)
	if voteID == "" {
		return entities.VoteRecord{}, domainerrors.ErrInvalidVoteInput
	}
	return uc.Votes.GetVote(ctx, voteID)
}

// ElectionVotes lists the full audit trail for one election, terminal records
// included.
func (uc VoteStatusUseCase) ElectionVotes(ctx context.Context, electionID string) ([]entities.VoteRecord, error) {
	electionID = strings.TrimSpace(electionID)
	if electionID == "" {
		return nil, domainerrors.ErrInvalidVoteInput
	}
	return uc.Votes.ListVotesByElection(ctx, electionID)
}
