package httpadapter

import (
	"context"
	"log/slog"
	"time"

	"quorum/contexts/election-core/ballot-engine/application/commands"
	"quorum/contexts/election-core/ballot-engine/application/queries"
	"quorum/contexts/election-core/ballot-engine/domain/entities"
	httptransport "quorum/contexts/election-core/ballot-engine/transport/http"
)

type Handler struct {
	Ballots commands.BallotUseCase
	Status  queries.VoteStatusUseCase
	Logger  *slog.Logger
}

func (h Handler) ConfirmVoteHandler(
	ctx context.Context,
	req httptransport.ConfirmVoteRequest,
) (httptransport.VoteStatusResponse, error) {
	vote, err := h.Ballots.CastVote(ctx, commands.CastVoteCommand{
		ElectionID:         req.ElectionID,
		CandidateID:        req.CandidateID,
		CandidateName:      req.CandidateName,
		VoterID:            req.VoterID,
		GracePeriodSeconds: req.GracePeriodSeconds,
	})
	if err != nil {
		return httptransport.VoteStatusResponse{}, err
	}
	return mapVote(vote), nil
}

func (h Handler) UndoVoteHandler(ctx context.Context, voteID string, voterID string) (httptransport.VoteStatusResponse, error) {
	vote, err := h.Ballots.UndoVote(ctx, commands.UndoVoteCommand{
		VoteID:  voteID,
		VoterID: voterID,
	})
	if err != nil {
		return httptransport.VoteStatusResponse{}, err
	}
	return mapVote(vote), nil
}

func (h Handler) VoteStatusHandler(ctx context.Context, voteID string) (httptransport.VoteStatusResponse, error) {
	vote, err := h.Status.GetVote(ctx, voteID)
	if err != nil {
		return httptransport.VoteStatusResponse{}, err
	}
	return mapVote(vote), nil
}

func (h Handler) ElectionVotesHandler(ctx context.Context, electionID string) (httptransport.ElectionVotesResponse, error) {
	votes, err := h.Status.ElectionVotes(ctx, electionID)
	if err != nil {
		return httptransport.ElectionVotesResponse{}, err
	}
	items := make([]httptransport.VoteStatusResponse, 0, len(votes))
	for _, vote := range votes {
		items = append(items, mapVote(vote))
	}
	return httptransport.ElectionVotesResponse{
		ElectionID: electionID,
		Items:      items,
	}, nil
}

func mapVote(vote entities.VoteRecord) httptransport.VoteStatusResponse {
	resp := httptransport.VoteStatusResponse{
		VoteID:        vote.VoteID,
		ElectionID:    vote.ElectionID,
		CandidateID:   vote.CandidateID,
		CandidateName: vote.CandidateName,
		State:         string(vote.State),
		CastAt:        vote.CastAt.UTC().Format(time.RFC3339),
		GraceEndsAt:   vote.GraceEndsAt.UTC().Format(time.RFC3339),
	}
	if vote.FinalizedAt != nil {
		resp.FinalizedAt = vote.FinalizedAt.UTC().Format(time.RFC3339)
	}
	if vote.UndoneAt != nil {
		resp.UndoneAt = vote.UndoneAt.UTC().Format(time.RFC3339)
	}
	return resp
}
