package httpadapter

import (
	"context"
	"log/slog"
	"time"

	"quorum/contexts/election-core/tally-engine/application/commands"
	"quorum/contexts/election-core/tally-engine/application/queries"
	httptransport "quorum/contexts/election-core/tally-engine/transport/http"
)

const (
	defaultDelayMinutes         = 0
	defaultEnableDeltas         = true
	defaultDeltaIntervalMinutes = 5
)

type Handler struct {
	Configs    commands.TallyConfigUseCase
	Disclosure queries.DisclosureUseCase
	Logger     *slog.Logger
}

func (h Handler) ConfigureTallyHandler(
	ctx context.Context,
	req httptransport.ConfigureTallyRequest,
) (httptransport.TallyConfigurationResponse, error) {
	delay := defaultDelayMinutes
	if req.DelayMinutes != nil {
		delay = *req.DelayMinutes
	}
	enableDeltas := defaultEnableDeltas
	if req.EnableDeltas != nil {
		enableDeltas = *req.EnableDeltas
	}
	interval := defaultDeltaIntervalMinutes
	if req.DeltaIntervalMinutes != nil {
		interval = *req.DeltaIntervalMinutes
	}

	config, err := h.Configs.ConfigureTally(ctx, commands.ConfigureTallyCommand{
		TenantID:             req.TenantID,
		ElectionID:           req.ElectionID,
		Mode:                 req.Mode,
		DelayMinutes:         delay,
		EnableDeltas:         enableDeltas,
		DeltaIntervalMinutes: interval,
	})
	if err != nil {
		return httptransport.TallyConfigurationResponse{}, err
	}
	return httptransport.TallyConfigurationResponse{
		TenantID:             config.TenantID,
		ElectionID:           config.ElectionID,
		Mode:                 string(config.Mode),
		DelayMinutes:         config.DelayMinutes,
		EnableDeltas:         config.EnableDeltas,
		DeltaIntervalMinutes: config.DeltaIntervalMinutes,
		UpdatedAt:            config.UpdatedAt.UTC().Format(time.RFC3339),
	}, nil
}

func (h Handler) GetTallyHandler(ctx context.Context, electionID string, role string) (httptransport.TallyResponse, error) {
	snapshot, err := h.Disclosure.GetTally(ctx, electionID, role)
	if err != nil {
		return httptransport.TallyResponse{}, err
	}
	resp := httptransport.TallyResponse{
		ElectionID:      snapshot.ElectionID,
		Seq:             snapshot.Seq,
		TotalVotes:      snapshot.TotalVotes,
		CandidateCounts: snapshot.CandidateCounts,
	}
	if !snapshot.TakenAt.IsZero() {
		resp.TakenAt = snapshot.TakenAt.UTC().Format(time.RFC3339)
	}
	return resp, nil
}

func (h Handler) GetDeltasHandler(
	ctx context.Context,
	electionID string,
	role string,
	sinceSeq int64,
) (httptransport.DeltaListResponse, error) {
	deltas, err := h.Disclosure.GetDeltas(ctx, electionID, role, sinceSeq)
	if err != nil {
		return httptransport.DeltaListResponse{}, err
	}
	items := make([]httptransport.DeltaItem, 0, len(deltas))
	for _, delta := range deltas {
		items = append(items, httptransport.DeltaItem{
			Seq:             delta.Seq,
			CandidateDeltas: delta.CandidateDeltas,
			FromTime:        delta.FromTime.UTC().Format(time.RFC3339),
			ToTime:          delta.ToTime.UTC().Format(time.RFC3339),
		})
	}
	return httptransport.DeltaListResponse{
		ElectionID: electionID,
		Items:      items,
	}, nil
}
