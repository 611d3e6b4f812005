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

// ConfigureTallyCommand carries a full disclosure policy. Callers apply
// defaults before dispatch; the use case validates the resolved values.
type ConfigureTallyCommand struct {
	TenantID             string
	ElectionID           string
	Mode                 string
	DelayMinutes         int
	EnableDeltas         bool
	DeltaIntervalMinutes int
}

// TallyConfigUseCase writes disclosure policies with upsert semantics.
type TallyConfigUseCase struct {
	Configs ports.ConfigRepository
	Clock   ports.Clock
	Logger  *slog.Logger
}

func (uc TallyConfigUseCase) ConfigureTally(ctx context.Context, cmd ConfigureTallyCommand) (entities.TallyConfiguration, error) {
	logger := application.ResolveLogger(uc.Logger)

	tenantID := strings.TrimSpace(cmd.TenantID)
	electionID := strings.TrimSpace(cmd.ElectionID)
	mode := entities.DisclosureMode(strings.TrimSpace(cmd.Mode))

	if tenantID == "" || electionID == "" || !mode.Valid() ||
		cmd.DelayMinutes < 0 ||
		(cmd.EnableDeltas && cmd.DeltaIntervalMinutes <= 0) {
		logger.Warn("tally configuration validation failed",
			"event", "tally_configure_validation_failed",
			"module", "election-core/tally-engine",
			"layer", "application",
			"tenant_id", tenantID,
			"election_id", electionID,
			"mode", string(mode),
		)
		return entities.TallyConfiguration{}, domainerrors.ErrInvalidTallyInput
	}

	config := entities.TallyConfiguration{
		TenantID:             tenantID,
		ElectionID:           electionID,
		Mode:                 mode,
		DelayMinutes:         cmd.DelayMinutes,
		EnableDeltas:         cmd.EnableDeltas,
		DeltaIntervalMinutes: cmd.DeltaIntervalMinutes,
		UpdatedAt:            uc.now(),
	}
	saved, err := uc.Configs.UpsertConfig(ctx, config)
	if err != nil {
		logger.Error("tally configuration upsert failed",
			"event", "tally_configure_upsert_failed",
			"module", "election-core/tally-engine",
			"layer", "application",
			"tenant_id", tenantID,
			"election_id", electionID,
			"error", err.Error(),
		)
		return entities.TallyConfiguration{}, err
	}

	logger.Info("tally configured",
		"event", "tally_configured",
		"module", "election-core/tally-engine",
		"layer", "application",
		"tenant_id", saved.TenantID,
		"election_id", saved.ElectionID,
		"mode", string(saved.Mode),
		"delay_minutes", saved.DelayMinutes,
		"enable_deltas", saved.EnableDeltas,
	)
	return saved, nil
}

func (uc TallyConfigUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}
