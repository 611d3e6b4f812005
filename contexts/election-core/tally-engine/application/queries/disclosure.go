package queries

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

// RoleAdmin is the caller role that bypasses admin_only gating. Disabled mode
// refuses every role, admin included.
const RoleAdmin = "admin"

// DisclosureUseCase applies the per-election disclosure policy to tally and
// delta reads.
type DisclosureUseCase struct {
	Tallies ports.TallyRepository
	Configs ports.ConfigRepository
	Clock   ports.Clock
	Logger  *slog.Logger
}

// GetTally returns the snapshot the caller is allowed to see. Live mode
// serves the latest snapshot, delayed mode the newest snapshot at least the
// configured delay old. An election with no confirmed votes yet reads as a
// zero-valued snapshot.
func (uc DisclosureUseCase) GetTally(ctx context.Context, electionID string, role string) (entities.TallySnapshot, error) {
	electionID = strings.TrimSpace(electionID)
	if electionID == "" {
		return entities.TallySnapshot{}, domainerrors.ErrInvalidTallyInput
	}

	config, err := uc.gate(ctx, electionID, role)
	if err != nil {
		return entities.TallySnapshot{}, err
	}

	if config.Mode == entities.ModeDelayed {
		cutoff := uc.now().Add(-config.Delay())
		return uc.Tallies.SnapshotAsOf(ctx, electionID, cutoff)
	}
	return uc.Tallies.LatestSnapshot(ctx, electionID)
}

// GetDeltas returns sealed deltas newer than sinceSeq, subject to the same
// gating as GetTally. Delayed mode withholds deltas sealed after the cutoff.
// Elections configured with deltas disabled read as an empty list.
func (uc DisclosureUseCase) GetDeltas(ctx context.Context, electionID string, role string, sinceSeq int64) ([]entities.DeltaRecord, error) {
	electionID = strings.TrimSpace(electionID)
	if electionID == "" || sinceSeq < 0 {
		return nil, domainerrors.ErrInvalidTallyInput
	}

	config, err := uc.gate(ctx, electionID, role)
	if err != nil {
		return nil, err
	}
	if !config.EnableDeltas {
		return []entities.DeltaRecord{}, nil
	}

	deltas, err := uc.Tallies.ListDeltasSince(ctx, electionID, sinceSeq)
	if err != nil {
		return nil, err
	}
	if config.Mode != entities.ModeDelayed {
		return deltas, nil
	}

	cutoff := uc.now().Add(-config.Delay())
	visible := make([]entities.DeltaRecord, 0, len(deltas))
	for _, delta := range deltas {
		if delta.ToTime.After(cutoff) {
			break
		}
		visible = append(visible, delta)
	}
	return visible, nil
}

func (uc DisclosureUseCase) gate(ctx context.Context, electionID string, role string) (entities.TallyConfiguration, error) {
	logger := application.ResolveLogger(uc.Logger)
	role = strings.TrimSpace(role)

	config, err := uc.Configs.GetConfig(ctx, electionID)
	if err != nil {
		return entities.TallyConfiguration{}, err
	}

	switch config.Mode {
	case entities.ModeDisabled:
		logger.Info("tally read refused for disabled election",
			"event", "tally_read_disabled",
			"module", "election-core/tally-engine",
			"layer", "application",
			"election_id", electionID,
			"role", role,
		)
		return entities.TallyConfiguration{}, domainerrors.ErrTallyForbidden
	case entities.ModeAdminOnly:
		if !strings.EqualFold(role, RoleAdmin) {
			logger.Info("tally read refused for non-admin",
				"event", "tally_read_admin_only",
				"module", "election-core/tally-engine",
				"layer", "application",
				"election_id", electionID,
				"role", role,
			)
			return entities.TallyConfiguration{}, domainerrors.ErrTallyForbidden
		}
	}
	return config, nil
}

func (uc DisclosureUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}
