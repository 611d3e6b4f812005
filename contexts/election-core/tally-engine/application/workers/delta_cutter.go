package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	application "quorum/contexts/election-core/tally-engine/application"
	domainerrors "quorum/contexts/election-core/tally-engine/domain/errors"
	"quorum/contexts/election-core/tally-engine/ports"
)

// DeltaCutter seals pending tally increments into delta records. One pass
// cuts at most one delta per election, and only when the configured interval
// has elapsed since the previous cut.
type DeltaCutter struct {
	Tallies ports.TallyRepository
	Configs ports.ConfigRepository
	Clock   ports.Clock
	Logger  *slog.Logger
}

// RunOnce visits every election with uncut increments. Unconfigured elections
// and elections with deltas disabled keep accumulating; their pending rows
// are picked up if deltas are enabled later. Per-election failures are logged
// and never block the remaining elections.
func (c DeltaCutter) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(c.Logger)

	elections, err := c.Tallies.PendingDeltaElections(ctx)
	if err != nil {
		logger.Error("delta cutter scan failed",
			"event", "tally_delta_scan_failed",
			"module", "election-core/tally-engine",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	now := c.now()
	cut := 0
	for _, electionID := range elections {
		config, err := c.Configs.GetConfig(ctx, electionID)
		if errors.Is(err, domainerrors.ErrTallyNotConfigured) {
			continue
		}
		if err != nil {
			logger.Error("delta cutter config load failed",
				"event", "tally_delta_config_failed",
				"module", "election-core/tally-engine",
				"layer", "worker",
				"election_id", electionID,
				"error", err.Error(),
			)
			continue
		}
		if !config.EnableDeltas {
			continue
		}

		delta, sealed, err := c.Tallies.CutDelta(ctx, electionID, now, config.DeltaInterval())
		if err != nil {
			logger.Error("delta cut failed",
				"event", "tally_delta_cut_failed",
				"module", "election-core/tally-engine",
				"layer", "worker",
				"election_id", electionID,
				"error", err.Error(),
			)
			continue
		}
		if !sealed {
			continue
		}
		cut++
		logger.Info("delta sealed",
			"event", "tally_delta_sealed",
			"module", "election-core/tally-engine",
			"layer", "worker",
			"election_id", electionID,
			"seq", delta.Seq,
			"candidates", len(delta.CandidateDeltas),
		)
	}

	logger.Debug("delta cutter pass completed",
		"event", "tally_delta_pass_completed",
		"module", "election-core/tally-engine",
		"layer", "worker",
		"elections", len(elections),
		"sealed", cut,
	)
	return nil
}

func (c DeltaCutter) now() time.Time {
	now := time.Now().UTC()
	if c.Clock != nil {
		now = c.Clock.Now().UTC()
	}
	return now
}
