package commands

import (
	"context"
	"errors"
	"testing"

	"quorum/contexts/election-core/tally-engine/adapters/memory"
	"quorum/contexts/election-core/tally-engine/domain/entities"
	domainerrors "quorum/contexts/election-core/tally-engine/domain/errors"
)

func TestConfigureTallyUpserts(t *testing.T) {
	store := memory.NewStore()
	uc := TallyConfigUseCase{Configs: store, Clock: store}

	first, err := uc.ConfigureTally(context.Background(), ConfigureTallyCommand{
		TenantID:             "tenant-1",
		ElectionID:           "election-1",
		Mode:                 "live",
		EnableDeltas:         true,
		DeltaIntervalMinutes: 5,
	})
	if err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if first.Mode != entities.ModeLive {
		t.Fatalf("expected live mode, got %s", first.Mode)
	}

	second, err := uc.ConfigureTally(context.Background(), ConfigureTallyCommand{
		TenantID:     "tenant-1",
		ElectionID:   "election-1",
		Mode:         "delayed",
		DelayMinutes: 10,
	})
	if err != nil {
		t.Fatalf("reconfigure failed: %v", err)
	}
	if second.Mode != entities.ModeDelayed || second.DelayMinutes != 10 {
		t.Fatalf("unexpected reconfigured policy: %+v", second)
	}

	stored, err := store.GetConfig(context.Background(), "election-1")
	if err != nil {
		t.Fatalf("get config failed: %v", err)
	}
	if stored.Mode != entities.ModeDelayed {
		t.Fatalf("upsert did not replace policy: %+v", stored)
	}
}

func TestConfigureTallyValidation(t *testing.T) {
	store := memory.NewStore()
	uc := TallyConfigUseCase{Configs: store, Clock: store}

	cases := []ConfigureTallyCommand{
		{ElectionID: "election-1", Mode: "live"},
		{TenantID: "tenant-1", Mode: "live"},
		{TenantID: "tenant-1", ElectionID: "election-1", Mode: "sometimes"},
		{TenantID: "tenant-1", ElectionID: "election-1", Mode: "live", DelayMinutes: -1},
		{TenantID: "tenant-1", ElectionID: "election-1", Mode: "live", EnableDeltas: true, DeltaIntervalMinutes: 0},
	}
	for i, cmd := range cases {
		if _, err := uc.ConfigureTally(context.Background(), cmd); !errors.Is(err, domainerrors.ErrInvalidTallyInput) {
			t.Fatalf("case %d: expected ErrInvalidTallyInput, got %v", i, err)
		}
	}
}
