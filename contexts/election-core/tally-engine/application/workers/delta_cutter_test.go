package workers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"quorum/contexts/election-core/tally-engine/adapters/memory"
	"quorum/contexts/election-core/tally-engine/domain/entities"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func enableDeltaConfig(t *testing.T, store *memory.Store, electionID string, intervalMinutes int) {
	t.Helper()
	_, err := store.UpsertConfig(context.Background(), entities.TallyConfiguration{
		TenantID:             "tenant-1",
		ElectionID:           electionID,
		Mode:                 entities.ModeLive,
		EnableDeltas:         true,
		DeltaIntervalMinutes: intervalMinutes,
	})
	if err != nil {
		t.Fatalf("upsert config failed: %v", err)
	}
}

func TestDeltaCutterSealsPendingIncrements(t *testing.T) {
	store := memory.NewStore()
	enableDeltaConfig(t, store, "election-1", 5)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	for i := 0; i < 3; i++ {
		if _, _, err := store.ApplyConfirmedVote(context.Background(), "election-1", "candidate-a", fmt.Sprintf("vote-%d", i), clock.Now()); err != nil {
			t.Fatalf("apply vote failed: %v", err)
		}
	}

	cutter := DeltaCutter{Tallies: store, Configs: store, Clock: clock}
	if err := cutter.RunOnce(context.Background()); err != nil {
		t.Fatalf("cutter pass failed: %v", err)
	}

	deltas, err := store.ListDeltasSince(context.Background(), "election-1", 0)
	if err != nil {
		t.Fatalf("list deltas failed: %v", err)
	}
	if len(deltas) != 1 {
		t.Fatalf("expected 1 delta, got %d", len(deltas))
	}
	if deltas[0].CandidateDeltas["candidate-a"] != 3 {
		t.Fatalf("expected delta of 3, got %+v", deltas[0].CandidateDeltas)
	}
}

func TestDeltaCutterHonorsInterval(t *testing.T) {
	store := memory.NewStore()
	enableDeltaConfig(t, store, "election-1", 5)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cutter := DeltaCutter{Tallies: store, Configs: store, Clock: clock}

	if _, _, err := store.ApplyConfirmedVote(context.Background(), "election-1", "candidate-a", "vote-1", clock.Now()); err != nil {
		t.Fatalf("apply vote failed: %v", err)
	}
	if err := cutter.RunOnce(context.Background()); err != nil {
		t.Fatalf("first pass failed: %v", err)
	}

	// A new increment inside the interval stays pending.
	clock.Advance(time.Minute)
	if _, _, err := store.ApplyConfirmedVote(context.Background(), "election-1", "candidate-a", "vote-2", clock.Now()); err != nil {
		t.Fatalf("apply vote failed: %v", err)
	}
	if err := cutter.RunOnce(context.Background()); err != nil {
		t.Fatalf("second pass failed: %v", err)
	}
	deltas, err := store.ListDeltasSince(context.Background(), "election-1", 0)
	if err != nil {
		t.Fatalf("list deltas failed: %v", err)
	}
	if len(deltas) != 1 {
		t.Fatalf("expected interval to defer the second cut, got %d deltas", len(deltas))
	}

	clock.Advance(5 * time.Minute)
	if err := cutter.RunOnce(context.Background()); err != nil {
		t.Fatalf("third pass failed: %v", err)
	}
	deltas, err = store.ListDeltasSince(context.Background(), "election-1", 0)
	if err != nil {
		t.Fatalf("list deltas failed: %v", err)
	}
	if len(deltas) != 2 {
		t.Fatalf("expected 2 deltas after interval elapsed, got %d", len(deltas))
	}
}

func TestDeltaCutterSkipsUnconfiguredAndDisabledElections(t *testing.T) {
	store := memory.NewStore()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	if _, _, err := store.ApplyConfirmedVote(context.Background(), "election-unconfigured", "candidate-a", "vote-1", clock.Now()); err != nil {
		t.Fatalf("apply vote failed: %v", err)
	}
	if _, err := store.UpsertConfig(context.Background(), entities.TallyConfiguration{
		TenantID:     "tenant-1",
		ElectionID:   "election-no-deltas",
		Mode:         entities.ModeLive,
		EnableDeltas: false,
	}); err != nil {
		t.Fatalf("upsert config failed: %v", err)
	}
	if _, _, err := store.ApplyConfirmedVote(context.Background(), "election-no-deltas", "candidate-a", "vote-2", clock.Now()); err != nil {
		t.Fatalf("apply vote failed: %v", err)
	}

	cutter := DeltaCutter{Tallies: store, Configs: store, Clock: clock}
	if err := cutter.RunOnce(context.Background()); err != nil {
		t.Fatalf("cutter pass failed: %v", err)
	}

	for _, electionID := range []string{"election-unconfigured", "election-no-deltas"} {
		deltas, err := store.ListDeltasSince(context.Background(), electionID, 0)
		if err != nil {
			t.Fatalf("list deltas failed: %v", err)
		}
		if len(deltas) != 0 {
			t.Fatalf("election %s: expected no deltas, got %d", electionID, len(deltas))
		}
	}
}

func TestDeltaConcatenationReconstructsSnapshot(t *testing.T) {
	store := memory.NewStore()
	enableDeltaConfig(t, store, "election-1", 5)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cutter := DeltaCutter{Tallies: store, Configs: store, Clock: clock}

	voteSeq := 0
	candidates := []string{"candidate-a", "candidate-b", "candidate-c"}
	for round := 0; round < 4; round++ {
		for i := 0; i <= round; i++ {
			candidate := candidates[(round+i)%len(candidates)]
			voteSeq++
			if _, _, err := store.ApplyConfirmedVote(context.Background(), "election-1", candidate, fmt.Sprintf("vote-%d", voteSeq), clock.Now()); err != nil {
				t.Fatalf("apply vote failed: %v", err)
			}
		}
		clock.Advance(6 * time.Minute)
		if err := cutter.RunOnce(context.Background()); err != nil {
			t.Fatalf("cutter pass failed: %v", err)
		}
	}

	deltas, err := store.ListDeltasSince(context.Background(), "election-1", 0)
	if err != nil {
		t.Fatalf("list deltas failed: %v", err)
	}
	if len(deltas) != 4 {
		t.Fatalf("expected 4 deltas, got %d", len(deltas))
	}
	for i := 1; i < len(deltas); i++ {
		if deltas[i].Seq != deltas[i-1].Seq+1 {
			t.Fatalf("delta sequence gap between %d and %d", deltas[i-1].Seq, deltas[i].Seq)
		}
		if !deltas[i].FromTime.Equal(deltas[i-1].ToTime) {
			t.Fatalf("delta %d overlaps or gaps: from %s, previous to %s", deltas[i].Seq, deltas[i].FromTime, deltas[i-1].ToTime)
		}
	}

	rebuilt := map[string]int{}
	for _, delta := range deltas {
		for candidate, count := range delta.CandidateDeltas {
			rebuilt[candidate] += count
		}
	}
	snapshot, err := store.LatestSnapshot(context.Background(), "election-1")
	if err != nil {
		t.Fatalf("latest snapshot failed: %v", err)
	}
	if len(rebuilt) != len(snapshot.CandidateCounts) {
		t.Fatalf("rebuilt counts %+v differ from snapshot %+v", rebuilt, snapshot.CandidateCounts)
	}
	for candidate, count := range snapshot.CandidateCounts {
		if rebuilt[candidate] != count {
			t.Fatalf("candidate %s: rebuilt %d, snapshot %d", candidate, rebuilt[candidate], count)
		}
	}
}
