package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"quorum/contexts/election-core/tally-engine/domain/entities"
	domainerrors "quorum/contexts/election-core/tally-engine/domain/errors"
	"quorum/contexts/election-core/tally-engine/ports"

	"github.com/google/uuid"
)

type electionTally struct {
	snapshots []entities.TallySnapshot
	deltas    []entities.DeltaRecord
	applied   map[string]struct{}

	pending        map[string]int
	pendingStarted time.Time
	lastCutAt      time.Time
}

// Store is the in-memory tally repository. One mutex guards the applied-vote
// set and the snapshot history together so ApplyConfirmedVote's
// check-then-increment is atomic.
type Store struct {
	mu sync.Mutex

	elections    map[string]*electionTally
	configs      map[string]entities.TallyConfiguration
	reservations map[string]string
}

func NewStore() *Store {
	return &Store{
		elections:    make(map[string]*electionTally),
		configs:      make(map[string]entities.TallyConfiguration),
		reservations: make(map[string]string),
	}
}

func (s *Store) ApplyConfirmedVote(
	_ context.Context,
	electionID string,
	candidateID string,
	voteID string,
	at time.Time,
) (entities.TallySnapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tally := s.electionLocked(strings.TrimSpace(electionID))
	voteID = strings.TrimSpace(voteID)
	if _, seen := tally.applied[voteID]; seen {
		return s.latestLocked(tally, electionID), false, nil
	}
	tally.applied[voteID] = struct{}{}

	counts := s.latestLocked(tally, electionID).CloneCounts()
	counts[strings.TrimSpace(candidateID)]++
	total := 0
	for _, count := range counts {
		total += count
	}
	snapshot := entities.TallySnapshot{
		ElectionID:      strings.TrimSpace(electionID),
		Seq:             int64(len(tally.snapshots)) + 1,
		TotalVotes:      total,
		CandidateCounts: counts,
		TakenAt:         at.UTC(),
	}
	tally.snapshots = append(tally.snapshots, snapshot)

	if len(tally.pending) == 0 {
		tally.pendingStarted = at.UTC()
	}
	tally.pending[strings.TrimSpace(candidateID)]++

	return cloneSnapshot(snapshot), true, nil
}

func (s *Store) LatestSnapshot(_ context.Context, electionID string) (entities.TallySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	electionID = strings.TrimSpace(electionID)
	tally, ok := s.elections[electionID]
	if !ok {
		return zeroSnapshot(electionID), nil
	}
	return s.latestLocked(tally, electionID), nil
}

func (s *Store) SnapshotAsOf(_ context.Context, electionID string, cutoff time.Time) (entities.TallySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	electionID = strings.TrimSpace(electionID)
	tally, ok := s.elections[electionID]
	if !ok {
		return zeroSnapshot(electionID), nil
	}
	for i := len(tally.snapshots) - 1; i >= 0; i-- {
		if !tally.snapshots[i].TakenAt.After(cutoff) {
			return cloneSnapshot(tally.snapshots[i]), nil
		}
	}
	return zeroSnapshot(electionID), nil
}

func (s *Store) ListDeltasSince(_ context.Context, electionID string, sinceSeq int64) ([]entities.DeltaRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tally, ok := s.elections[strings.TrimSpace(electionID)]
	if !ok {
		return []entities.DeltaRecord{}, nil
	}
	items := make([]entities.DeltaRecord, 0, len(tally.deltas))
	for _, delta := range tally.deltas {
		if delta.Seq > sinceSeq {
			items = append(items, cloneDelta(delta))
		}
	}
	return items, nil
}

func (s *Store) PendingDeltaElections(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	elections := make([]string, 0, len(s.elections))
	for electionID, tally := range s.elections {
		if len(tally.pending) > 0 {
			elections = append(elections, electionID)
		}
	}
	sort.Strings(elections)
	return elections, nil
}

func (s *Store) CutDelta(
	_ context.Context,
	electionID string,
	now time.Time,
	minInterval time.Duration,
) (entities.DeltaRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tally, ok := s.elections[strings.TrimSpace(electionID)]
	if !ok || len(tally.pending) == 0 {
		return entities.DeltaRecord{}, false, nil
	}
	if !tally.lastCutAt.IsZero() && now.Sub(tally.lastCutAt) < minInterval {
		return entities.DeltaRecord{}, false, nil
	}

	from := tally.lastCutAt
	if from.IsZero() {
		from = tally.pendingStarted
	}
	delta := entities.DeltaRecord{
		ElectionID:      strings.TrimSpace(electionID),
		Seq:             int64(len(tally.deltas)) + 1,
		CandidateDeltas: tally.pending,
		FromTime:        from.UTC(),
		ToTime:          now.UTC(),
	}
	tally.deltas = append(tally.deltas, delta)
	tally.pending = make(map[string]int)
	tally.pendingStarted = time.Time{}
	tally.lastCutAt = now.UTC()

	return cloneDelta(delta), true, nil
}

func (s *Store) UpsertConfig(_ context.Context, config entities.TallyConfiguration) (entities.TallyConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[strings.TrimSpace(config.ElectionID)] = config
	return config, nil
}

func (s *Store) GetConfig(_ context.Context, electionID string) (entities.TallyConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	config, ok := s.configs[strings.TrimSpace(electionID)]
	if !ok {
		return entities.TallyConfiguration{}, domainerrors.ErrTallyNotConfigured
	}
	return config, nil
}

func (s *Store) ReserveEvent(_ context.Context, eventID string, payloadHash string, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.reservations[eventID]
	if ok {
		if existing != payloadHash {
			return false, domainerrors.ErrConflict
		}
		return true, nil
	}
	s.reservations[eventID] = payloadHash
	return false, nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *Store) electionLocked(electionID string) *electionTally {
	tally, ok := s.elections[electionID]
	if !ok {
		tally = &electionTally{
			applied: make(map[string]struct{}),
			pending: make(map[string]int),
		}
		s.elections[electionID] = tally
	}
	return tally
}

func (s *Store) latestLocked(tally *electionTally, electionID string) entities.TallySnapshot {
	if len(tally.snapshots) == 0 {
		return zeroSnapshot(strings.TrimSpace(electionID))
	}
	return cloneSnapshot(tally.snapshots[len(tally.snapshots)-1])
}

func zeroSnapshot(electionID string) entities.TallySnapshot {
	return entities.TallySnapshot{
		ElectionID:      electionID,
		CandidateCounts: map[string]int{},
	}
}

func cloneSnapshot(snapshot entities.TallySnapshot) entities.TallySnapshot {
	snapshot.CandidateCounts = snapshot.CloneCounts()
	return snapshot
}

func cloneDelta(delta entities.DeltaRecord) entities.DeltaRecord {
	deltas := make(map[string]int, len(delta.CandidateDeltas))
	for candidate, count := range delta.CandidateDeltas {
		deltas[candidate] = count
	}
	delta.CandidateDeltas = deltas
	return delta
}

var _ ports.TallyRepository = (*Store)(nil)
var _ ports.ConfigRepository = (*Store)(nil)
var _ ports.EventDedupStore = (*Store)(nil)
var _ ports.Clock = (*Store)(nil)
var _ ports.IDGenerator = (*Store)(nil)
