package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"quorum/contexts/election-core/ballot-engine/domain/entities"
	domainerrors "quorum/contexts/election-core/ballot-engine/domain/errors"
	"quorum/contexts/election-core/ballot-engine/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	published bool
}

// Store is the in-memory vote repository. One mutex guards the vote map and
// the outbox together so FinalizeVote's transition-plus-append is atomic.
type Store struct {
	mu sync.RWMutex

	votes  map[string]entities.VoteRecord
	outbox map[string]outboxRecord
}

func NewStore(seed []entities.VoteRecord) *Store {
	votes := make(map[string]entities.VoteRecord, len(seed))
	for _, vote := range seed {
		votes[vote.VoteID] = vote
	}
	return &Store{
		votes:  votes,
		outbox: make(map[string]outboxRecord),
	}
}

func (s *Store) SaveVote(_ context.Context, vote entities.VoteRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes[strings.TrimSpace(vote.VoteID)] = vote
	return nil
}

func (s *Store) GetVote(_ context.Context, voteID string) (entities.VoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vote, ok := s.votes[strings.TrimSpace(voteID)]
	if !ok {
		return entities.VoteRecord{}, domainerrors.ErrVoteNotFound
	}
	return vote, nil
}

func (s *Store) ListVotesByElection(_ context.Context, electionID string) ([]entities.VoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.VoteRecord, 0)
	for _, vote := range s.votes {
		if vote.ElectionID == strings.TrimSpace(electionID) {
			items = append(items, vote)
		}
	}
	sortVotesByCast(items)
	return items, nil
}

func (s *Store) TransitionVote(
	_ context.Context,
	voteID string,
	from entities.VoteState,
	to entities.VoteState,
	at time.Time,
) (entities.VoteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(voteID, from, to, at)
}

func (s *Store) FinalizeVote(
	_ context.Context,
	voteID string,
	at time.Time,
	envelope ports.EventEnvelope,
) (entities.VoteRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vote, ok := s.votes[strings.TrimSpace(voteID)]
	if !ok {
		return entities.VoteRecord{}, false, domainerrors.ErrVoteNotFound
	}
	if vote.Terminal() {
		return vote, false, nil
	}
	if !vote.DueAt(at) {
		// Never confirm before the vote's own grace window.
		return vote, false, nil
	}

	updated, err := s.transitionLocked(voteID, entities.StatePending, entities.StateConfirmed, at)
	if err != nil {
		return entities.VoteRecord{}, false, err
	}
	if err := s.appendOutboxLocked(envelope); err != nil {
		// Roll the transition back so the state change and its event stay
		// atomic.
		s.votes[strings.TrimSpace(voteID)] = vote
		return entities.VoteRecord{}, false, err
	}
	return updated, true, nil
}

func (s *Store) transitionLocked(
	voteID string,
	from entities.VoteState,
	to entities.VoteState,
	at time.Time,
) (entities.VoteRecord, error) {
	key := strings.TrimSpace(voteID)
	vote, ok := s.votes[key]
	if !ok {
		return entities.VoteRecord{}, domainerrors.ErrVoteNotFound
	}
	if vote.State != from {
		return entities.VoteRecord{}, domainerrors.ErrVoteAlreadyFinalized
	}

	at = at.UTC()
	vote.State = to
	switch to {
	case entities.StateConfirmed:
		vote.FinalizedAt = &at
	case entities.StateUndone:
		vote.UndoneAt = &at
	}
	s.votes[key] = vote
	return vote, nil
}

func (s *Store) ListDuePending(_ context.Context, now time.Time, limit int) ([]entities.VoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]entities.VoteRecord, 0)
	for _, vote := range s.votes {
		if vote.DueAt(now) {
			items = append(items, vote)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].GraceEndsAt.Before(items[j].GraceEndsAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) appendOutboxLocked(envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if existing, ok := s.outbox[outboxID]; ok {
		if !bytes.Equal(existing.message.Payload, payload) {
			return domainerrors.ErrConflict
		}
		return nil
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	s.outbox[outboxID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    createdAt,
		},
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0, len(s.outbox))
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		items = append(items, row.message)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrConflict
	}
	row.published = true
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func sortVotesByCast(items []entities.VoteRecord) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].CastAt.Before(items[j].CastAt)
	})
}
