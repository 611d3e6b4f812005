package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"quorum/contexts/election-core/ballot-engine/domain/entities"
	domainerrors "quorum/contexts/election-core/ballot-engine/domain/errors"
	"quorum/contexts/election-core/ballot-engine/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) SaveVote(ctx context.Context, vote entities.VoteRecord) error {
	row := voteModelFromEntity(vote)
	create := r.db.WithContext(ctx).Create(&row)
	if create.Error != nil {
		if isUniqueViolation(create.Error) {
			return domainerrors.ErrConflict
		}
		return r.logError("ballot_repo_save_vote_failed", create.Error,
			"vote_id", strings.TrimSpace(vote.VoteID),
			"election_id", strings.TrimSpace(vote.ElectionID),
		)
	}
	return nil
}

func (r *Repository) GetVote(ctx context.Context, voteID string) (entities.VoteRecord, error) {
	var row voteModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(voteID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.VoteRecord{}, domainerrors.ErrVoteNotFound
		}
		return entities.VoteRecord{}, r.logError("ballot_repo_get_vote_failed", err,
			"vote_id", strings.TrimSpace(voteID),
		)
	}
	return row.toEntity(), nil
}

func (r *Repository) ListVotesByElection(ctx context.Context, electionID string) ([]entities.VoteRecord, error) {
	var rows []voteModel
	if err := r.db.WithContext(ctx).
		Where("election_id = ?", strings.TrimSpace(electionID)).
		Order("cast_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("ballot_repo_list_votes_by_election_failed", err,
			"election_id", strings.TrimSpace(electionID),
		)
	}
	items := make([]entities.VoteRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

// TransitionVote applies the state change with a single conditional UPDATE so
// two racing transitions on the same record resolve to exactly one winner in
// the database.
func (r *Repository) TransitionVote(
	ctx context.Context,
	voteID string,
	from entities.VoteState,
	to entities.VoteState,
	at time.Time,
) (entities.VoteRecord, error) {
	return r.transitionVote(ctx, r.db, voteID, from, to, at)
}

func (r *Repository) transitionVote(
	ctx context.Context,
	tx *gorm.DB,
	voteID string,
	from entities.VoteState,
	to entities.VoteState,
	at time.Time,
) (entities.VoteRecord, error) {
	voteID = strings.TrimSpace(voteID)
	updates := map[string]any{"state": string(to)}
	switch to {
	case entities.StateConfirmed:
		updates["finalized_at"] = at.UTC()
	case entities.StateUndone:
		updates["undone_at"] = at.UTC()
	}

	result := tx.WithContext(ctx).
		Model(&voteModel{}).
		Where("id = ?", voteID).
		Where("state = ?", string(from)).
		Updates(updates)
	if result.Error != nil {
		return entities.VoteRecord{}, r.logError("ballot_repo_transition_vote_failed", result.Error,
			"vote_id", voteID,
			"from", string(from),
			"to", string(to),
		)
	}
	if result.RowsAffected == 0 {
		var row voteModel
		err := tx.WithContext(ctx).
			Where("id = ?", voteID).
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.VoteRecord{}, domainerrors.ErrVoteNotFound
		}
		if err != nil {
			return entities.VoteRecord{}, r.logError("ballot_repo_transition_vote_load_failed", err,
				"vote_id", voteID,
			)
		}
		return entities.VoteRecord{}, domainerrors.ErrVoteAlreadyFinalized
	}

	var row voteModel
	if err := tx.WithContext(ctx).
		Where("id = ?", voteID).
		First(&row).Error; err != nil {
		return entities.VoteRecord{}, r.logError("ballot_repo_transition_vote_reload_failed", err,
			"vote_id", voteID,
		)
	}
	return row.toEntity(), nil
}

func (r *Repository) ListDuePending(ctx context.Context, now time.Time, limit int) ([]entities.VoteRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []voteModel
	if err := r.db.WithContext(ctx).
		Where("state = ?", string(entities.StatePending)).
		Where("grace_period_end <= ?", now.UTC()).
		Order("grace_period_end ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("ballot_repo_list_due_pending_failed", err, "limit", limit)
	}
	items := make([]entities.VoteRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

// FinalizeVote runs the confirmed transition and the outbox append in one
// transaction. A record that is already terminal, or still inside its grace
// window, is a benign no-op. The window check lives in the UPDATE predicate
// so the database enforces it even when a caller bypasses the due scan.
func (r *Repository) FinalizeVote(
	ctx context.Context,
	voteID string,
	at time.Time,
	envelope ports.EventEnvelope,
) (entities.VoteRecord, bool, error) {
	voteID = strings.TrimSpace(voteID)
	var updated entities.VoteRecord
	won := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).
			Model(&voteModel{}).
			Where("id = ?", voteID).
			Where("state = ?", string(entities.StatePending)).
			Where("grace_period_end <= ?", at.UTC()).
			Updates(map[string]any{
				"state":        string(entities.StateConfirmed),
				"finalized_at": at.UTC(),
			})
		if result.Error != nil {
			return r.logError("ballot_repo_finalize_vote_failed", result.Error,
				"vote_id", voteID,
			)
		}
		if result.RowsAffected == 0 {
			var row voteModel
			err := tx.WithContext(ctx).
				Where("id = ?", voteID).
				First(&row).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrVoteNotFound
			}
			if err != nil {
				return r.logError("ballot_repo_finalize_vote_load_failed", err,
					"vote_id", voteID,
				)
			}
			updated = row.toEntity()
			return nil
		}
		if err := r.appendOutbox(ctx, tx, envelope); err != nil {
			return err
		}
		var row voteModel
		if err := tx.WithContext(ctx).
			Where("id = ?", voteID).
			First(&row).Error; err != nil {
			return r.logError("ballot_repo_finalize_vote_reload_failed", err,
				"vote_id", voteID,
			)
		}
		updated = row.toEntity()
		won = true
		return nil
	})
	if err != nil {
		return entities.VoteRecord{}, false, err
	}
	return updated, won, nil
}

func (r *Repository) appendOutbox(ctx context.Context, tx *gorm.DB, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("ballot_repo_append_outbox_marshal_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
			"event_type", strings.TrimSpace(envelope.EventType),
		)
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	create := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("ballot_repo_append_outbox_insert_failed", create.Error,
			"outbox_id", row.OutboxID,
		)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing outboxModel
	if err := tx.WithContext(ctx).
		Select("payload").
		Where("outbox_id = ?", row.OutboxID).
		First(&existing).Error; err != nil {
		return r.logError("ballot_repo_append_outbox_load_existing_failed", err,
			"outbox_id", row.OutboxID,
		)
	}
	if !bytes.Equal(existing.Payload, row.Payload) {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("ballot_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("ballot_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "election-core/ballot-engine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("ballot repository operation failed", fields...)
	return err
}

type voteModel struct {
	ID             string     `gorm:"column:id;primaryKey"`
	ElectionID     string     `gorm:"column:election_id"`
	CandidateID    string     `gorm:"column:candidate_id"`
	CandidateName  string     `gorm:"column:candidate_name"`
	VoterID        string     `gorm:"column:voter_id"`
	State          string     `gorm:"column:state"`
	CastAt         time.Time  `gorm:"column:cast_at"`
	GracePeriodEnd time.Time  `gorm:"column:grace_period_end"`
	FinalizedAt    *time.Time `gorm:"column:finalized_at"`
	UndoneAt       *time.Time `gorm:"column:undone_at"`
}

func (voteModel) TableName() string {
	return "vote_confirmations"
}

func voteModelFromEntity(vote entities.VoteRecord) voteModel {
	return voteModel{
		ID:             strings.TrimSpace(vote.VoteID),
		ElectionID:     strings.TrimSpace(vote.ElectionID),
		CandidateID:    strings.TrimSpace(vote.CandidateID),
		CandidateName:  strings.TrimSpace(vote.CandidateName),
		VoterID:        strings.TrimSpace(vote.VoterID),
		State:          string(vote.State),
		CastAt:         vote.CastAt.UTC(),
		GracePeriodEnd: vote.GraceEndsAt.UTC(),
		FinalizedAt:    normalizeOptionalTime(vote.FinalizedAt),
		UndoneAt:       normalizeOptionalTime(vote.UndoneAt),
	}
}

func (m voteModel) toEntity() entities.VoteRecord {
	return entities.VoteRecord{
		VoteID:        m.ID,
		ElectionID:    m.ElectionID,
		CandidateID:   m.CandidateID,
		CandidateName: m.CandidateName,
		VoterID:       m.VoterID,
		State:         entities.VoteState(m.State),
		CastAt:        m.CastAt.UTC(),
		GraceEndsAt:   m.GracePeriodEnd.UTC(),
		FinalizedAt:   normalizeOptionalTime(m.FinalizedAt),
		UndoneAt:      normalizeOptionalTime(m.UndoneAt),
	}
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "ballot_outbox"
}

func normalizeOptionalTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	timestamp := value.UTC()
	return &timestamp
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.VoteRepository = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
