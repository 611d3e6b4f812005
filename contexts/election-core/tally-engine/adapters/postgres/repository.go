package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"quorum/contexts/election-core/tally-engine/domain/entities"
	domainerrors "quorum/contexts/election-core/tally-engine/domain/errors"
	"quorum/contexts/election-core/tally-engine/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
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

// ApplyConfirmedVote claims the vote id and advances the snapshot history in
// one transaction. The applied-vote insert is the idempotency gate; the row
// lock on the latest snapshot serializes concurrent increments per election.
func (r *Repository) ApplyConfirmedVote(
	ctx context.Context,
	electionID string,
	candidateID string,
	voteID string,
	at time.Time,
) (entities.TallySnapshot, bool, error) {
	electionID = strings.TrimSpace(electionID)
	candidateID = strings.TrimSpace(candidateID)
	voteID = strings.TrimSpace(voteID)

	var snapshot entities.TallySnapshot
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claim := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "election_id"}, {Name: "vote_id"}},
			DoNothing: true,
		}).Create(&appliedVoteModel{
			ElectionID: electionID,
			VoteID:     voteID,
			AppliedAt:  at.UTC(),
		})
		if claim.Error != nil {
			return r.logError("tally_repo_claim_vote_failed", claim.Error,
				"election_id", electionID,
				"vote_id", voteID,
			)
		}
		if claim.RowsAffected == 0 {
			latest, err := r.latestSnapshot(ctx, tx, electionID, false)
			if err != nil {
				return err
			}
			snapshot = latest
			return nil
		}

		latest, err := r.latestSnapshot(ctx, tx, electionID, true)
		if err != nil {
			return err
		}
		counts := latest.CloneCounts()
		counts[candidateID]++
		total := 0
		for _, count := range counts {
			total += count
		}
		payload, err := json.Marshal(counts)
		if err != nil {
			return r.logError("tally_repo_snapshot_marshal_failed", err,
				"election_id", electionID,
			)
		}
		row := snapshotModel{
			ElectionID:    electionID,
			Seq:           latest.Seq + 1,
			TotalVotes:    total,
			CandidateData: payload,
			TakenAt:       at.UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrConflict
			}
			return r.logError("tally_repo_snapshot_insert_failed", err,
				"election_id", electionID,
				"seq", row.Seq,
			)
		}

		pending := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "election_id"}, {Name: "candidate_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"delta_count": gorm.Expr("tally_pending.delta_count + 1"),
			}),
		}).Create(&pendingModel{
			ElectionID:  electionID,
			CandidateID: candidateID,
			DeltaCount:  1,
			StartedAt:   at.UTC(),
		})
		if pending.Error != nil {
			return r.logError("tally_repo_pending_upsert_failed", pending.Error,
				"election_id", electionID,
				"candidate_id", candidateID,
			)
		}

		snapshot = entities.TallySnapshot{
			ElectionID:      electionID,
			Seq:             row.Seq,
			TotalVotes:      total,
			CandidateCounts: counts,
			TakenAt:         row.TakenAt,
		}
		applied = true
		return nil
	})
	if err != nil {
		return entities.TallySnapshot{}, false, err
	}
	return snapshot, applied, nil
}

func (r *Repository) LatestSnapshot(ctx context.Context, electionID string) (entities.TallySnapshot, error) {
	return r.latestSnapshot(ctx, r.db, strings.TrimSpace(electionID), false)
}

func (r *Repository) latestSnapshot(ctx context.Context, tx *gorm.DB, electionID string, lock bool) (entities.TallySnapshot, error) {
	query := tx.WithContext(ctx).
		Where("election_id = ?", electionID).
		Order("seq DESC")
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row snapshotModel
	err := query.First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return zeroSnapshot(electionID), nil
	}
	if err != nil {
		return entities.TallySnapshot{}, r.logError("tally_repo_latest_snapshot_failed", err,
			"election_id", electionID,
		)
	}
	return row.toEntity(r)
}

func (r *Repository) SnapshotAsOf(ctx context.Context, electionID string, cutoff time.Time) (entities.TallySnapshot, error) {
	electionID = strings.TrimSpace(electionID)
	var row snapshotModel
	err := r.db.WithContext(ctx).
		Where("election_id = ?", electionID).
		Where("taken_at <= ?", cutoff.UTC()).
		Order("seq DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return zeroSnapshot(electionID), nil
	}
	if err != nil {
		return entities.TallySnapshot{}, r.logError("tally_repo_snapshot_as_of_failed", err,
			"election_id", electionID,
		)
	}
	return row.toEntity(r)
}

func (r *Repository) ListDeltasSince(ctx context.Context, electionID string, sinceSeq int64) ([]entities.DeltaRecord, error) {
	electionID = strings.TrimSpace(electionID)
	var rows []deltaModel
	if err := r.db.WithContext(ctx).
		Where("election_id = ?", electionID).
		Where("seq > ?", sinceSeq).
		Order("seq ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("tally_repo_list_deltas_failed", err,
			"election_id", electionID,
		)
	}
	items := make([]entities.DeltaRecord, 0, len(rows))
	for _, row := range rows {
		delta, err := row.toEntity(r)
		if err != nil {
			return nil, err
		}
		items = append(items, delta)
	}
	return items, nil
}

func (r *Repository) PendingDeltaElections(ctx context.Context) ([]string, error) {
	var elections []string
	if err := r.db.WithContext(ctx).
		Model(&pendingModel{}).
		Distinct("election_id").
		Order("election_id ASC").
		Pluck("election_id", &elections).Error; err != nil {
		return nil, r.logError("tally_repo_pending_elections_failed", err)
	}
	return elections, nil
}

// CutDelta seals the pending increments inside one transaction so a
// concurrent ApplyConfirmedVote either lands in this delta or the next one,
// never in both.
func (r *Repository) CutDelta(
	ctx context.Context,
	electionID string,
	now time.Time,
	minInterval time.Duration,
) (entities.DeltaRecord, bool, error) {
	electionID = strings.TrimSpace(electionID)
	var delta entities.DeltaRecord
	sealed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending []pendingModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("election_id = ?", electionID).
			Find(&pending).Error; err != nil {
			return r.logError("tally_repo_pending_load_failed", err,
				"election_id", electionID,
			)
		}
		if len(pending) == 0 {
			return nil
		}

		var last deltaModel
		lastSeq := int64(0)
		from := time.Time{}
		err := tx.Where("election_id = ?", electionID).
			Order("seq DESC").
			First(&last).Error
		switch {
		case err == nil:
			lastSeq = last.Seq
			from = last.ToTime.UTC()
			if now.Sub(from) < minInterval {
				return nil
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// First cut starts at the earliest pending increment.
			for _, row := range pending {
				if from.IsZero() || row.StartedAt.Before(from) {
					from = row.StartedAt.UTC()
				}
			}
		default:
			return r.logError("tally_repo_last_delta_load_failed", err,
				"election_id", electionID,
			)
		}

		counts := make(map[string]int, len(pending))
		for _, row := range pending {
			counts[row.CandidateID] = row.DeltaCount
		}
		payload, err := json.Marshal(counts)
		if err != nil {
			return r.logError("tally_repo_delta_marshal_failed", err,
				"election_id", electionID,
			)
		}
		row := deltaModel{
			ElectionID:    electionID,
			Seq:           lastSeq + 1,
			CandidateData: payload,
			FromTime:      from,
			ToTime:        now.UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrConflict
			}
			return r.logError("tally_repo_delta_insert_failed", err,
				"election_id", electionID,
				"seq", row.Seq,
			)
		}
		if err := tx.Where("election_id = ?", electionID).
			Delete(&pendingModel{}).Error; err != nil {
			return r.logError("tally_repo_pending_clear_failed", err,
				"election_id", electionID,
			)
		}

		delta = entities.DeltaRecord{
			ElectionID:      electionID,
			Seq:             row.Seq,
			CandidateDeltas: counts,
			FromTime:        row.FromTime,
			ToTime:          row.ToTime,
		}
		sealed = true
		return nil
	})
	if err != nil {
		return entities.DeltaRecord{}, false, err
	}
	return delta, sealed, nil
}

func (r *Repository) UpsertConfig(ctx context.Context, config entities.TallyConfiguration) (entities.TallyConfiguration, error) {
	row := configModel{
		TenantID:             strings.TrimSpace(config.TenantID),
		ElectionID:           strings.TrimSpace(config.ElectionID),
		Mode:                 string(config.Mode),
		DelayMinutes:         config.DelayMinutes,
		EnableDeltas:         config.EnableDeltas,
		DeltaIntervalMinutes: config.DeltaIntervalMinutes,
		UpdatedAt:            config.UpdatedAt.UTC(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "election_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"mode", "delay_minutes", "enable_deltas", "delta_interval_minutes", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return entities.TallyConfiguration{}, r.logError("tally_repo_config_upsert_failed", err,
			"tenant_id", row.TenantID,
			"election_id", row.ElectionID,
		)
	}
	return row.toEntity(), nil
}

func (r *Repository) GetConfig(ctx context.Context, electionID string) (entities.TallyConfiguration, error) {
	var row configModel
	err := r.db.WithContext(ctx).
		Where("election_id = ?", strings.TrimSpace(electionID)).
		Order("updated_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return entities.TallyConfiguration{}, domainerrors.ErrTallyNotConfigured
	}
	if err != nil {
		return entities.TallyConfiguration{}, r.logError("tally_repo_config_get_failed", err,
			"election_id", strings.TrimSpace(electionID),
		)
	}
	return row.toEntity(), nil
}

func (r *Repository) ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error) {
	row := processedEventModel{
		EventID:     strings.TrimSpace(eventID),
		PayloadHash: payloadHash,
		ExpiresAt:   expiresAt.UTC(),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return false, r.logError("tally_repo_reserve_event_failed", create.Error,
			"event_id", row.EventID,
		)
	}
	if create.RowsAffected > 0 {
		return false, nil
	}

	var existing processedEventModel
	if err := r.db.WithContext(ctx).
		Where("event_id = ?", row.EventID).
		First(&existing).Error; err != nil {
		return false, r.logError("tally_repo_reserve_event_load_failed", err,
			"event_id", row.EventID,
		)
	}
	if existing.PayloadHash != payloadHash {
		return false, domainerrors.ErrConflict
	}
	return true, nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "election-core/tally-engine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("tally repository operation failed", fields...)
	return err
}

func zeroSnapshot(electionID string) entities.TallySnapshot {
	return entities.TallySnapshot{
		ElectionID:      electionID,
		CandidateCounts: map[string]int{},
	}
}

type configModel struct {
	TenantID             string    `gorm:"column:tenant_id;primaryKey"`
	ElectionID           string    `gorm:"column:election_id;primaryKey"`
	Mode                 string    `gorm:"column:mode"`
	DelayMinutes         int       `gorm:"column:delay_minutes"`
	EnableDeltas         bool      `gorm:"column:enable_deltas"`
	DeltaIntervalMinutes int       `gorm:"column:delta_interval_minutes"`
	UpdatedAt            time.Time `gorm:"column:updated_at"`
}

func (configModel) TableName() string {
	return "tally_configurations"
}

func (m configModel) toEntity() entities.TallyConfiguration {
	return entities.TallyConfiguration{
		TenantID:             m.TenantID,
		ElectionID:           m.ElectionID,
		Mode:                 entities.DisclosureMode(m.Mode),
		DelayMinutes:         m.DelayMinutes,
		EnableDeltas:         m.EnableDeltas,
		DeltaIntervalMinutes: m.DeltaIntervalMinutes,
		UpdatedAt:            m.UpdatedAt.UTC(),
	}
}

type snapshotModel struct {
	ElectionID    string    `gorm:"column:election_id;primaryKey"`
	Seq           int64     `gorm:"column:seq;primaryKey"`
	TotalVotes    int       `gorm:"column:total_votes"`
	CandidateData []byte    `gorm:"column:candidate_data"`
	TakenAt       time.Time `gorm:"column:taken_at"`
}

func (snapshotModel) TableName() string {
	return "tally_snapshots"
}

func (m snapshotModel) toEntity(r *Repository) (entities.TallySnapshot, error) {
	counts := map[string]int{}
	if len(m.CandidateData) > 0 {
		if err := json.Unmarshal(m.CandidateData, &counts); err != nil {
			return entities.TallySnapshot{}, r.logError("tally_repo_snapshot_decode_failed", err,
				"election_id", m.ElectionID,
				"seq", m.Seq,
			)
		}
	}
	return entities.TallySnapshot{
		ElectionID:      m.ElectionID,
		Seq:             m.Seq,
		TotalVotes:      m.TotalVotes,
		CandidateCounts: counts,
		TakenAt:         m.TakenAt.UTC(),
	}, nil
}

type deltaModel struct {
	ElectionID    string    `gorm:"column:election_id;primaryKey"`
	Seq           int64     `gorm:"column:seq;primaryKey"`
	CandidateData []byte    `gorm:"column:candidate_data"`
	FromTime      time.Time `gorm:"column:from_time"`
	ToTime        time.Time `gorm:"column:to_time"`
}

func (deltaModel) TableName() string {
	return "tally_deltas"
}

func (m deltaModel) toEntity(r *Repository) (entities.DeltaRecord, error) {
	counts := map[string]int{}
	if len(m.CandidateData) > 0 {
		if err := json.Unmarshal(m.CandidateData, &counts); err != nil {
			return entities.DeltaRecord{}, r.logError("tally_repo_delta_decode_failed", err,
				"election_id", m.ElectionID,
				"seq", m.Seq,
			)
		}
	}
	return entities.DeltaRecord{
		ElectionID:      m.ElectionID,
		Seq:             m.Seq,
		CandidateDeltas: counts,
		FromTime:        m.FromTime.UTC(),
		ToTime:          m.ToTime.UTC(),
	}, nil
}

type appliedVoteModel struct {
	ElectionID string    `gorm:"column:election_id;primaryKey"`
	VoteID     string    `gorm:"column:vote_id;primaryKey"`
	AppliedAt  time.Time `gorm:"column:applied_at"`
}

func (appliedVoteModel) TableName() string {
	return "tally_applied_votes"
}

type pendingModel struct {
	ElectionID  string    `gorm:"column:election_id;primaryKey"`
	CandidateID string    `gorm:"column:candidate_id;primaryKey"`
	DeltaCount  int       `gorm:"column:delta_count"`
	StartedAt   time.Time `gorm:"column:started_at"`
}

func (pendingModel) TableName() string {
	return "tally_pending"
}

type processedEventModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	PayloadHash string    `gorm:"column:payload_hash"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
}

func (processedEventModel) TableName() string {
	return "tally_processed_events"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.TallyRepository = (*Repository)(nil)
var _ ports.ConfigRepository = (*Repository)(nil)
var _ ports.EventDedupStore = (*Repository)(nil)
