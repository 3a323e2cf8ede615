package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "commitreveal/contexts/governance/commit-reveal-voting/application"
	"commitreveal/contexts/governance/commit-reveal-voting/domain/entities"
	domainerrors "commitreveal/contexts/governance/commit-reveal-voting/domain/errors"
	"commitreveal/contexts/governance/commit-reveal-voting/ports"
	"commitreveal/internal/shared/outbox"

	"github.com/google/uuid"
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

// Migrate creates the tables owned by the module when they are missing.
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(
		&sessionModel{},
		&commitModel{},
		&idempotencyModel{},
		&outboxModel{},
		&eventDedupModel{},
	); err != nil {
		return r.logError("commit_reveal_repo_migrate_failed", err)
	}
	return nil
}

func (r *Repository) CreateSession(ctx context.Context, session entities.VotingSession) error {
	row := sessionModelFromEntity(session)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrConflict
		}
		return r.logError("commit_reveal_repo_create_session_failed", err,
			"session_id", row.SessionID,
		)
	}
	return nil
}

func (r *Repository) GetSession(ctx context.Context, sessionID string) (entities.VotingSession, error) {
	var row sessionModel
	err := r.db.WithContext(ctx).
		Where("session_id = ?", strings.TrimSpace(sessionID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.VotingSession{}, domainerrors.ErrSessionNotFound
		}
		return entities.VotingSession{}, r.logError("commit_reveal_repo_get_session_failed", err,
			"session_id", strings.TrimSpace(sessionID),
		)
	}
	return row.toEntity(), nil
}

func (r *Repository) AppendCommit(
	ctx context.Context,
	sessionID string,
	commitment entities.Commitment,
	voterID string,
	now time.Time,
) (entities.VotingSession, entities.CommitRecord, error) {
	var (
		session entities.VotingSession
		record  entities.CommitRecord
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row sessionModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("session_id = ?", strings.TrimSpace(sessionID)).
			First(&row).
			Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrSessionNotFound
			}
			return err
		}

		var existing int64
		if err := tx.Model(&commitModel{}).
			Where("session_id = ? AND commit_hash = ?", row.SessionID, commitment.String()).
			Count(&existing).
			Error; err != nil {
			return err
		}
		if existing > 0 {
			return domainerrors.ErrDuplicateCommit
		}

		session = row.toEntity()
		accepted, err := session.AcceptCommit(commitment, voterID, now)
		if err != nil {
			return err
		}
		record = accepted

		commitRow := commitModelFromEntity(record)
		if err := tx.Create(&commitRow).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrDuplicateCommit
			}
			return err
		}
		return tx.Model(&sessionModel{}).
			Where("session_id = ?", session.SessionID).
			Updates(map[string]any{
				"commit_count": session.CommitCount,
				"updated_at":   session.UpdatedAt.UTC(),
			}).
			Error
	})
	if err != nil {
		if isDomainError(err) {
			return entities.VotingSession{}, entities.CommitRecord{}, err
		}
		return entities.VotingSession{}, entities.CommitRecord{}, r.logError("commit_reveal_repo_append_commit_failed", err,
			"session_id", strings.TrimSpace(sessionID),
			"commit_hash", commitment.String(),
		)
	}
	return session, record, nil
}

func (r *Repository) RevealCommit(
	ctx context.Context,
	sessionID string,
	commitment entities.Commitment,
	choice entities.Choice,
	voterID string,
	now time.Time,
) (entities.VotingSession, entities.CommitRecord, error) {
	var (
		session entities.VotingSession
		record  entities.CommitRecord
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row sessionModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("session_id = ?", strings.TrimSpace(sessionID)).
			First(&row).
			Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrSessionNotFound
			}
			return err
		}
		session = row.toEntity()

		var commitRow commitModel
		if err := tx.Where("session_id = ? AND commit_hash = ?", session.SessionID, commitment.String()).
			First(&commitRow).
			Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				if checkErr := session.CheckReveal(now, choice); checkErr != nil {
					return checkErr
				}
				return domainerrors.ErrUnknownCommitment
			}
			return err
		}
		record = commitRow.toEntity()
		if err := session.ApplyReveal(&record, choice, voterID, now); err != nil {
			return err
		}

		update := tx.Model(&commitModel{}).
			Where("session_id = ? AND commit_hash = ?", session.SessionID, commitRow.CommitHash).
			Where("status = ?", string(entities.CommitStatusCommitted)).
			Updates(map[string]any{
				"status":      string(record.Status),
				"choice":      int(record.Choice),
				"revealed_by": record.RevealedBy,
				"revealed_at": record.RevealedAt.UTC(),
			})
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return domainerrors.ErrAlreadyRevealed
		}
		return tx.Model(&sessionModel{}).
			Where("session_id = ?", session.SessionID).
			Updates(map[string]any{
				"votes_choice_1": session.Tally.Choice1,
				"votes_choice_2": session.Tally.Choice2,
				"revealed_count": session.RevealedCount,
				"updated_at":     session.UpdatedAt.UTC(),
			}).
			Error
	})
	if err != nil {
		if isDomainError(err) {
			return entities.VotingSession{}, entities.CommitRecord{}, err
		}
		return entities.VotingSession{}, entities.CommitRecord{}, r.logError("commit_reveal_repo_reveal_commit_failed", err,
			"session_id", strings.TrimSpace(sessionID),
			"commit_hash", commitment.String(),
		)
	}
	return session, record, nil
}

func (r *Repository) ListCommits(ctx context.Context, sessionID string) ([]entities.CommitRecord, error) {
	if _, err := r.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	var rows []commitModel
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", strings.TrimSpace(sessionID)).
		Order("position ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("commit_reveal_repo_list_commits_failed", err,
			"session_id", strings.TrimSpace(sessionID),
		)
	}
	items := make([]entities.CommitRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) GetCommit(
	ctx context.Context,
	sessionID string,
	commitment entities.Commitment,
) (entities.CommitRecord, error) {
	if _, err := r.GetSession(ctx, sessionID); err != nil {
		return entities.CommitRecord{}, err
	}
	var row commitModel
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND commit_hash = ?", strings.TrimSpace(sessionID), commitment.String()).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.CommitRecord{}, domainerrors.ErrUnknownCommitment
		}
		return entities.CommitRecord{}, r.logError("commit_reveal_repo_get_commit_failed", err,
			"session_id", strings.TrimSpace(sessionID),
			"commit_hash", commitment.String(),
		)
	}
	return row.toEntity(), nil
}

func (r *Repository) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	var row idempotencyModel
	err := r.db.WithContext(ctx).
		Where("key = ?", strings.TrimSpace(key)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, r.logError("commit_reveal_repo_idempotency_get_failed", err,
			"idempotency_key", strings.TrimSpace(key),
		)
	}
	if !row.ExpiresAt.IsZero() && !row.ExpiresAt.UTC().After(now.UTC()) {
		if err := r.db.WithContext(ctx).
			Where("key = ?", strings.TrimSpace(key)).
			Delete(&idempotencyModel{}).Error; err != nil {
			return ports.IdempotencyRecord{}, false, r.logError("commit_reveal_repo_idempotency_expire_delete_failed", err,
				"idempotency_key", strings.TrimSpace(key),
			)
		}
		return ports.IdempotencyRecord{}, false, nil
	}
	return ports.IdempotencyRecord{
		Key:         row.Key,
		RequestHash: row.RequestHash,
		SessionID:   row.SessionID,
		ExpiresAt:   row.ExpiresAt.UTC(),
	}, true, nil
}

func (r *Repository) Put(ctx context.Context, record ports.IdempotencyRecord) error {
	row := idempotencyModel{
		Key:         strings.TrimSpace(record.Key),
		RequestHash: strings.TrimSpace(record.RequestHash),
		SessionID:   strings.TrimSpace(record.SessionID),
		ExpiresAt:   record.ExpiresAt.UTC(),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("commit_reveal_repo_idempotency_put_failed", create.Error, "idempotency_key", row.Key)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing idempotencyModel
	if err := r.db.WithContext(ctx).
		Where("key = ?", row.Key).
		First(&existing).Error; err != nil {
		return r.logError("commit_reveal_repo_idempotency_load_existing_failed", err, "idempotency_key", row.Key)
	}
	if existing.RequestHash != row.RequestHash || existing.SessionID != row.SessionID {
		return domainerrors.ErrIdempotencyConflict
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, key string) error {
	if err := r.db.WithContext(ctx).
		Where("key = ?", strings.TrimSpace(key)).
		Delete(&idempotencyModel{}).Error; err != nil {
		return r.logError("commit_reveal_repo_idempotency_delete_failed", err,
			"idempotency_key", strings.TrimSpace(key),
		)
	}
	return nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("commit_reveal_repo_append_outbox_marshal_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
			"event_type", strings.TrimSpace(envelope.EventType),
		)
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outbox.StatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("commit_reveal_repo_append_outbox_insert_failed", create.Error,
			"outbox_id", row.OutboxID,
		)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing outboxModel
	if err := r.db.WithContext(ctx).
		Select("payload").
		Where("outbox_id = ?", row.OutboxID).
		First(&existing).Error; err != nil {
		return r.logError("commit_reveal_repo_append_outbox_load_existing_failed", err,
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
		Where("status = ?", outbox.StatusPending).
		Order("sequence ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("commit_reveal_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			Sequence:     row.Sequence,
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
			"status":       outbox.StatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("commit_reveal_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ReserveEvent(
	ctx context.Context,
	eventID string,
	payloadHash string,
	expiresAt time.Time,
) (bool, error) {
	row := eventDedupModel{
		EventID:     strings.TrimSpace(eventID),
		PayloadHash: strings.TrimSpace(payloadHash),
		ExpiresAt:   expiresAt.UTC(),
		ProcessedAt: time.Now().UTC(),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return false, r.logError("commit_reveal_repo_reserve_event_failed", create.Error,
			"event_id", strings.TrimSpace(eventID),
		)
	}
	if create.RowsAffected > 0 {
		return false, nil
	}

	var existing eventDedupModel
	if err := r.db.WithContext(ctx).
		Select("payload_hash").
		Where("event_id = ?", row.EventID).
		First(&existing).Error; err != nil {
		return false, r.logError("commit_reveal_repo_reserve_event_load_existing_failed", err,
			"event_id", strings.TrimSpace(eventID),
		)
	}
	if existing.PayloadHash != row.PayloadHash {
		return false, domainerrors.ErrConflict
	}
	return true, nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", application.ModuleName,
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("commit-reveal repository operation failed", fields...)
	return err
}

type sessionModel struct {
	SessionID      string    `gorm:"column:session_id;primaryKey"`
	Question       string    `gorm:"column:question"`
	Choice1Label   string    `gorm:"column:choice_1_label"`
	Choice2Label   string    `gorm:"column:choice_2_label"`
	CommitDeadline time.Time `gorm:"column:commit_deadline"`
	Supersedes     *string   `gorm:"column:supersedes"`
	VotesChoice1   int       `gorm:"column:votes_choice_1"`
	VotesChoice2   int       `gorm:"column:votes_choice_2"`
	CommitCount    int       `gorm:"column:commit_count"`
	RevealedCount  int       `gorm:"column:revealed_count"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (sessionModel) TableName() string {
	return "voting_sessions"
}

func sessionModelFromEntity(session entities.VotingSession) sessionModel {
	row := sessionModel{
		SessionID:      strings.TrimSpace(session.SessionID),
		Question:       session.Question,
		Choice1Label:   session.Choice1Label,
		Choice2Label:   session.Choice2Label,
		CommitDeadline: session.CommitDeadline.UTC(),
		VotesChoice1:   session.Tally.Choice1,
		VotesChoice2:   session.Tally.Choice2,
		CommitCount:    session.CommitCount,
		RevealedCount:  session.RevealedCount,
		CreatedAt:      session.CreatedAt.UTC(),
		UpdatedAt:      session.UpdatedAt.UTC(),
	}
	if supersedes := strings.TrimSpace(session.Supersedes); supersedes != "" {
		row.Supersedes = &supersedes
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	return row
}

func (m sessionModel) toEntity() entities.VotingSession {
	supersedes := ""
	if m.Supersedes != nil {
		supersedes = strings.TrimSpace(*m.Supersedes)
	}
	return entities.VotingSession{
		SessionID:      m.SessionID,
		Question:       m.Question,
		Choice1Label:   m.Choice1Label,
		Choice2Label:   m.Choice2Label,
		CommitDeadline: m.CommitDeadline.UTC(),
		Supersedes:     supersedes,
		Tally: entities.Tally{
			Choice1: m.VotesChoice1,
			Choice2: m.VotesChoice2,
		},
		CommitCount:   m.CommitCount,
		RevealedCount: m.RevealedCount,
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
}

type commitModel struct {
	SessionID   string     `gorm:"column:session_id;primaryKey"`
	CommitHash  string     `gorm:"column:commit_hash;primaryKey"`
	Position    int        `gorm:"column:position"`
	Status      string     `gorm:"column:status"`
	Choice      int        `gorm:"column:choice"`
	VoterID     string     `gorm:"column:voter_id"`
	RevealedBy  string     `gorm:"column:revealed_by"`
	CommittedAt time.Time  `gorm:"column:committed_at"`
	RevealedAt  *time.Time `gorm:"column:revealed_at"`
}

func (commitModel) TableName() string {
	return "voting_commits"
}

func commitModelFromEntity(record entities.CommitRecord) commitModel {
	return commitModel{
		SessionID:   strings.TrimSpace(record.SessionID),
		CommitHash:  record.Commitment.String(),
		Position:    record.Position,
		Status:      string(record.Status),
		Choice:      int(record.Choice),
		VoterID:     strings.TrimSpace(record.VoterID),
		RevealedBy:  strings.TrimSpace(record.RevealedBy),
		CommittedAt: record.CommittedAt.UTC(),
		RevealedAt:  normalizeOptionalTime(record.RevealedAt),
	}
}

func (m commitModel) toEntity() entities.CommitRecord {
	// commit_hash is only ever written from a parsed Commitment.
	commitment, _ := entities.ParseCommitment(m.CommitHash)
	return entities.CommitRecord{
		SessionID:   m.SessionID,
		Commitment:  commitment,
		Position:    m.Position,
		Status:      entities.CommitStatus(m.Status),
		Choice:      entities.Choice(m.Choice),
		VoterID:     m.VoterID,
		RevealedBy:  m.RevealedBy,
		CommittedAt: m.CommittedAt.UTC(),
		RevealedAt:  normalizeOptionalTime(m.RevealedAt),
	}
}

type idempotencyModel struct {
	Key         string    `gorm:"column:key;primaryKey"`
	RequestHash string    `gorm:"column:request_hash"`
	SessionID   string    `gorm:"column:session_id"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string {
	return "voting_session_idempotency"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	Sequence     int64      `gorm:"column:sequence;autoIncrement;uniqueIndex"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "voting_outbox"
}

type eventDedupModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	PayloadHash string    `gorm:"column:payload_hash"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
}

func (eventDedupModel) TableName() string {
	return "voting_event_dedup"
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

func isDomainError(err error) bool {
	for _, target := range []error{
		domainerrors.ErrSessionNotFound,
		domainerrors.ErrWrongPhase,
		domainerrors.ErrDuplicateCommit,
		domainerrors.ErrUnknownCommitment,
		domainerrors.ErrAlreadyRevealed,
		domainerrors.ErrInvalidChoice,
		domainerrors.ErrMalformedCommitment,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var _ ports.SessionRepository = (*Repository)(nil)
var _ ports.IdempotencyStore = (*Repository)(nil)
var _ ports.OutboxWriter = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
var _ ports.EventDedupStore = (*Repository)(nil)
