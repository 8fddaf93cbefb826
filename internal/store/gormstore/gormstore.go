// Package gormstore implements the store.Store contract on SQLite through
// GORM. All methods are context-aware; errors from the contract
// (store.ErrNotFound, store.ErrDuplicate) are mapped from the raw GORM
// errors here so callers never see driver details.
package gormstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-support-relay/internal/domain"
	"github.com/tbourn/go-support-relay/internal/store"
)

// Store is the SQLite-backed record store.
type Store struct {
	db *gorm.DB
}

// New wraps an opened GORM handle. The schema must already be migrated
// (see AutoMigrate).
func New(db *gorm.DB) *Store { return &Store{db: db} }

// compile-time contract check
var _ store.Store = (*Store)(nil)

// isDuplicate recognizes unique-constraint violations. The pure-Go SQLite
// driver often reports them as plain-text errors rather than
// gorm.ErrDuplicatedKey.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

// ---- Users ----

func (s *Store) CreateUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	rec := *u
	rec.ID = 0
	rec.JoinedAt = time.Now().UTC()
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isDuplicate(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &rec, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *Store) GetUserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	var u domain.User
	err := s.db.WithContext(ctx).
		Where("telegram_id = ?", telegramID).
		Order("id ASC").
		First(&u).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *Store) UpdateUser(ctx context.Context, id int64, upd store.UserUpdate) (*domain.User, error) {
	fields := map[string]any{}
	if upd.PhotoFileID != nil {
		fields["photo_file_id"] = *upd.PhotoFileID
	}
	if upd.Bio != nil {
		fields["bio"] = *upd.Bio
	}
	if len(fields) > 0 {
		res := s.db.WithContext(ctx).
			Model(&domain.User{}).
			Where("id = ?", id).
			Updates(fields)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, store.ErrNotFound
		}
	}
	return s.GetUser(ctx, id)
}

func (s *Store) ListUsers(ctx context.Context, limit int) ([]domain.User, error) {
	var out []domain.User
	err := s.db.WithContext(ctx).
		Order("joined_at DESC, id DESC").
		Limit(store.ClampLimit(limit)).
		Find(&out).Error
	return out, err
}

// ---- Conversations ----

func (s *Store) CreateConversation(ctx context.Context, c *domain.Conversation) (*domain.Conversation, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	rec := *c
	rec.ID = 0
	if rec.Status == "" {
		rec.Status = domain.ConversationOpen
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.LastMessageAt = now
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) GetConversation(ctx context.Context, id int64) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Store) GetConversationByUserID(ctx context.Context, telegramID int64) (*domain.Conversation, error) {
	var c domain.Conversation
	err := s.db.WithContext(ctx).
		Where("user_telegram_id = ?", telegramID).
		Order("id ASC").
		First(&c).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Store) GetConversationByThreadID(ctx context.Context, threadID int64) (*domain.Conversation, error) {
	var c domain.Conversation
	err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("id ASC").
		First(&c).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// UpdateConversation merges the set fields. LastMessageAt is refreshed by
// the merge itself, so even an empty update advances it.
func (s *Store) UpdateConversation(ctx context.Context, id int64, upd store.ConversationUpdate) (*domain.Conversation, error) {
	fields := map[string]any{
		"last_message_at": time.Now().UTC(),
	}
	if upd.Status != nil {
		fields["status"] = *upd.Status
	}
	if upd.ThreadID != nil {
		fields["thread_id"] = *upd.ThreadID
	}
	res := s.db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetConversation(ctx, id)
}

func (s *Store) ListConversations(ctx context.Context, limit int) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := s.db.WithContext(ctx).
		Order("last_message_at DESC, id DESC").
		Limit(store.ClampLimit(limit)).
		Find(&out).Error
	return out, err
}

// ConversationStats returns the row count and the greatest LastMessageAt.
func (s *Store) ConversationStats(ctx context.Context) (int64, *time.Time, error) {
	q := s.db.WithContext(ctx).Model(&domain.Conversation{})

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Avoid MAX() -> TEXT in SQLite.
	var row struct {
		LastMessageAt time.Time
	}
	err := q.Select("last_message_at").Order("last_message_at DESC").Limit(1).Scan(&row).Error
	if err != nil {
		return 0, nil, err
	}
	return count, &row.LastMessageAt, nil
}

// ---- Messages ----

// CreateMessage appends the message and touches the parent conversation's
// LastMessageAt. The two writes are independent; there is no multi-step
// rollback.
func (s *Store) CreateMessage(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	rec := *m
	rec.ID = 0
	if rec.SentAt.IsZero() {
		rec.SentAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", rec.ConversationID).
		Update("last_message_at", time.Now().UTC()).Error
	if err != nil {
		log.Warn().Err(err).
			Int64("conversation_id", rec.ConversationID).
			Msg("conversation activity touch failed")
	}

	return &rec, nil
}

// ListMessagesByConversation fetches the most recent window, then reverses
// it so the result reads oldest first.
func (s *Store) ListMessagesByConversation(ctx context.Context, conversationID int64, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("sent_at DESC, id DESC").
		Limit(store.ClampLimit(limit)).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func (s *Store) CountMessages(ctx context.Context, conversationID int64) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID).
		Scan(&total).Error
	return total, err
}

// ---- Support issues ----

func (s *Store) CreateSupportIssue(ctx context.Context, si *domain.SupportIssue) (*domain.SupportIssue, error) {
	if err := si.Validate(); err != nil {
		return nil, err
	}
	rec := *si
	rec.ID = 0
	if rec.Status == "" {
		rec.Status = domain.IssuePending
	}
	rec.OpenedAt = time.Now().UTC()
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) GetSupportIssue(ctx context.Context, id int64) (*domain.SupportIssue, error) {
	var si domain.SupportIssue
	if err := s.db.WithContext(ctx).First(&si, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &si, nil
}

func (s *Store) GetSupportIssueByConversationID(ctx context.Context, conversationID int64) (*domain.SupportIssue, error) {
	var si domain.SupportIssue
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id ASC").
		First(&si).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &si, nil
}

func (s *Store) UpdateSupportIssue(ctx context.Context, id int64, upd store.SupportIssueUpdate) (*domain.SupportIssue, error) {
	fields := map[string]any{}
	if upd.Status != nil {
		fields["status"] = *upd.Status
	}
	if upd.Assignee != nil {
		fields["assignee"] = *upd.Assignee
	}
	if upd.ClosedAt != nil {
		fields["closed_at"] = *upd.ClosedAt
	}
	if len(fields) > 0 {
		res := s.db.WithContext(ctx).
			Model(&domain.SupportIssue{}).
			Where("id = ?", id).
			Updates(fields)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, store.ErrNotFound
		}
	}
	return s.GetSupportIssue(ctx, id)
}

func (s *Store) ListSupportIssuesByUserID(ctx context.Context, telegramID int64, limit int) ([]domain.SupportIssue, error) {
	var out []domain.SupportIssue
	err := s.db.WithContext(ctx).
		Where("user_telegram_id = ?", telegramID).
		Order("opened_at DESC, id DESC").
		Limit(store.ClampLimit(limit)).
		Find(&out).Error
	return out, err
}

// ---- Webhook redelivery ledger ----

func (s *Store) SeenUpdate(ctx context.Context, updateID int64, now time.Time) (bool, error) {
	var rec domain.ProcessedUpdate
	err := s.db.WithContext(ctx).
		Where("update_id = ? AND expires_at > ?", updateID, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) MarkUpdate(ctx context.Context, updateID int64, ttl time.Duration) error {
	now := time.Now().UTC()
	rec := domain.ProcessedUpdate{
		UpdateID:    updateID,
		ProcessedAt: now,
		ExpiresAt:   now.Add(ttl),
	}
	// Re-marking an expired id refreshes it in place.
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
}
