// Package store defines the record-store contract shared by the two
// interchangeable backends: the in-process map store (memstore) and the
// SQLite store (gormstore). Both must behave identically under this
// contract; substitutability between them is the reason the interface
// exists at all.
//
// Contract conventions, uniform across the four entity kinds:
//
//   - Create assigns a surrogate identifier (monotonically increasing per
//     kind) and server-side creation timestamps, validates required fields,
//     and returns the stored record. It fails only on validation or on a
//     unique-key violation (a duplicate Telegram id for users).
//   - Get returns ErrNotFound when the id is unknown; not-found is an
//     expected outcome, not an exceptional one.
//   - GetBy<secondary key> performs a linear or indexed lookup and returns
//     at most one record; when several could match, the first encountered
//     in ascending id order wins. This is a tolerated ambiguity of the
//     design, not a uniqueness guarantee.
//   - Update merges the set (non-nil) fields into the existing record and
//     returns the updated record, or ErrNotFound. Conversation updates
//     additionally refresh LastMessageAt on every call, even with an empty
//     field set.
//   - List returns records newest-first by the entity's defining timestamp
//     (JoinedAt, LastMessageAt, OpenedAt), truncated to the limit
//     (DefaultListLimit when <= 0).
//
// There are no transactions and no cross-record atomicity: each write is
// independently committed, and racing updates to the same record resolve as
// last write wins.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/tbourn/go-support-relay/internal/domain"
)

// DefaultListLimit bounds list results when the caller passes no limit.
const DefaultListLimit = 50

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned on a unique-key violation, i.e. creating a
	// second user with an already-registered Telegram id.
	ErrDuplicate = errors.New("duplicate record")
)

// UserUpdate carries the mutable user fields; nil fields are left unchanged.
type UserUpdate struct {
	PhotoFileID *string
	Bio         *string
}

// ConversationUpdate carries the mutable conversation fields; nil fields are
// left unchanged. Applying any update, even an empty one, refreshes the
// conversation's LastMessageAt.
type ConversationUpdate struct {
	Status   *string
	ThreadID *int64
}

// SupportIssueUpdate carries the mutable issue fields; nil fields are left
// unchanged.
type SupportIssueUpdate struct {
	Status   *string
	Assignee *string
	ClosedAt *time.Time
}

// Store is the keyed record store for the four entity kinds, plus the
// processed-update ledger used to drop webhook redeliveries.
//
// Implementations must tolerate concurrent reads and writes to distinct
// records without corruption; they are not required to serialize racing
// writes to the same record beyond last-write-wins.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u *domain.User) (*domain.User, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
	UpdateUser(ctx context.Context, id int64, upd UserUpdate) (*domain.User, error)
	ListUsers(ctx context.Context, limit int) ([]domain.User, error)

	// Conversations
	CreateConversation(ctx context.Context, c *domain.Conversation) (*domain.Conversation, error)
	GetConversation(ctx context.Context, id int64) (*domain.Conversation, error)
	GetConversationByUserID(ctx context.Context, telegramID int64) (*domain.Conversation, error)
	GetConversationByThreadID(ctx context.Context, threadID int64) (*domain.Conversation, error)
	UpdateConversation(ctx context.Context, id int64, upd ConversationUpdate) (*domain.Conversation, error)
	ListConversations(ctx context.Context, limit int) ([]domain.Conversation, error)

	// ConversationStats returns the total number of conversations and the
	// greatest LastMessageAt among them (nil when there are none). Used for
	// conditional responses on the query surface.
	ConversationStats(ctx context.Context) (count int64, maxLastMessageAt *time.Time, err error)

	// Messages
	CreateMessage(ctx context.Context, m *domain.Message) (*domain.Message, error)
	// ListMessagesByConversation returns messages in send order, oldest
	// first, truncated to the limit from the most recent end.
	ListMessagesByConversation(ctx context.Context, conversationID int64, limit int) ([]domain.Message, error)
	CountMessages(ctx context.Context, conversationID int64) (int64, error)

	// Support issues
	CreateSupportIssue(ctx context.Context, si *domain.SupportIssue) (*domain.SupportIssue, error)
	GetSupportIssue(ctx context.Context, id int64) (*domain.SupportIssue, error)
	GetSupportIssueByConversationID(ctx context.Context, conversationID int64) (*domain.SupportIssue, error)
	UpdateSupportIssue(ctx context.Context, id int64, upd SupportIssueUpdate) (*domain.SupportIssue, error)
	ListSupportIssuesByUserID(ctx context.Context, telegramID int64, limit int) ([]domain.SupportIssue, error)

	// Webhook redelivery ledger. SeenUpdate reports whether the update id
	// has a non-expired entry; MarkUpdate records it with the given TTL.
	SeenUpdate(ctx context.Context, updateID int64, now time.Time) (bool, error)
	MarkUpdate(ctx context.Context, updateID int64, ttl time.Duration) error
}

// ClampLimit applies the contract default and upper bound for list limits.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
