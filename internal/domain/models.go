// Package domain defines the persistence models for users, conversations,
// messages, and support issues. These types are mapped with GORM for the
// SQLite backend and stored as plain values by the in-memory backend; they
// form the core data layer of the support relay.
package domain

import (
	"errors"
	"strings"
	"time"
)

// Conversation status values.
const (
	ConversationOpen   = "open"
	ConversationClosed = "closed"
)

// Message sender roles.
const (
	SenderUser   = "user"   // end user on the external platform
	SenderAdmin  = "admin"  // support agent replying from the support channel
	SenderSystem = "system" // generated by the relay itself
)

// Support issue status values.
const (
	IssuePending    = "pending"
	IssueInProgress = "in_progress"
	IssueClosed     = "closed"
)

// Validation errors returned by the entity Validate methods. A failed
// validation aborts processing of the single inbound event that produced
// the entity; nothing is persisted for it.
var (
	ErrMissingTelegramID   = errors.New("telegram id is required")
	ErrMissingFirstName    = errors.New("first name is required")
	ErrMissingConversation = errors.New("conversation reference is required")
	ErrInvalidSenderType   = errors.New("sender type must be user, admin, or system")
	ErrMissingSender       = errors.New("sender telegram id is required")
	ErrMissingIssueTitle   = errors.New("issue title is required")
	ErrInvalidIssueStatus  = errors.New("issue status must be pending, in_progress, or closed")
	ErrInvalidConversation = errors.New("conversation status must be open or closed")
	ErrEmptyMessage        = errors.New("message must carry text or media")
	ErrInvalidMediaKind    = errors.New("unknown media kind")
	ErrMediaWithoutFileID  = errors.New("media kind set without a file reference")
	ErrFileIDWithoutKind   = errors.New("file reference set without a media kind")
)

// User is one record per distinct Telegram identity. The TelegramID is the
// stable external id: unique, immutable, and the key every other entity uses
// to refer back to the person. Users are never deleted in normal operation;
// after creation the only mutation is attaching profile enrichments (photo
// reference, bio) discovered after first contact.
//
// Fields:
//   - ID: surrogate key assigned by the store (monotonic per kind).
//   - TelegramID: external platform identity (unique).
//   - FirstName / LastName / Username: display name parts as sent by the platform.
//   - LanguageCode: locale tag reported by the client.
//   - IsPremium: premium flag as reported by the platform.
//   - Bio / PhotoFileID: optional profile enrichments.
//   - JoinedAt: set once by the store at creation time.
type User struct {
	ID           int64     `json:"id"            gorm:"primaryKey;autoIncrement"`
	TelegramID   int64     `json:"telegram_id"   gorm:"uniqueIndex:ux_users_telegram_id;not null"`
	FirstName    string    `json:"first_name"    gorm:"type:varchar(128);not null"`
	LastName     string    `json:"last_name,omitempty"     gorm:"type:varchar(128)"`
	Username     string    `json:"username,omitempty"      gorm:"type:varchar(64)"`
	LanguageCode string    `json:"language_code,omitempty" gorm:"type:varchar(16)"`
	IsPremium    bool      `json:"is_premium"`
	Bio          string    `json:"bio,omitempty"           gorm:"type:text"`
	PhotoFileID  string    `json:"photo_file_id,omitempty" gorm:"type:varchar(255)"`
	JoinedAt     time.Time `json:"joined_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Validate reports whether the user carries the fields required at creation.
func (u *User) Validate() error {
	if u.TelegramID == 0 {
		return ErrMissingTelegramID
	}
	if strings.TrimSpace(u.FirstName) == "" {
		return ErrMissingFirstName
	}
	return nil
}

// DisplayName joins the name parts, falling back to the username when the
// platform sent no usable first name.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		name = u.Username
	}
	return name
}

// Conversation is the support dialogue for one user. Lookup by
// UserTelegramID returns the first match; a user id is expected to map to a
// single logical conversation at a time, and duplicate creation under a
// webhook race is a tolerated, uncorrected edge case.
//
// ThreadID is the opaque handle of the dedicated forum topic on the support
// side. It stays nil until topic creation first succeeds, after which it is
// the stable key used to map support-side replies back to this conversation.
type Conversation struct {
	ID             int64     `json:"id"                  gorm:"primaryKey;autoIncrement"`
	UserTelegramID int64     `json:"user_telegram_id"    gorm:"index:idx_conversations_user;not null"`
	ThreadID       *int64    `json:"thread_id,omitempty" gorm:"index:idx_conversations_thread"`
	Status         string    `json:"status"              gorm:"type:varchar(16);not null;default:'open'"`
	LastMessageAt  time.Time `json:"last_message_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Validate reports whether the conversation carries the fields required at creation.
func (c *Conversation) Validate() error {
	if c.UserTelegramID == 0 {
		return ErrMissingTelegramID
	}
	switch c.Status {
	case "", ConversationOpen, ConversationClosed:
	default:
		return ErrInvalidConversation
	}
	return nil
}

// Message is an immutable log entry belonging to exactly one conversation.
// Messages are created, never mutated or deleted; creating one refreshes the
// parent conversation's LastMessageAt as a store-level side effect.
//
// TelegramMessageID is the upstream platform id for the inbound message and
// is zero when the entry was synthesized by the relay itself.
type Message struct {
	ID                int64     `json:"id"                  gorm:"primaryKey;autoIncrement"`
	ConversationID    int64     `json:"conversation_id"     gorm:"index:idx_messages_conversation,priority:1;not null"`
	TelegramMessageID int64     `json:"telegram_message_id,omitempty"`
	SenderTelegramID  int64     `json:"sender_telegram_id"  gorm:"not null"`
	SenderType        string    `json:"sender_type"         gorm:"type:varchar(16);not null;check:sender_type IN ('user','admin','system')"`
	SenderName        string    `json:"sender_name"         gorm:"type:varchar(255)"`
	Text              string    `json:"text,omitempty"      gorm:"type:text"`
	MediaKind         MediaKind `json:"media_kind,omitempty"    gorm:"type:varchar(16)"`
	MediaFileID       string    `json:"media_file_id,omitempty" gorm:"type:varchar(255)"`
	SentAt            time.Time `json:"sent_at"             gorm:"index:idx_messages_conversation,priority:2"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Validate reports whether the message carries the fields required at creation.
func (m *Message) Validate() error {
	if m.ConversationID == 0 {
		return ErrMissingConversation
	}
	if m.SenderTelegramID == 0 {
		return ErrMissingSender
	}
	switch m.SenderType {
	case SenderUser, SenderAdmin, SenderSystem:
	default:
		return ErrInvalidSenderType
	}
	if err := m.Media().Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(m.Text) == "" && m.MediaKind == MediaNone {
		return ErrEmptyMessage
	}
	return nil
}

// Media assembles the tagged media variant from the stored columns.
func (m *Message) Media() Media {
	return Media{Kind: m.MediaKind, FileID: m.MediaFileID}
}

// SupportIssue tracks the initial support episode of one conversation. It is
// created exactly once, when the conversation's forum topic is first
// established, and is later mutated only to change status, assignee, or the
// closed timestamp.
type SupportIssue struct {
	ID             int64      `json:"id"               gorm:"primaryKey;autoIncrement"`
	UserTelegramID int64      `json:"user_telegram_id" gorm:"index:idx_issues_user;not null"`
	ConversationID int64      `json:"conversation_id"  gorm:"index:idx_issues_conversation;not null"`
	Title          string     `json:"title"            gorm:"type:varchar(255);not null"`
	Status         string     `json:"status"           gorm:"type:varchar(16);not null;default:'pending'"`
	OpenedAt       time.Time  `json:"opened_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	Assignee       string     `json:"assignee,omitempty" gorm:"type:varchar(128)"`
}

// TableName returns the database table name for SupportIssue.
func (SupportIssue) TableName() string { return "support_issues" }

// Validate reports whether the issue carries the fields required at creation.
func (si *SupportIssue) Validate() error {
	if si.ConversationID == 0 {
		return ErrMissingConversation
	}
	if si.UserTelegramID == 0 {
		return ErrMissingTelegramID
	}
	if strings.TrimSpace(si.Title) == "" {
		return ErrMissingIssueTitle
	}
	switch si.Status {
	case "", IssuePending, IssueInProgress, IssueClosed:
	default:
		return ErrInvalidIssueStatus
	}
	return nil
}

// ProcessedUpdate records a webhook update id that has already been routed,
// so platform redeliveries of the same update are dropped instead of
// producing duplicate records. Entries expire after a TTL; expired rows are
// treated as unseen.
type ProcessedUpdate struct {
	UpdateID    int64     `json:"update_id"    gorm:"primaryKey"`
	ProcessedAt time.Time `json:"processed_at" gorm:"autoCreateTime"`
	ExpiresAt   time.Time `json:"expires_at"   gorm:"index"`
}

// TableName returns the database table name for ProcessedUpdate.
func (ProcessedUpdate) TableName() string { return "processed_updates" }
