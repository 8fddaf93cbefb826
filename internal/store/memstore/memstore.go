// Package memstore implements the store.Store contract with in-process
// maps. It is the volatile backend: fast to spin up, no external state,
// used in tests and in deployments that do not need durability.
//
// Records are stored by value and copied on the way in and out, so callers
// can never mutate stored state through a returned pointer. A single
// RWMutex guards all collections; secondary lookups are linear scans in
// ascending id order, matching the contract's first-match semantics.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tbourn/go-support-relay/internal/domain"
	"github.com/tbourn/go-support-relay/internal/store"
)

// Store is the in-memory backend. The zero value is not usable; construct
// with New.
type Store struct {
	mu sync.RWMutex

	users         map[int64]domain.User
	conversations map[int64]domain.Conversation
	messages      map[int64]domain.Message
	issues        map[int64]domain.SupportIssue
	updates       map[int64]domain.ProcessedUpdate

	// Per-kind monotonic id counters.
	nextUser         int64
	nextConversation int64
	nextMessage      int64
	nextIssue        int64
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		users:         make(map[int64]domain.User),
		conversations: make(map[int64]domain.Conversation),
		messages:      make(map[int64]domain.Message),
		issues:        make(map[int64]domain.SupportIssue),
		updates:       make(map[int64]domain.ProcessedUpdate),
	}
}

// compile-time contract check
var _ store.Store = (*Store)(nil)

// ---- Users ----

// CreateUser validates, assigns an id and JoinedAt, and stores the user.
// A duplicate Telegram id yields store.ErrDuplicate.
func (s *Store) CreateUser(_ context.Context, u *domain.User) (*domain.User, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.TelegramID == u.TelegramID {
			return nil, store.ErrDuplicate
		}
	}

	s.nextUser++
	rec := *u
	rec.ID = s.nextUser
	rec.JoinedAt = time.Now().UTC()
	s.users[rec.ID] = rec

	out := rec
	return &out, nil
}

// GetUser returns the user or store.ErrNotFound.
func (s *Store) GetUser(_ context.Context, id int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := rec
	return &out, nil
}

// GetUserByTelegramID scans for the user with the given external id.
func (s *Store) GetUserByTelegramID(_ context.Context, telegramID int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range sortedKeys(s.users) {
		if s.users[id].TelegramID == telegramID {
			out := s.users[id]
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

// UpdateUser merges the set fields into the stored user.
func (s *Store) UpdateUser(_ context.Context, id int64, upd store.UserUpdate) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if upd.PhotoFileID != nil {
		rec.PhotoFileID = *upd.PhotoFileID
	}
	if upd.Bio != nil {
		rec.Bio = *upd.Bio
	}
	s.users[id] = rec

	out := rec
	return &out, nil
}

// ListUsers returns users newest-first by JoinedAt.
func (s *Store) ListUsers(_ context.Context, limit int) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.After(out[j].JoinedAt)
		}
		return out[i].ID > out[j].ID
	})
	return truncate(out, store.ClampLimit(limit)), nil
}

// ---- Conversations ----

// CreateConversation validates, assigns an id and timestamps, and stores
// the conversation with a default open status.
func (s *Store) CreateConversation(_ context.Context, c *domain.Conversation) (*domain.Conversation, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextConversation++
	rec := *c
	rec.ID = s.nextConversation
	if rec.Status == "" {
		rec.Status = domain.ConversationOpen
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.LastMessageAt = now
	s.conversations[rec.ID] = rec

	out := rec
	return &out, nil
}

// GetConversation returns the conversation or store.ErrNotFound.
func (s *Store) GetConversation(_ context.Context, id int64) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.conversations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := rec
	return &out, nil
}

// GetConversationByUserID returns the first conversation owned by the given
// Telegram id, in ascending id order.
func (s *Store) GetConversationByUserID(_ context.Context, telegramID int64) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range sortedKeys(s.conversations) {
		if s.conversations[id].UserTelegramID == telegramID {
			out := s.conversations[id]
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

// GetConversationByThreadID returns the conversation bound to the given
// support-side thread reference.
func (s *Store) GetConversationByThreadID(_ context.Context, threadID int64) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range sortedKeys(s.conversations) {
		c := s.conversations[id]
		if c.ThreadID != nil && *c.ThreadID == threadID {
			out := c
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

// UpdateConversation merges the set fields and always refreshes
// LastMessageAt, even when the update carries no fields.
func (s *Store) UpdateConversation(_ context.Context, id int64, upd store.ConversationUpdate) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.conversations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if upd.Status != nil {
		rec.Status = *upd.Status
	}
	if upd.ThreadID != nil {
		tid := *upd.ThreadID
		rec.ThreadID = &tid
	}
	rec.LastMessageAt = time.Now().UTC()
	s.conversations[id] = rec

	out := rec
	return &out, nil
}

// ListConversations returns conversations newest-first by LastMessageAt.
func (s *Store) ListConversations(_ context.Context, limit int) ([]domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		}
		return out[i].ID > out[j].ID
	})
	return truncate(out, store.ClampLimit(limit)), nil
}

// ConversationStats returns the count and greatest LastMessageAt.
func (s *Store) ConversationStats(_ context.Context) (int64, *time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.conversations) == 0 {
		return 0, nil, nil
	}
	var max time.Time
	for _, c := range s.conversations {
		if c.LastMessageAt.After(max) {
			max = c.LastMessageAt
		}
	}
	return int64(len(s.conversations)), &max, nil
}

// ---- Messages ----

// CreateMessage validates and appends the message, then touches the parent
// conversation's LastMessageAt as the contract requires.
func (s *Store) CreateMessage(_ context.Context, m *domain.Message) (*domain.Message, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextMessage++
	rec := *m
	rec.ID = s.nextMessage
	if rec.SentAt.IsZero() {
		rec.SentAt = time.Now().UTC()
	}
	s.messages[rec.ID] = rec

	if conv, ok := s.conversations[rec.ConversationID]; ok {
		conv.LastMessageAt = time.Now().UTC()
		s.conversations[conv.ID] = conv
	}

	out := rec
	return &out, nil
}

// ListMessagesByConversation returns send-order ascending, truncated to the
// limit from the most recent end.
func (s *Store) ListMessagesByConversation(_ context.Context, conversationID int64, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Message, 0)
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].SentAt.Before(out[j].SentAt)
		}
		return out[i].ID < out[j].ID
	})
	limit = store.ClampLimit(limit)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// CountMessages returns the number of messages in a conversation.
func (s *Store) CountMessages(_ context.Context, conversationID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			n++
		}
	}
	return n, nil
}

// ---- Support issues ----

// CreateSupportIssue validates, assigns an id and OpenedAt, and stores the
// issue with a default pending status.
func (s *Store) CreateSupportIssue(_ context.Context, si *domain.SupportIssue) (*domain.SupportIssue, error) {
	if err := si.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextIssue++
	rec := *si
	rec.ID = s.nextIssue
	if rec.Status == "" {
		rec.Status = domain.IssuePending
	}
	rec.OpenedAt = time.Now().UTC()
	s.issues[rec.ID] = rec

	out := rec
	return &out, nil
}

// GetSupportIssue returns the issue or store.ErrNotFound.
func (s *Store) GetSupportIssue(_ context.Context, id int64) (*domain.SupportIssue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.issues[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := rec
	return &out, nil
}

// GetSupportIssueByConversationID returns the first issue bound to the
// conversation, in ascending id order.
func (s *Store) GetSupportIssueByConversationID(_ context.Context, conversationID int64) (*domain.SupportIssue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range sortedKeys(s.issues) {
		if s.issues[id].ConversationID == conversationID {
			out := s.issues[id]
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

// UpdateSupportIssue merges the set fields into the stored issue.
func (s *Store) UpdateSupportIssue(_ context.Context, id int64, upd store.SupportIssueUpdate) (*domain.SupportIssue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.issues[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if upd.Status != nil {
		rec.Status = *upd.Status
	}
	if upd.Assignee != nil {
		rec.Assignee = *upd.Assignee
	}
	if upd.ClosedAt != nil {
		t := *upd.ClosedAt
		rec.ClosedAt = &t
	}
	s.issues[id] = rec

	out := rec
	return &out, nil
}

// ListSupportIssuesByUserID returns the user's issues newest-first by OpenedAt.
func (s *Store) ListSupportIssuesByUserID(_ context.Context, telegramID int64, limit int) ([]domain.SupportIssue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.SupportIssue, 0)
	for _, si := range s.issues {
		if si.UserTelegramID == telegramID {
			out = append(out, si)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.After(out[j].OpenedAt)
		}
		return out[i].ID > out[j].ID
	})
	return truncate(out, store.ClampLimit(limit)), nil
}

// ---- Webhook redelivery ledger ----

// SeenUpdate reports whether the update id has a non-expired entry.
func (s *Store) SeenUpdate(_ context.Context, updateID int64, now time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.updates[updateID]
	if !ok {
		return false, nil
	}
	return rec.ExpiresAt.After(now), nil
}

// MarkUpdate records the update id with the given TTL.
func (s *Store) MarkUpdate(_ context.Context, updateID int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	s.updates[updateID] = domain.ProcessedUpdate{
		UpdateID:    updateID,
		ProcessedAt: now,
		ExpiresAt:   now.Add(ttl),
	}
	return nil
}

// ---- helpers ----

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func truncate[T any](in []T, limit int) []T {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}
