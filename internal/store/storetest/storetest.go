// Package storetest runs one conformance suite against any store.Store
// implementation. Both backends must pass it unchanged; that equivalence is
// what lets the rest of the system treat them as interchangeable.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-support-relay/internal/domain"
	"github.com/tbourn/go-support-relay/internal/store"
)

// Factory builds a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite against stores built by open.
func Run(t *testing.T, open Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, open(t)) })
	t.Run("Conversations", func(t *testing.T) { testConversations(t, open(t)) })
	t.Run("Messages", func(t *testing.T) { testMessages(t, open(t)) })
	t.Run("SupportIssues", func(t *testing.T) { testSupportIssues(t, open(t)) })
	t.Run("UpdateLedger", func(t *testing.T) { testUpdateLedger(t, open(t)) })
}

func mustCreateUser(t *testing.T, s store.Store, telegramID int64, first string) *domain.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), &domain.User{TelegramID: telegramID, FirstName: first})
	if err != nil {
		t.Fatalf("CreateUser(%d): %v", telegramID, err)
	}
	return u
}

func mustCreateConversation(t *testing.T, s store.Store, telegramID int64) *domain.Conversation {
	t.Helper()
	c, err := s.CreateConversation(context.Background(), &domain.Conversation{UserTelegramID: telegramID})
	if err != nil {
		t.Fatalf("CreateConversation(%d): %v", telegramID, err)
	}
	return c
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, &domain.User{FirstName: "NoID"}); err == nil {
		t.Fatalf("expected validation error for missing telegram id")
	}
	if _, err := s.GetUser(ctx, 42); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetUser on empty store: got %v, want ErrNotFound", err)
	}

	before := time.Now().UTC().Add(-time.Minute)
	alice := mustCreateUser(t, s, 1001, "Alice")
	if alice.ID <= 0 {
		t.Fatalf("expected assigned id, got %d", alice.ID)
	}
	if alice.JoinedAt.Before(before) {
		t.Fatalf("JoinedAt not stamped: %v", alice.JoinedAt)
	}

	if _, err := s.CreateUser(ctx, &domain.User{TelegramID: 1001, FirstName: "Impostor"}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("duplicate telegram id: got %v, want ErrDuplicate", err)
	}

	got, err := s.GetUserByTelegramID(ctx, 1001)
	if err != nil || got.ID != alice.ID || got.FirstName != "Alice" {
		t.Fatalf("GetUserByTelegramID = %+v, %v", got, err)
	}

	photo := "photo-file-1"
	updated, err := s.UpdateUser(ctx, alice.ID, store.UserUpdate{PhotoFileID: &photo})
	if err != nil || updated.PhotoFileID != photo {
		t.Fatalf("UpdateUser = %+v, %v", updated, err)
	}
	if updated.FirstName != "Alice" {
		t.Fatalf("partial update clobbered FirstName: %+v", updated)
	}
	if _, err := s.UpdateUser(ctx, 9999, store.UserUpdate{PhotoFileID: &photo}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("UpdateUser unknown id: got %v, want ErrNotFound", err)
	}

	mustCreateUser(t, s, 1002, "Bob")
	mustCreateUser(t, s, 1003, "Carol")

	users, err := s.ListUsers(ctx, 0)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("ListUsers len = %d, want 3", len(users))
	}
	// Newest first; ids break timestamp ties.
	if users[0].TelegramID != 1003 || users[2].TelegramID != 1001 {
		t.Fatalf("ListUsers order: %d, %d, %d", users[0].TelegramID, users[1].TelegramID, users[2].TelegramID)
	}

	users, err = s.ListUsers(ctx, 2)
	if err != nil || len(users) != 2 {
		t.Fatalf("ListUsers(limit=2) = %d items, %v", len(users), err)
	}
}

func testConversations(t *testing.T, s store.Store) {
	ctx := context.Background()

	if _, err := s.CreateConversation(ctx, &domain.Conversation{}); err == nil {
		t.Fatalf("expected validation error for missing user")
	}

	conv := mustCreateConversation(t, s, 1001)
	if conv.Status != domain.ConversationOpen {
		t.Fatalf("new conversation status = %q, want open", conv.Status)
	}
	if conv.ThreadID != nil {
		t.Fatalf("new conversation has a thread: %v", *conv.ThreadID)
	}

	byUser, err := s.GetConversationByUserID(ctx, 1001)
	if err != nil || byUser.ID != conv.ID {
		t.Fatalf("GetConversationByUserID = %+v, %v", byUser, err)
	}
	if _, err := s.GetConversationByThreadID(ctx, 77); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetConversationByThreadID unbound: got %v, want ErrNotFound", err)
	}

	tid := int64(77)
	bound, err := s.UpdateConversation(ctx, conv.ID, store.ConversationUpdate{ThreadID: &tid})
	if err != nil || bound.ThreadID == nil || *bound.ThreadID != 77 {
		t.Fatalf("thread binding = %+v, %v", bound, err)
	}
	if !bound.LastMessageAt.After(conv.LastMessageAt) && !bound.LastMessageAt.Equal(conv.LastMessageAt) {
		t.Fatalf("update moved LastMessageAt backwards: %v -> %v", conv.LastMessageAt, bound.LastMessageAt)
	}

	byThread, err := s.GetConversationByThreadID(ctx, 77)
	if err != nil || byThread.ID != conv.ID {
		t.Fatalf("GetConversationByThreadID = %+v, %v", byThread, err)
	}

	closed := domain.ConversationClosed
	after, err := s.UpdateConversation(ctx, conv.ID, store.ConversationUpdate{Status: &closed})
	if err != nil || after.Status != domain.ConversationClosed {
		t.Fatalf("close = %+v, %v", after, err)
	}
	if after.ThreadID == nil || *after.ThreadID != 77 {
		t.Fatalf("closing dropped the thread: %+v", after)
	}

	if _, err := s.UpdateConversation(ctx, 9999, store.ConversationUpdate{Status: &closed}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("UpdateConversation unknown id: got %v, want ErrNotFound", err)
	}

	// A second user, then verify ordering by recency: updating the first
	// conversation moves it back to the top.
	other := mustCreateConversation(t, s, 1002)
	if _, err := s.UpdateConversation(ctx, conv.ID, store.ConversationUpdate{}); err != nil {
		t.Fatalf("empty update: %v", err)
	}
	list, err := s.ListConversations(ctx, 0)
	if err != nil || len(list) != 2 {
		t.Fatalf("ListConversations = %d items, %v", len(list), err)
	}
	if list[0].ID != conv.ID || list[1].ID != other.ID {
		t.Fatalf("ListConversations order: %d, %d", list[0].ID, list[1].ID)
	}

	count, maxTS, err := s.ConversationStats(ctx)
	if err != nil || count != 2 || maxTS == nil {
		t.Fatalf("ConversationStats = %d, %v, %v", count, maxTS, err)
	}
}

func testMessages(t *testing.T, s store.Store) {
	ctx := context.Background()
	conv := mustCreateConversation(t, s, 1001)

	if _, err := s.CreateMessage(ctx, &domain.Message{ConversationID: conv.ID, SenderTelegramID: 1001, SenderType: "ghost", Text: "x"}); err == nil {
		t.Fatalf("expected validation error for bad sender type")
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := s.CreateMessage(ctx, &domain.Message{
			ConversationID:   conv.ID,
			SenderTelegramID: 1001,
			SenderType:       domain.SenderUser,
			SenderName:       "Alice",
			Text:             string(rune('a' + i)),
			SentAt:           base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("CreateMessage %d: %v", i, err)
		}
	}

	msgs, err := s.ListMessagesByConversation(ctx, conv.ID, 0)
	if err != nil || len(msgs) != 5 {
		t.Fatalf("ListMessagesByConversation = %d items, %v", len(msgs), err)
	}
	if msgs[0].Text != "a" || msgs[4].Text != "e" {
		t.Fatalf("transcript order: first=%q last=%q", msgs[0].Text, msgs[4].Text)
	}

	// Truncation keeps the most recent window, still oldest first.
	msgs, err = s.ListMessagesByConversation(ctx, conv.ID, 3)
	if err != nil || len(msgs) != 3 {
		t.Fatalf("limited list = %d items, %v", len(msgs), err)
	}
	if msgs[0].Text != "c" || msgs[2].Text != "e" {
		t.Fatalf("limited transcript order: first=%q last=%q", msgs[0].Text, msgs[2].Text)
	}

	total, err := s.CountMessages(ctx, conv.ID)
	if err != nil || total != 5 {
		t.Fatalf("CountMessages = %d, %v", total, err)
	}

	// Appending a message advances the parent's LastMessageAt.
	beforeTouch, _ := s.GetConversation(ctx, conv.ID)
	if _, err := s.CreateMessage(ctx, &domain.Message{
		ConversationID:   conv.ID,
		SenderTelegramID: 1001,
		SenderType:       domain.SenderUser,
		Text:             "later",
	}); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	afterTouch, _ := s.GetConversation(ctx, conv.ID)
	if afterTouch.LastMessageAt.Before(beforeTouch.LastMessageAt) {
		t.Fatalf("LastMessageAt went backwards: %v -> %v", beforeTouch.LastMessageAt, afterTouch.LastMessageAt)
	}

	if n, err := s.CountMessages(ctx, 9999); err != nil || n != 0 {
		t.Fatalf("CountMessages unknown conversation = %d, %v", n, err)
	}
}

func testSupportIssues(t *testing.T, s store.Store) {
	ctx := context.Background()
	conv := mustCreateConversation(t, s, 1001)

	if _, err := s.CreateSupportIssue(ctx, &domain.SupportIssue{UserTelegramID: 1001, ConversationID: conv.ID}); err == nil {
		t.Fatalf("expected validation error for missing title")
	}

	issue, err := s.CreateSupportIssue(ctx, &domain.SupportIssue{
		UserTelegramID: 1001,
		ConversationID: conv.ID,
		Title:          "Alice",
	})
	if err != nil {
		t.Fatalf("CreateSupportIssue: %v", err)
	}
	if issue.Status != domain.IssuePending || issue.OpenedAt.IsZero() {
		t.Fatalf("new issue = %+v", issue)
	}

	byConv, err := s.GetSupportIssueByConversationID(ctx, conv.ID)
	if err != nil || byConv.ID != issue.ID {
		t.Fatalf("GetSupportIssueByConversationID = %+v, %v", byConv, err)
	}

	status := domain.IssueClosed
	closedAt := time.Now().UTC()
	assignee := "dana"
	upd, err := s.UpdateSupportIssue(ctx, issue.ID, store.SupportIssueUpdate{
		Status:   &status,
		Assignee: &assignee,
		ClosedAt: &closedAt,
	})
	if err != nil || upd.Status != domain.IssueClosed || upd.Assignee != "dana" || upd.ClosedAt == nil {
		t.Fatalf("UpdateSupportIssue = %+v, %v", upd, err)
	}

	if _, err := s.UpdateSupportIssue(ctx, 9999, store.SupportIssueUpdate{Status: &status}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("UpdateSupportIssue unknown id: got %v, want ErrNotFound", err)
	}

	if _, err := s.CreateSupportIssue(ctx, &domain.SupportIssue{
		UserTelegramID: 1001,
		ConversationID: conv.ID,
		Title:          "Alice again",
	}); err != nil {
		t.Fatalf("second issue: %v", err)
	}
	issues, err := s.ListSupportIssuesByUserID(ctx, 1001, 0)
	if err != nil || len(issues) != 2 {
		t.Fatalf("ListSupportIssuesByUserID = %d items, %v", len(issues), err)
	}
	if issues[0].Title != "Alice again" {
		t.Fatalf("issue order: first=%q", issues[0].Title)
	}
	if got, _ := s.ListSupportIssuesByUserID(ctx, 4242, 0); len(got) != 0 {
		t.Fatalf("issues for unknown user: %d", len(got))
	}
}

func testUpdateLedger(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC()

	seen, err := s.SeenUpdate(ctx, 555, now)
	if err != nil || seen {
		t.Fatalf("SeenUpdate before mark = %v, %v", seen, err)
	}

	if err := s.MarkUpdate(ctx, 555, time.Hour); err != nil {
		t.Fatalf("MarkUpdate: %v", err)
	}
	seen, err = s.SeenUpdate(ctx, 555, time.Now().UTC())
	if err != nil || !seen {
		t.Fatalf("SeenUpdate after mark = %v, %v", seen, err)
	}

	// The entry lapses once now passes the TTL horizon.
	seen, err = s.SeenUpdate(ctx, 555, time.Now().UTC().Add(2*time.Hour))
	if err != nil || seen {
		t.Fatalf("SeenUpdate past expiry = %v, %v", seen, err)
	}

	// Re-marking refreshes the entry rather than failing on the key.
	if err := s.MarkUpdate(ctx, 555, time.Hour); err != nil {
		t.Fatalf("re-mark: %v", err)
	}
	seen, err = s.SeenUpdate(ctx, 555, time.Now().UTC())
	if err != nil || !seen {
		t.Fatalf("SeenUpdate after re-mark = %v, %v", seen, err)
	}
}
