package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/tbourn/go-support-relay/internal/domain"
)

func seedUser(t *testing.T, h *harness, tgID int64, first string) *domain.User {
	t.Helper()
	u, err := h.store.CreateUser(context.Background(), &domain.User{TelegramID: tgID, FirstName: first})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func seedConversation(t *testing.T, h *harness, tgID int64) *domain.Conversation {
	t.Helper()
	conv, err := h.store.CreateConversation(context.Background(), &domain.Conversation{UserTelegramID: tgID})
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	return conv
}

func seedMessage(t *testing.T, h *harness, convID, tgID int64, text string) {
	t.Helper()
	_, err := h.store.CreateMessage(context.Background(), &domain.Message{
		ConversationID:   convID,
		SenderTelegramID: tgID,
		SenderType:       domain.SenderUser,
		Text:             text,
	})
	if err != nil {
		t.Fatalf("seed message: %v", err)
	}
}

func TestListConversations(t *testing.T) {
	h := newHarness(t, "")
	seedConversation(t, h, 1001)
	seedConversation(t, h, 1002)

	w := h.do(t, http.MethodGet, "/api/v1/conversations", "", nil)
	mustStatus(t, w, http.StatusOK)

	var resp ListConversationsResponse
	decodeJSON(t, w, &resp)
	if resp.Count != 2 || len(resp.Conversations) != 2 {
		t.Fatalf("resp = %+v", resp)
	}
	if w.Header().Get("ETag") == "" {
		t.Fatalf("missing ETag header")
	}
}

func TestListConversations_ETagNotModified(t *testing.T) {
	h := newHarness(t, "")
	seedConversation(t, h, 1001)

	first := h.do(t, http.MethodGet, "/api/v1/conversations", "", nil)
	mustStatus(t, first, http.StatusOK)
	etag := first.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}

	second := h.do(t, http.MethodGet, "/api/v1/conversations", "", map[string]string{
		"If-None-Match": etag,
	})
	mustStatus(t, second, http.StatusNotModified)
	if second.Body.Len() != 0 {
		t.Fatalf("304 should have an empty body, got %q", second.Body.String())
	}

	// New activity invalidates the tag.
	conv := seedConversation(t, h, 1002)
	seedMessage(t, h, conv.ID, 1002, "ping")
	third := h.do(t, http.MethodGet, "/api/v1/conversations", "", map[string]string{
		"If-None-Match": etag,
	})
	mustStatus(t, third, http.StatusOK)
}

func TestGetConversation(t *testing.T) {
	h := newHarness(t, "")
	conv := seedConversation(t, h, 1001)

	w := h.do(t, http.MethodGet, fmt.Sprintf("/api/v1/conversations/%d", conv.ID), "", nil)
	mustStatus(t, w, http.StatusOK)

	var got domain.Conversation
	decodeJSON(t, w, &got)
	if got.ID != conv.ID || got.Status != domain.ConversationOpen {
		t.Fatalf("got = %+v", got)
	}

	w = h.do(t, http.MethodGet, "/api/v1/conversations/4242", "", nil)
	mustStatus(t, w, http.StatusNotFound)
	if code := codeOf(t, w); code != ErrCodeNotFound {
		t.Fatalf("code = %q", code)
	}

	w = h.do(t, http.MethodGet, "/api/v1/conversations/banana", "", nil)
	mustStatus(t, w, http.StatusBadRequest)
}

func TestListConversationMessages(t *testing.T) {
	h := newHarness(t, "")
	seedUser(t, h, 1001, "Alice")
	conv := seedConversation(t, h, 1001)
	seedIssue(t, h, 1001, conv.ID, "Alice")
	for _, text := range []string{"one", "two", "three"} {
		seedMessage(t, h, conv.ID, 1001, text)
	}

	w := h.do(t, http.MethodGet, fmt.Sprintf("/api/v1/conversations/%d/messages?limit=2", conv.ID), "", nil)
	mustStatus(t, w, http.StatusOK)

	var resp ListMessagesResponse
	decodeJSON(t, w, &resp)
	if resp.Total != 3 {
		t.Fatalf("total = %d, want 3", resp.Total)
	}
	if len(resp.Messages) != 2 {
		t.Fatalf("page = %d messages, want 2", len(resp.Messages))
	}
	// Oldest first within the page, truncated from the recent end.
	if resp.Messages[0].Text != "two" || resp.Messages[1].Text != "three" {
		t.Fatalf("page = [%q, %q]", resp.Messages[0].Text, resp.Messages[1].Text)
	}
	if resp.Conversation == nil || resp.Conversation.ID != conv.ID {
		t.Fatalf("conversation join = %+v", resp.Conversation)
	}
	if resp.User == nil || resp.User.FirstName != "Alice" {
		t.Fatalf("user join = %+v", resp.User)
	}
	if resp.Issue == nil || resp.Issue.Title != "Alice" {
		t.Fatalf("issue join = %+v", resp.Issue)
	}

	w = h.do(t, http.MethodGet, "/api/v1/conversations/4242/messages", "", nil)
	mustStatus(t, w, http.StatusNotFound)
}

func TestListConversationMessages_JoinsMissing(t *testing.T) {
	h := newHarness(t, "")
	conv := seedConversation(t, h, 2002)
	seedMessage(t, h, conv.ID, 2002, "hi")

	w := h.do(t, http.MethodGet, fmt.Sprintf("/api/v1/conversations/%d/messages", conv.ID), "", nil)
	mustStatus(t, w, http.StatusOK)

	var resp ListMessagesResponse
	decodeJSON(t, w, &resp)
	if resp.User != nil || resp.Issue != nil {
		t.Fatalf("joins should be absent: user=%+v issue=%+v", resp.User, resp.Issue)
	}
	if len(resp.Messages) != 1 {
		t.Fatalf("messages = %d", len(resp.Messages))
	}
}

func TestUpdateConversationStatus(t *testing.T) {
	h := newHarness(t, "")
	conv := seedConversation(t, h, 1001)
	path := fmt.Sprintf("/api/v1/conversations/%d/status", conv.ID)

	w := h.do(t, http.MethodPut, path, `{"status":"closed"}`, nil)
	mustStatus(t, w, http.StatusOK)
	var got domain.Conversation
	decodeJSON(t, w, &got)
	if got.Status != domain.ConversationClosed {
		t.Fatalf("status = %q", got.Status)
	}

	w = h.do(t, http.MethodPut, path, `{"status":"paused"}`, nil)
	mustStatus(t, w, http.StatusBadRequest)

	w = h.do(t, http.MethodPut, path, `{}`, nil)
	mustStatus(t, w, http.StatusBadRequest)

	w = h.do(t, http.MethodPut, "/api/v1/conversations/4242/status", `{"status":"open"}`, nil)
	mustStatus(t, w, http.StatusNotFound)
}
