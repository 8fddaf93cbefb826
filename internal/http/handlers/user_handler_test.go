package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/tbourn/go-support-relay/internal/domain"
)

func seedIssue(t *testing.T, h *harness, tgID, convID int64, title string) *domain.SupportIssue {
	t.Helper()
	issue, err := h.store.CreateSupportIssue(context.Background(), &domain.SupportIssue{
		UserTelegramID: tgID,
		ConversationID: convID,
		Title:          title,
	})
	if err != nil {
		t.Fatalf("seed issue: %v", err)
	}
	return issue
}

func TestListUsers(t *testing.T) {
	h := newHarness(t, "")
	seedUser(t, h, 1001, "Alice")
	seedUser(t, h, 1002, "Bob")

	w := h.do(t, http.MethodGet, "/api/v1/users", "", nil)
	mustStatus(t, w, http.StatusOK)

	var resp ListUsersResponse
	decodeJSON(t, w, &resp)
	if resp.Count != 2 || len(resp.Users) != 2 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestGetUser(t *testing.T) {
	h := newHarness(t, "")
	u := seedUser(t, h, 1001, "Alice")

	w := h.do(t, http.MethodGet, fmt.Sprintf("/api/v1/users/%d", u.ID), "", nil)
	mustStatus(t, w, http.StatusOK)

	var got domain.User
	decodeJSON(t, w, &got)
	if got.TelegramID != 1001 || got.FirstName != "Alice" {
		t.Fatalf("got = %+v", got)
	}

	w = h.do(t, http.MethodGet, "/api/v1/users/4242", "", nil)
	mustStatus(t, w, http.StatusNotFound)

	w = h.do(t, http.MethodGet, "/api/v1/users/-3", "", nil)
	mustStatus(t, w, http.StatusBadRequest)
}

func TestListUserIssues(t *testing.T) {
	h := newHarness(t, "")
	u := seedUser(t, h, 1001, "Alice")
	conv := seedConversation(t, h, 1001)
	seedIssue(t, h, 1001, conv.ID, "Alice")

	// Issues are keyed by platform identity; the endpoint resolves the
	// internal user id first.
	w := h.do(t, http.MethodGet, fmt.Sprintf("/api/v1/users/%d/issues", u.ID), "", nil)
	mustStatus(t, w, http.StatusOK)

	var resp ListUserIssuesResponse
	decodeJSON(t, w, &resp)
	if resp.Count != 1 || resp.Issues[0].Title != "Alice" {
		t.Fatalf("resp = %+v", resp)
	}

	w = h.do(t, http.MethodGet, "/api/v1/users/4242/issues", "", nil)
	mustStatus(t, w, http.StatusNotFound)
}
