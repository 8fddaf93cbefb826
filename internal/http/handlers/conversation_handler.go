// Conversation HTTP handlers.
//
// This file exposes REST endpoints for conversation resources:
//   - GET /conversations                (list, newest activity first, ETag support)
//   - GET /conversations/{id}           (fetch one)
//   - GET /conversations/{id}/messages  (transcript, oldest first)
//   - PUT /conversations/{id}/status    (open/close)
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-support-relay/internal/domain"
	"github.com/tbourn/go-support-relay/internal/store"
)

// ListConversationsResponse wraps a page of conversations.
type ListConversationsResponse struct {
	Conversations []domain.Conversation `json:"conversations"`
	Count         int                   `json:"count"`
}

// ListMessagesResponse wraps a conversation transcript page together with
// the owning user and the conversation's support issue, when they exist.
type ListMessagesResponse struct {
	Conversation *domain.Conversation `json:"conversation"`
	User         *domain.User         `json:"user,omitempty"`
	Issue        *domain.SupportIssue `json:"issue,omitempty"`
	Messages     []domain.Message     `json:"messages"`
	Total        int64                `json:"total"`
}

// UpdateConversationStatusRequest is the JSON payload for opening or
// closing a conversation.
type UpdateConversationStatusRequest struct {
	Status string `json:"status" binding:"required" example:"closed"`
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List conversations
// @Description Returns conversations ordered by most recent activity. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Conversations
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       limit          query   int     false "Max results"  minimum(1) maximum(200) default(50)
//
// @Success     200  {object} handlers.ListConversationsResponse
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	ctx := c.Request.Context()

	// ETag pre-check (best effort).
	if count, maxTS, err := h.store.ConversationStats(ctx); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.Unix()
		}
		etag := fmt.Sprintf(`W/"conversations:%d:%d"`, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, err := h.store.ListConversations(ctx, clampListLimit(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListConversationsResponse{Conversations: items, Count: len(items)})
}

// GetConversation godoc
// @ID          getConversation
// @Summary     Fetch a conversation
// @Tags        Conversations
// @Produce     json
//
// @Param       id  path  int  true  "Conversation ID"
//
// @Success     200  {object} domain.Conversation
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations/{id} [get]
func (h *Handlers) GetConversation(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a positive integer")
		return
	}

	conv, err := h.store.GetConversation(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, conv)
}

// ListConversationMessages godoc
// @ID          listConversationMessages
// @Summary     List messages in a conversation
// @Description Returns the transcript in send order, oldest first, truncated to the limit from the most recent end, joined with the owning user and the conversation's support issue.
// @Tags        Conversations
// @Produce     json
//
// @Param       id     path   int  true  "Conversation ID"
// @Param       limit  query  int  false "Max results"  minimum(1) maximum(200) default(50)
//
// @Success     200  {object} handlers.ListMessagesResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations/{id}/messages [get]
func (h *Handlers) ListConversationMessages(c *gin.Context) {
	ctx := c.Request.Context()
	id, okID := pathID(c, "id")
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a positive integer")
		return
	}

	conv, err := h.store.GetConversation(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	items, err := h.store.ListMessagesByConversation(ctx, id, clampListLimit(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	total, err := h.store.CountMessages(ctx, id)
	if err != nil {
		total = int64(len(items))
	}

	// Joined context; both lookups are best-effort and may legitimately
	// come back empty (user pruned, thread never established).
	user, err := h.store.GetUserByTelegramID(ctx, conv.UserTelegramID)
	if err != nil {
		user = nil
	}
	issue, err := h.store.GetSupportIssueByConversationID(ctx, id)
	if err != nil {
		issue = nil
	}

	ok(c, http.StatusOK, ListMessagesResponse{
		Conversation: conv,
		User:         user,
		Issue:        issue,
		Messages:     items,
		Total:        total,
	})
}

// UpdateConversationStatus godoc
// @ID          updateConversationStatus
// @Summary     Open or close a conversation
// @Description Sets the conversation status. Closing does not delete the thread or the transcript; a new inbound message reuses the same conversation.
// @Tags        Conversations
// @Accept      json
// @Produce     json
//
// @Param       id    path  int  true  "Conversation ID"
// @Param       body  body  handlers.UpdateConversationStatusRequest  true  "New status"
//
// @Success     200  {object} domain.Conversation
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations/{id}/status [put]
func (h *Handlers) UpdateConversationStatus(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a positive integer")
		return
	}

	var req UpdateConversationStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}
	if req.Status != domain.ConversationOpen && req.Status != domain.ConversationClosed {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status must be open or closed")
		return
	}

	conv, err := h.store.UpdateConversation(c.Request.Context(), id, store.ConversationUpdate{Status: &req.Status})
	if errors.Is(err, store.ErrNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeUpdateFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, conv)
}
