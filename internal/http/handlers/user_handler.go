// User HTTP handlers.
//
// This file exposes REST endpoints for user resources:
//   - GET /users               (list, newest joiners first)
//   - GET /users/{id}          (fetch one)
//   - GET /users/{id}/issues   (support issues raised by the user)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-support-relay/internal/domain"
	"github.com/tbourn/go-support-relay/internal/store"
)

// ListUsersResponse wraps a page of users.
type ListUsersResponse struct {
	Users []domain.User `json:"users"`
	Count int           `json:"count"`
}

// ListUserIssuesResponse wraps a user's support issues.
type ListUserIssuesResponse struct {
	Issues []domain.SupportIssue `json:"issues"`
	Count  int                   `json:"count"`
}

// ListUsers godoc
// @ID          listUsers
// @Summary     List users
// @Description Returns users ordered by join time, newest first.
// @Tags        Users
// @Produce     json
//
// @Param       limit  query  int  false "Max results"  minimum(1) maximum(200) default(50)
//
// @Success     200  {object} handlers.ListUsersResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /users [get]
func (h *Handlers) ListUsers(c *gin.Context) {
	items, err := h.store.ListUsers(c.Request.Context(), clampListLimit(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListUsersResponse{Users: items, Count: len(items)})
}

// GetUser godoc
// @ID          getUser
// @Summary     Fetch a user
// @Tags        Users
// @Produce     json
//
// @Param       id  path  int  true  "User ID"
//
// @Success     200  {object} domain.User
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "User not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /users/{id} [get]
func (h *Handlers) GetUser(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user id must be a positive integer")
		return
	}

	u, err := h.store.GetUser(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, u)
}

// ListUserIssues godoc
// @ID          listUserIssues
// @Summary     List a user's support issues
// @Description Returns the user's issues ordered by open time, newest first.
// @Tags        Users
// @Produce     json
//
// @Param       id     path   int  true  "User ID"
// @Param       limit  query  int  false "Max results"  minimum(1) maximum(200) default(50)
//
// @Success     200  {object} handlers.ListUserIssuesResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "User not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /users/{id}/issues [get]
func (h *Handlers) ListUserIssues(c *gin.Context) {
	ctx := c.Request.Context()
	id, okID := pathID(c, "id")
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user id must be a positive integer")
		return
	}

	// Issues are keyed by the platform identity, so resolve the user first.
	u, err := h.store.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	items, err := h.store.ListSupportIssuesByUserID(ctx, u.TelegramID, clampListLimit(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListUserIssuesResponse{Issues: items, Count: len(items)})
}
