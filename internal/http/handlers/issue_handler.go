// Support-issue HTTP handlers.
//
// This file exposes the administrative endpoint for support issues:
//   - PUT /issues/{id}   (update status and/or assignee)
//
// Closing an issue stamps ClosedAt server-side.
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-support-relay/internal/domain"
	"github.com/tbourn/go-support-relay/internal/store"
)

// UpdateIssueRequest is the JSON payload for updating a support issue.
// Omitted fields are left unchanged.
type UpdateIssueRequest struct {
	Status   *string `json:"status,omitempty" example:"in_progress"`
	Assignee *string `json:"assignee,omitempty" example:"dana"`
}

func validIssueStatus(s string) bool {
	switch s {
	case domain.IssuePending, domain.IssueInProgress, domain.IssueClosed:
		return true
	}
	return false
}

// UpdateIssue godoc
// @ID          updateIssue
// @Summary     Update a support issue
// @Description Updates the status and/or assignee of an issue. Setting status to closed stamps the close time.
// @Tags        Issues
// @Accept      json
// @Produce     json
//
// @Param       id    path  int  true  "Issue ID"
// @Param       body  body  handlers.UpdateIssueRequest  true  "Fields to update"
//
// @Success     200  {object} domain.SupportIssue
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Issue not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /issues/{id} [put]
func (h *Handlers) UpdateIssue(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "issue id must be a positive integer")
		return
	}

	var req UpdateIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if req.Status == nil && req.Assignee == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "nothing to update")
		return
	}

	upd := store.SupportIssueUpdate{}
	if req.Status != nil {
		status := strings.TrimSpace(*req.Status)
		if !validIssueStatus(status) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status must be pending, in_progress or closed")
			return
		}
		upd.Status = &status
		if status == domain.IssueClosed {
			now := time.Now().UTC()
			upd.ClosedAt = &now
		}
	}
	if req.Assignee != nil {
		assignee := strings.TrimSpace(*req.Assignee)
		upd.Assignee = &assignee
	}

	issue, err := h.store.UpdateSupportIssue(c.Request.Context(), id, upd)
	if errors.Is(err, store.ErrNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "issue not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeUpdateFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, issue)
}
