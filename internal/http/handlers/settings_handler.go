// Runtime-settings HTTP handlers.
//
// This file exposes the support-channel configuration:
//   - GET    /settings/support-chat   (current destination)
//   - PUT    /settings/support-chat   (point forwarding at a chat)
//   - DELETE /settings/support-chat   (unset; messages are stored only)
//
// The setting is process-wide and takes effect immediately for the next
// inbound update.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SupportChatResponse reports the configured forwarding destination.
type SupportChatResponse struct {
	ChatID     int64 `json:"chat_id" example:"-1001234567890"`
	Configured bool  `json:"configured" example:"true"`
}

// SetSupportChatRequest is the JSON payload for configuring the
// support channel.
type SetSupportChatRequest struct {
	// ChatID is the destination chat; forum supergroup ids are negative.
	ChatID int64 `json:"chat_id" binding:"required" example:"-1001234567890"`
}

// GetSupportChat godoc
// @ID          getSupportChat
// @Summary     Get the support-channel setting
// @Tags        Settings
// @Produce     json
//
// @Success     200  {object} handlers.SupportChatResponse
// @Router      /settings/support-chat [get]
func (h *Handlers) GetSupportChat(c *gin.Context) {
	chatID, configured := h.channel.Get()
	ok(c, http.StatusOK, SupportChatResponse{ChatID: chatID, Configured: configured})
}

// SetSupportChat godoc
// @ID          setSupportChat
// @Summary     Set the support-channel setting
// @Description Points message forwarding at the given chat. Conversations without a thread get one created on their next inbound message.
// @Tags        Settings
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.SetSupportChatRequest  true  "Destination chat"
//
// @Success     200  {object} handlers.SupportChatResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Router      /settings/support-chat [put]
func (h *Handlers) SetSupportChat(c *gin.Context) {
	var req SetSupportChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ChatID == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chat_id required")
		return
	}
	h.channel.Set(req.ChatID)
	ok(c, http.StatusOK, SupportChatResponse{ChatID: req.ChatID, Configured: true})
}

// ClearSupportChat godoc
// @ID          clearSupportChat
// @Summary     Unset the support-channel setting
// @Description Stops forwarding; inbound user messages are still recorded.
// @Tags        Settings
//
// @Success     204  {string} string "No Content"
// @Router      /settings/support-chat [delete]
func (h *Handlers) ClearSupportChat(c *gin.Context) {
	h.channel.Clear()
	noContent(c)
}
