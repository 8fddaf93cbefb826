// Bot-identity HTTP handler.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MeResponse reports the bot account the relay operates as.
type MeResponse struct {
	ID        int64  `json:"id" example:"7133920532"`
	Username  string `json:"username" example:"acme_support_bot"`
	FirstName string `json:"first_name" example:"Acme Support"`
}

// Me godoc
// @ID          getMe
// @Summary     Fetch the bot identity
// @Description Queries the messaging platform for the account behind the configured token. Useful as a deep health check of the upstream connection.
// @Tags        Settings
// @Produce     json
//
// @Success     200  {object} handlers.MeResponse
// @Failure     502  {object} handlers.ErrorResponse "Upstream gateway failed"
// @Router      /me [get]
func (h *Handlers) Me(c *gin.Context) {
	me, err := h.gateway.GetMe(c.Request.Context())
	if err != nil {
		fail(c, http.StatusBadGateway, ErrCodeGatewayFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, MeResponse{ID: me.ID, Username: me.Username, FirstName: me.FirstName})
}
