// Webhook ingress handler.
//
// The messaging platform delivers updates with at-least-once semantics and
// retries any delivery that does not get a 2xx in time. The handler
// therefore acknowledges every structurally valid envelope, even when
// routing it failed: a non-2xx would only make the platform redeliver an
// update we already know we cannot process. Duplicate deliveries are
// dropped through the processed-update ledger before routing.
package handlers

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-support-relay/internal/http/middleware"
	"github.com/tbourn/go-support-relay/internal/telegram"
)

// WebhookAck is the body returned for every acknowledged delivery.
type WebhookAck struct {
	OK bool `json:"ok" example:"true"`
}

// Webhook godoc
// @ID          telegramWebhook
// @Summary     Telegram webhook ingress
// @Description Receives one update envelope per request. Requires the configured secret token header when a secret is set. Always returns 200 for structurally valid envelopes, including duplicates and updates that failed to route.
// @Tags        Webhook
// @Accept      json
// @Produce     json
//
// @Param       X-Telegram-Bot-Api-Secret-Token  header  string  false "Webhook secret token"
// @Param       body  body  telegram.Update  true  "Update envelope"
//
// @Success     200  {object}  handlers.WebhookAck
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed envelope"
// @Failure     401  {object}  handlers.ErrorResponse  "Secret token mismatch"
// @Router      /telegram/webhook [post]
func (h *Handlers) Webhook(c *gin.Context) {
	ctx := c.Request.Context()
	lg := middleware.LoggerFrom(c)

	if h.webhookSecret != "" {
		got := c.GetHeader(middleware.SecretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) != 1 {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid webhook secret")
			return
		}
	}

	var upd telegram.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "malformed update envelope")
		return
	}

	seen, err := h.store.SeenUpdate(ctx, upd.UpdateID, time.Now().UTC())
	if err != nil {
		lg.Error().Err(err).Int64("update_id", upd.UpdateID).Msg("dedupe lookup failed")
	}
	if seen {
		lg.Debug().Int64("update_id", upd.UpdateID).Msg("duplicate update dropped")
		ok(c, http.StatusOK, WebhookAck{OK: true})
		return
	}
	if err := h.store.MarkUpdate(ctx, upd.UpdateID, h.updateTTL); err != nil {
		lg.Error().Err(err).Int64("update_id", upd.UpdateID).Msg("dedupe mark failed")
	}

	if err := h.router.HandleUpdate(ctx, &upd); err != nil {
		// The event is dropped; acknowledging anyway stops redelivery of an
		// update that will fail the same way every time.
		lg.Warn().Err(err).Int64("update_id", upd.UpdateID).Msg("update dropped")
	}

	ok(c, http.StatusOK, WebhookAck{OK: true})
}
