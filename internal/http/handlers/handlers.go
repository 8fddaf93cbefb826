// Handler wiring and shared helpers.
//
// Handlers are transport-thin: they validate and normalize inputs, delegate
// to the record store or the router, and translate results into HTTP
// responses. Business decisions (who talks to whom, what gets forwarded)
// live in the relay package.
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-support-relay/internal/relay"
	"github.com/tbourn/go-support-relay/internal/store"
	"github.com/tbourn/go-support-relay/internal/telegram"
	"github.com/tbourn/go-support-relay/internal/utils"
)

// UpdateRouter consumes one webhook envelope. Implemented by relay.Service;
// faked in tests.
type UpdateRouter interface {
	HandleUpdate(ctx context.Context, upd *telegram.Update) error
}

// Handlers groups the HTTP endpoints: the webhook ingress and the read/
// administer query surface over the stored records.
type Handlers struct {
	store   store.Store
	router  UpdateRouter
	channel *relay.ChannelConfig
	gateway relay.Gateway

	webhookSecret string
	updateTTL     time.Duration
}

// New constructs a Handlers instance bound to the given collaborators.
// webhookSecret may be empty, which disables the secret-token check;
// updateTTL bounds how long processed update ids are remembered.
func New(st store.Store, router UpdateRouter, channel *relay.ChannelConfig, gateway relay.Gateway, webhookSecret string, updateTTL time.Duration) *Handlers {
	return &Handlers{
		store:         st,
		router:        router,
		channel:       channel,
		gateway:       gateway,
		webhookSecret: webhookSecret,
		updateTTL:     updateTTL,
	}
}

// clampListLimit parses the "limit" query parameter and applies the store
// contract's default and a hard upper bound.
func clampListLimit(c *gin.Context) int {
	const maxLimit = 200
	limit := utils.AtoiDefault(c.Query("limit"), store.DefaultListLimit)
	if limit < 1 {
		limit = store.DefaultListLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}

// pathID parses a numeric path parameter, returning ok=false on junk.
func pathID(c *gin.Context, name string) (int64, bool) {
	id := utils.Atoi64Default(c.Param(name), 0)
	if id <= 0 {
		return 0, false
	}
	return id, true
}
