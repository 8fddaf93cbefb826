// Support-channel configuration.
//
// The configured support channel is the single process-wide destination for
// forwarded end-user messages. It is deliberately explicit state with a
// getter/setter pair, injected into the router and the settings handlers,
// rather than ambient package state: unset at startup (unless seeded from
// the environment) and changeable at runtime through the query surface.
package relay

import "sync"

// ChannelConfig holds the support-channel chat id. Safe for concurrent use.
type ChannelConfig struct {
	mu     sync.RWMutex
	chatID int64
	set    bool
}

// NewChannelConfig returns a config seeded with initial; an initial of 0
// leaves the channel unset.
func NewChannelConfig(initial int64) *ChannelConfig {
	c := &ChannelConfig{}
	if initial != 0 {
		c.Set(initial)
	}
	return c
}

// Get returns the configured chat id and whether one is set.
func (c *ChannelConfig) Get() (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chatID, c.set
}

// Set configures the support-channel chat id.
func (c *ChannelConfig) Set(chatID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chatID = chatID
	c.set = true
}

// Clear unsets the support channel; inbound user messages are then stored
// but not forwarded until a channel is configured again.
func (c *ChannelConfig) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chatID = 0
	c.set = false
}
