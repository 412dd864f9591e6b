package client

import (
	"context"
	"sync"

	"github.com/rickgao/walletstream/internal/auth"
	"github.com/rickgao/walletstream/internal/dispatch"
)

// Holder owns at most one live Client. The zero value is ready to use.
type Holder struct {
	initMu sync.Mutex // serializes Initialize

	mu      sync.Mutex
	current *Client
}

// Initialize tears down the current Client, if any, then creates and
// connects a new one. The previous Client is gone even when creating the
// new one fails. A connect error is returned together with the new
// Client, which stays live and keeps retrying in the background.
func (h *Holder) Initialize(ctx context.Context, cfg Config, creds auth.Credentials, handlers dispatch.Handlers, opts ...Option) (*Client, error) {
	h.initMu.Lock()
	defer h.initMu.Unlock()

	h.mu.Lock()
	prev := h.current
	h.current = nil
	h.mu.Unlock()

	if prev != nil {
		prev.Disconnect()
	}

	c, err := New(cfg, creds, handlers, opts...)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.current = c
	h.mu.Unlock()

	if err := c.Connect(ctx); err != nil {
		return c, err
	}
	return c, nil
}

// Instance returns the live Client, or nil.
func (h *Holder) Instance() *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Teardown disconnects and forgets the live Client. Idempotent.
// A Teardown during Initialize aborts its connect.
func (h *Holder) Teardown() {
	h.mu.Lock()
	c := h.current
	h.current = nil
	h.mu.Unlock()

	if c != nil {
		c.Disconnect()
	}
}
