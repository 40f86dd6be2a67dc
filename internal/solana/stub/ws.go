package stub

import (
	"context"
	"errors"
	"sync"

	"chainproof-ledger/internal/solana"
)

// WSClient implements solana.WSClient over a single in-memory channel.
type WSClient struct {
	mu         sync.Mutex
	ch         chan solana.LogNotification
	closed     bool
	subscribed chan struct{}
	Filters    []solana.LogsFilter
}

// NewWSClient creates a stub websocket client with the given buffer.
func NewWSClient(buffer int) *WSClient {
	return &WSClient{
		ch:         make(chan solana.LogNotification, buffer),
		subscribed: make(chan struct{}),
	}
}

// Subscribed is closed once the first subscription is made.
func (c *WSClient) Subscribed() <-chan struct{} {
	return c.subscribed
}

// SubscribeLogs records the filter and returns the shared channel.
func (c *WSClient) SubscribeLogs(_ context.Context, filter solana.LogsFilter) (<-chan solana.LogNotification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("client closed")
	}
	c.Filters = append(c.Filters, filter)
	if len(c.Filters) == 1 {
		close(c.subscribed)
	}
	return c.ch, nil
}

// Push delivers a notification to the subscriber.
func (c *WSClient) Push(n solana.LogNotification) {
	c.ch <- n
}

// Close closes the notification channel.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
	return nil
}

var _ solana.WSClient = (*WSClient)(nil)
