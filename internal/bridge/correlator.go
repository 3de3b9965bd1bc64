package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrClosed is returned for requests pending when the correlator closes
var ErrClosed = errors.New("bridge closed")

// Correlator matches asynchronous responses to the requests that caused
// them by request id
type Correlator struct {
	mu      sync.Mutex
	pending map[string]chan json.RawMessage
	closed  bool
}

// NewCorrelator creates an empty correlator
func NewCorrelator() *Correlator {
	return &Correlator{pending: make(map[string]chan json.RawMessage)}
}

// Request registers a new request id, hands it to send and waits for the
// matching Resolve or for ctx to end
func (c *Correlator) Request(ctx context.Context, send func(requestID string) error) (json.RawMessage, error) {
	requestID := uuid.New().String()
	ch := make(chan json.RawMessage, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[requestID] = ch
	c.mu.Unlock()

	defer c.forget(requestID)

	if err := send(requestID); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case payload, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		return payload, nil
	}
}

// Resolve delivers payload to the request waiting on requestID. It reports
// false when no such request is pending.
func (c *Correlator) Resolve(requestID string, payload json.RawMessage) bool {
	c.mu.Lock()
	ch, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
	}
	c.mu.Unlock()

	if ok {
		ch <- payload
	}
	return ok
}

// Pending returns the number of requests awaiting a response
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close fails every pending request
func (c *Correlator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Correlator) forget(requestID string) {
	c.mu.Lock()
	delete(c.pending, requestID)
	c.mu.Unlock()
}
