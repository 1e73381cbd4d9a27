package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBridgeTimeout is returned when no response arrives within the caller's
// deadline. The channel itself never retries; retry policy belongs to the
// caller.
var ErrBridgeTimeout = errors.New("bridge call timed out")

// Caller is the requesting side of the channel: it assigns nothing, trusts
// nothing, and simply matches responses to requests by correlation id with
// a pending-request map. Each id resolves at most once; responses for ids
// that were never requested (or already resolved) are dropped.
type Caller struct {
	send    func(ctx context.Context, raw []byte) error
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan *Response
}

// NewCaller creates a Caller that transmits via send.
func NewCaller(send func(ctx context.Context, raw []byte) error, timeout time.Duration) *Caller {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Caller{
		send:    send,
		timeout: timeout,
		pending: make(map[string]chan *Response),
	}
}

// Call sends one request and blocks until its response, the caller timeout,
// or ctx cancellation. The message must carry a non-empty id; reusing an
// in-flight id is a caller bug and is rejected.
func (c *Caller) Call(ctx context.Context, msg *Message) (*Response, error) {
	if msg.ID == "" {
		return nil, fmt.Errorf("Call: message id required")
	}
	msg.Kind = KindRequest

	ch := make(chan *Response, 1)
	c.mu.Lock()
	if _, exists := c.pending[msg.ID]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("Call: id %q already in flight", msg.ID)
	}
	c.pending[msg.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
	}()

	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("Call: %w", err)
	}
	if err := c.send(ctx, raw); err != nil {
		return nil, fmt.Errorf("Call: %w", err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		return nil, ErrBridgeTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// HandleResponse feeds one raw inbound message to the pending map. Unknown
// kinds, unparseable bodies and unmatched ids are dropped: a late response
// whose caller already timed out simply disappears.
func (c *Caller) HandleResponse(raw []byte) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return
	}
	if resp.Kind != KindResponse || resp.ID == "" {
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		// Remove before delivering so a duplicate response can't resolve twice.
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()

	if ok {
		ch <- &resp
	}
}
