// Package clientsim is a minimal client state machine enforcing
// at-most-one-operation-in-flight and baseVersion restamping at send time.
// It is a test fixture, not production code; the real client is out of
// scope, and this exists to exercise convergence, monotone versioning, and
// the single-in-flight-operation invariant against the real room/OT stack
// (the session layer is not involved).
package clientsim

import (
	"container/list"
	"context"
	"sync"

	"github.com/collabtext/realtime-docs/internal/ot"
	"github.com/collabtext/realtime-docs/internal/protocol"
	"github.com/collabtext/realtime-docs/internal/room"
)

// Transport is the narrow surface clientsim needs from a connected session:
// submit an operation and receive the ack/remote-operation/error stream.
// Tests wire this directly to a room.Room, or to a wrapper around one; the
// Client itself is the room.LocalSession.
type Transport interface {
	Operation(ctx context.Context, sess room.LocalSession, op ot.Operation) error
}

// Client is a single simulated editor: it holds a local copy of the
// document's content and version, a FIFO queue of pending local edits, and
// enforces that only one of them is ever in flight at the server at a time.
type Client struct {
	id        string
	username  string
	transport Transport

	mu       sync.Mutex
	content  string
	version  uint64
	queue    *list.List // queued ot.Operation values not yet sent
	inFlight bool

	deliveries *list.List // protocol.ServerMessage values received via Deliver
}

func New(id, username string, transport Transport, initialContent string, initialVersion uint64) *Client {
	return &Client{
		id:         id,
		username:   username,
		transport:  transport,
		content:    initialContent,
		version:    initialVersion,
		queue:      list.New(),
		deliveries: list.New(),
	}
}

func (c *Client) UserID() string   { return c.id }
func (c *Client) Username() string { return c.username }

// Deliver implements room.LocalSession, recording every inbound event and
// applying document-mutating ones to the local copy: remote operations get
// applied, and acks for this client's own operations reconcile its version.
func (c *Client) Deliver(msg protocol.ServerMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deliveries.PushBack(msg)

	switch p := msg.Payload.(type) {
	case protocol.OperationAckPayload:
		if p.UserID == c.id {
			c.version = p.Version
			c.inFlight = false
			c.drainLocked()
		}
	case protocol.RemoteOperationPayload:
		if p.UserID != c.id {
			op, err := p.Operation.ToOperation()
			if err == nil {
				c.content = ot.Apply(c.content, op)
				c.version = p.Version
			}
		}
	case protocol.DocumentStatePayload:
		c.content = p.Content
		c.version = p.Version
	}
}

// Enqueue applies a local edit to the local copy optimistically and appends
// it to the send queue. If nothing is currently in flight, it is sent
// immediately with baseVersion restamped to the client's current known
// version, preventing a queued edit from carrying a stale baseVersion from
// when it was originally typed.
func (c *Client) Enqueue(ctx context.Context, op ot.Operation) {
	c.mu.Lock()
	c.content = ot.Apply(c.content, op)
	c.queue.PushBack(op)
	c.mu.Unlock()
	c.drain(ctx)
}

func (c *Client) drain(ctx context.Context) {
	c.mu.Lock()
	op, ok := c.popNextLocked()
	c.mu.Unlock()
	if !ok {
		return
	}
	_ = c.transport.Operation(ctx, c, op)
}

// drainLocked is called with c.mu held, after an ack clears inFlight; it
// sends the next operation from a new goroutine rather than calling the
// transport while the lock is held, avoiding recursive locking when Deliver
// is invoked synchronously from within Operation (as it is against an
// in-process room.Room).
func (c *Client) drainLocked() {
	op, ok := c.popNextLocked()
	if !ok {
		return
	}
	go func() { _ = c.transport.Operation(context.Background(), c, op) }()
}

// popNextLocked pops the next queued operation and restamps its baseVersion,
// marking inFlight. Caller holds c.mu.
func (c *Client) popNextLocked() (ot.Operation, bool) {
	if c.inFlight {
		return ot.Operation{}, false
	}
	front := c.queue.Front()
	if front == nil {
		return ot.Operation{}, false
	}
	c.queue.Remove(front)
	op := front.Value.(ot.Operation)
	op.BaseVersion = c.version
	c.inFlight = true
	return op, true
}

// Content returns the client's current local view of the document.
func (c *Client) Content() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.content
}

// Version returns the client's current known document version.
func (c *Client) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// InFlight reports whether a local edit is currently awaiting ack.
func (c *Client) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// QueueLen reports how many local edits are queued behind the in-flight one.
func (c *Client) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}
