package clientsim

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/collabtext/realtime-docs/internal/bus"
	"github.com/collabtext/realtime-docs/internal/document"
	"github.com/collabtext/realtime-docs/internal/logging"
	"github.com/collabtext/realtime-docs/internal/ot"
	"github.com/collabtext/realtime-docs/internal/room"
	"github.com/collabtext/realtime-docs/internal/store"
)

// concurrencyTrackingTransport wraps a room.Room and records the maximum
// number of Operation calls it ever observed in flight simultaneously, to
// give TestAtMostOneInFlight something real to assert against.
type concurrencyTrackingTransport struct {
	*room.Room
	current int32
	maxSeen int32
	mu      sync.Mutex
}

func (c *concurrencyTrackingTransport) Operation(ctx context.Context, sess room.LocalSession, op ot.Operation) error {
	n := atomic.AddInt32(&c.current, 1)
	c.mu.Lock()
	if n > c.maxSeen {
		c.maxSeen = n
	}
	c.mu.Unlock()
	defer atomic.AddInt32(&c.current, -1)
	return c.Room.Operation(ctx, sess, op)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition did not become true within %s", timeout)
}

// TestConvergenceAndMonotoneVersions runs two simulated clients issuing
// concurrent local inserts against the same starting version, and checks
// both converge on identical content with strictly increasing versions.
func TestConvergenceAndMonotoneVersions(t *testing.T) {
	ctx := context.Background()
	docStore := store.NewMemoryStore()
	docStore.Put(&document.Record{ID: "d1", Content: "AC", Version: 1, Owner: "u1", Shares: map[string]document.Role{"u2": document.RoleEditor}})

	mgr := room.NewManager(docStore, bus.NewMemoryAdapter(), nil, logging.NewNop(), "server-A")
	r := mgr.Room("d1")

	c1 := New("u1", "u1", r, "AC", 1)
	c2 := New("u2", "u2", r, "AC", 1)
	require.NoError(t, r.Join(ctx, c1))
	require.NoError(t, r.Join(ctx, c2))

	c1.Enqueue(ctx, ot.NewInsert(1, "B", 1))
	c2.Enqueue(ctx, ot.NewInsert(1, "X", 1))

	waitFor(t, time.Second, func() bool {
		return !c1.InFlight() && !c2.InFlight() && c1.QueueLen() == 0 && c2.QueueLen() == 0
	})

	require.Equal(t, docStoreContent(t, docStore, "d1"), c1.Content())
	require.Equal(t, c1.Content(), c2.Content(), "all clients converge to identical content")
	require.True(t, c1.Version() > 1, "version strictly increases after an applied operation")
}

// TestAtMostOneInFlight fires three local edits concurrently and checks
// the transport never observes more than one in flight at a time, and that
// they still land in FIFO enqueue order.
func TestAtMostOneInFlight(t *testing.T) {
	ctx := context.Background()
	docStore := store.NewMemoryStore()
	docStore.Put(&document.Record{ID: "d2", Content: "", Version: 1, Owner: "u1"})

	mgr := room.NewManager(docStore, bus.NewMemoryAdapter(), nil, logging.NewNop(), "server-A")
	transport := &concurrencyTrackingTransport{Room: mgr.Room("d2")}

	c := New("u1", "u1", transport, "", 1)
	require.NoError(t, transport.Room.Join(ctx, c))

	var wg sync.WaitGroup
	for _, op := range []ot.Operation{
		ot.NewInsert(0, "a", 1),
		ot.NewInsert(1, "b", 1),
		ot.NewInsert(2, "c", 1),
	} {
		wg.Add(1)
		go func(op ot.Operation) {
			defer wg.Done()
			c.Enqueue(ctx, op)
		}(op)
	}
	wg.Wait()

	waitFor(t, time.Second, func() bool { return !c.InFlight() && c.QueueLen() == 0 })
	require.Equal(t, "abc", c.Content())
	require.LessOrEqual(t, atomic.LoadInt32(&transport.maxSeen), int32(1), "at most one operation in flight at a time")
}

func docStoreContent(t *testing.T, s *store.MemoryStore, id string) string {
	rec, err := s.GetByID(context.Background(), id)
	require.NoError(t, err)
	return rec.Content
}
