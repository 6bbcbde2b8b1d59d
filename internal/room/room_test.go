package room

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/collabtext/realtime-docs/internal/bus"
	"github.com/collabtext/realtime-docs/internal/document"
	"github.com/collabtext/realtime-docs/internal/logging"
	"github.com/collabtext/realtime-docs/internal/ot"
	"github.com/collabtext/realtime-docs/internal/protocol"
	"github.com/collabtext/realtime-docs/internal/store"
)

func insertOp(position uint32, text string, baseVersion uint64) ot.Operation {
	return ot.NewInsert(position, text, baseVersion)
}

type fakeSession struct {
	id       string
	username string
	received []protocol.ServerMessage
}

func newFakeSession(id string) *fakeSession { return &fakeSession{id: id, username: id} }

func (f *fakeSession) UserID() string   { return f.id }
func (f *fakeSession) Username() string { return f.username }
func (f *fakeSession) Deliver(msg protocol.ServerMessage) {
	f.received = append(f.received, msg)
}

func (f *fakeSession) last() protocol.ServerMessage {
	return f.received[len(f.received)-1]
}

func seedDoc(s *store.MemoryStore, id, owner string) {
	s.Put(&document.Record{
		ID:      id,
		Title:   "doc",
		Content: "hello",
		Version: 1,
		Owner:   owner,
		Shares:  map[string]document.Role{"editor1": document.RoleEditor, "viewer1": document.RoleViewer},
	})
}

// TestCrossInstanceFanOut models two server instances sharing one
// logical bus: a local edit on instance A must reach a session connected only
// to instance B via the bus, not via any local broadcast path.
func TestCrossInstanceFanOut(t *testing.T) {
	ctx := context.Background()
	docStore := store.NewMemoryStore()
	seedDoc(docStore, "doc1", "owner1")

	brokerGroup := bus.NewBrokerGroup()
	log := logging.NewNop()

	mgrA := NewManager(docStore, brokerGroup(), nil, log, "server-A")
	mgrB := NewManager(docStore, brokerGroup(), nil, log, "server-B")

	sessA := newFakeSession("owner1")
	sessB := newFakeSession("editor1")

	require.NoError(t, mgrA.Room("doc1").Join(ctx, sessA))
	require.NoError(t, mgrB.Room("doc1").Join(ctx, sessB))

	err := mgrA.Room("doc1").Operation(ctx, sessA, insertOp(0, "X", 1))
	require.NoError(t, err)

	found := false
	for _, m := range sessB.received {
		if m.Event == protocol.EventRemoteOp {
			found = true
		}
	}
	require.True(t, found, "session on instance B must receive the remote_operation fanned out over the shared bus")
}

// TestRoomCleanupOnEmpty verifies that once the last local session
// leaves, the room is destroyed and the room created next for the same
// document starts with an empty operation buffer.
func TestRoomCleanupOnEmpty(t *testing.T) {
	ctx := context.Background()
	docStore := store.NewMemoryStore()
	seedDoc(docStore, "doc2", "owner1")

	memBus := bus.NewMemoryAdapter()
	log := logging.NewNop()
	mgr := NewManager(docStore, memBus, nil, log, "server-A")

	sess := newFakeSession("owner1")
	r := mgr.Room("doc2")
	require.NoError(t, r.Join(ctx, sess))
	require.NoError(t, r.Operation(ctx, sess, insertOp(5, "!", 1)))
	require.Equal(t, 1, r.engine.BufferLen())

	r.Leave(ctx, sess)
	require.Equal(t, 0, mgr.RoomCount())

	r2 := mgr.Room("doc2")
	require.NotSame(t, r, r2, "a fresh room must be created after the prior one was destroyed")
	require.Equal(t, 0, r2.engine.BufferLen())
}

// TestIdempotentSubscribe checks a second Join on the same
// document from the same instance does not create a second bus subscription.
func TestIdempotentSubscribe(t *testing.T) {
	ctx := context.Background()
	docStore := store.NewMemoryStore()
	seedDoc(docStore, "doc3", "owner1")

	memBus := &countingBus{MemoryAdapter: bus.NewMemoryAdapter()}
	log := logging.NewNop()
	mgr := NewManager(docStore, memBus, nil, log, "server-A")

	sessA := newFakeSession("owner1")
	sessB := newFakeSession("editor1")

	r := mgr.Room("doc3")
	require.NoError(t, r.Join(ctx, sessA))
	require.NoError(t, r.Join(ctx, sessB))

	require.Equal(t, 2, memBus.subscribeCalls, "doc channel + presence channel each subscribed exactly once")
}

// TestPresenceRemovedOnLeave checks a user's presence key is
// deleted from the bus kv store when they leave.
func TestPresenceRemovedOnLeave(t *testing.T) {
	ctx := context.Background()
	docStore := store.NewMemoryStore()
	seedDoc(docStore, "doc4", "owner1")

	memBus := bus.NewMemoryAdapter()
	log := logging.NewNop()
	mgr := NewManager(docStore, memBus, nil, log, "server-A")

	sess := newFakeSession("owner1")
	r := mgr.Room("doc4")
	require.NoError(t, r.Join(ctx, sess))

	_, ok, err := memBus.Get(ctx, bus.PresenceKey("doc4", "owner1"))
	require.NoError(t, err)
	require.True(t, ok)

	r.Leave(ctx, sess)

	_, ok, err = memBus.Get(ctx, bus.PresenceKey("doc4", "owner1"))
	require.NoError(t, err)
	require.False(t, ok)
}

// TestRoleRecheckedMidSession verifies a viewer who loses edit
// access mid-session (here: never had it) is rejected on Operation even
// though Join succeeded as a reader.
func TestRoleRecheckedMidSession(t *testing.T) {
	ctx := context.Background()
	docStore := store.NewMemoryStore()
	seedDoc(docStore, "doc5", "owner1")

	memBus := bus.NewMemoryAdapter()
	log := logging.NewNop()
	mgr := NewManager(docStore, memBus, nil, log, "server-A")

	viewer := newFakeSession("viewer1")
	r := mgr.Room("doc5")
	require.NoError(t, r.Join(ctx, viewer))

	err := r.Operation(ctx, viewer, insertOp(0, "x", 1))
	require.Error(t, err)
	require.Equal(t, protocol.EventErrorMessage, viewer.last().Event)
}

type countingBus struct {
	*bus.MemoryAdapter
	subscribeCalls int
}

func (c *countingBus) Subscribe(ctx context.Context, channel string, handler bus.Handler) error {
	c.subscribeCalls++
	return c.MemoryAdapter.Subscribe(ctx, channel, handler)
}
