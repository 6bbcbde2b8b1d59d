// Package room implements the Room Manager (spec.md §4.3): per-document
// locally-connected sessions, serialized OT processing, bus subscription
// lifecycle, and presence delivery. Grounded on
// segfal-realtime_whiteboard/go-server/websocket/hub.go (room registry) and
// main.go (per-room Redis subscription + echo suppression by server id).
package room

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/collabtext/realtime-docs/internal/access"
	"github.com/collabtext/realtime-docs/internal/apperr"
	"github.com/collabtext/realtime-docs/internal/bus"
	"github.com/collabtext/realtime-docs/internal/document"
	"github.com/collabtext/realtime-docs/internal/metrics"
	"github.com/collabtext/realtime-docs/internal/ot"
	"github.com/collabtext/realtime-docs/internal/protocol"
)

// CursorThrottle is the minimum spacing between accepted cursor updates from
// the same (user, document) pair (spec.md §4.3).
const CursorThrottle = 50 * time.Millisecond

// PresenceTTLSeconds is the TTL of a presence entry (spec.md §3).
const PresenceTTLSeconds = 300

// LocalSession is the narrow view of a connected session the Room Manager
// needs: identity and a way to deliver an outbound event. internal/session
// implements this; internal/room never imports internal/session, avoiding a
// cycle.
type LocalSession interface {
	UserID() string
	Username() string
	Deliver(msg protocol.ServerMessage)
}

type busEnvelope struct {
	ServerID string          `json:"serverId"`
	Event    string          `json:"event"`
	Payload  json.RawMessage `json:"payload"`
}

type presenceValue struct {
	UserID   string          `json:"userId"`
	Username string          `json:"username"`
	Role     document.Role   `json:"role"`
	JoinedAt time.Time       `json:"joinedAt"`
	Cursor   json.RawMessage `json:"cursor,omitempty"`
}

// localUser is a locally-connected user's bookkeeping within one room.
type localUser struct {
	session      LocalSession
	role         document.Role
	lastCursorAt time.Time
}

// Room is the per-document, per-instance state of spec.md's "Room Local
// State": the set of locally connected sessions, the operation buffer (owned
// via the embedded OT engine), and bus subscription lifecycle.
type Room struct {
	id     string
	mgr    *Manager
	engine *ot.Engine

	mu         sync.Mutex
	localUsers map[string]*localUser
}

func newRoom(id string, mgr *Manager) *Room {
	return &Room{
		id:         id,
		mgr:        mgr,
		engine:     ot.NewEngine(mgr.store, mgr.archiver, mgr.engineOpts...),
		localUsers: make(map[string]*localUser),
	}
}

// Join implements spec.md §4.3 Join. On permission failure it emits
// error_message to sess and returns without mutating room state.
func (r *Room) Join(ctx context.Context, sess LocalSession) error {
	userID := sess.UserID()

	rec, role, err := access.GetDocumentWithAccess(ctx, r.mgr.store, r.id, userID, access.RequireRead)
	if err != nil {
		sess.Deliver(protocol.NewErrorMessage(err.Error(), apperr.KindOf(err).String()))
		return err
	}

	r.mu.Lock()
	r.localUsers[userID] = &localUser{session: sess, role: role}
	r.mu.Unlock()
	metrics.Get().ActiveSessions.Inc()

	r.upsertPresence(ctx, userID, sess.Username(), role, nil)
	r.mgr.ensureSubscribed(ctx, bus.DocChannel(r.id), r.onBusDocMessage)
	r.mgr.ensureSubscribed(ctx, bus.PresenceChannel(r.id), r.onBusPresenceMessage)

	activeUsers := r.snapshotActiveUsers(ctx)
	sess.Deliver(protocol.NewDocumentState(protocol.DocumentStatePayload{
		ID:          rec.ID,
		Title:       rec.Title,
		Content:     rec.Content,
		Version:     rec.Version,
		Owner:       rec.Owner,
		Role:        role,
		ActiveUsers: activeUsers,
	}))

	r.broadcastLocal(userID, protocol.NewUserJoined(protocol.UserJoinedPayload{
		UserID: userID, Username: sess.Username(), Role: role,
	}))
	r.publishPresence(ctx, protocol.NewUserJoined(protocol.UserJoinedPayload{
		UserID: userID, Username: sess.Username(), Role: role,
	}))
	return nil
}

// Operation implements spec.md §4.3 Operation: re-check canEdit on a fresh
// fetch, validate shape, invoke the OT engine under per-document
// serialization, then ack the originator and fan out locally and on the bus.
func (r *Room) Operation(ctx context.Context, sess LocalSession, op ot.Operation) error {
	userID := sess.UserID()

	_, role, err := access.GetDocumentWithAccess(ctx, r.mgr.store, r.id, userID, access.RequireEdit)
	if err != nil {
		sess.Deliver(protocol.NewErrorMessage(err.Error(), apperr.KindOf(err).String()))
		return err
	}
	_ = role

	result, err := r.engine.ProcessOperation(ctx, r.id, op, userID)
	if err != nil {
		sess.Deliver(protocol.NewErrorMessage(err.Error(), apperr.KindOf(err).String()))
		metrics.Get().OperationErrorsTotal.WithLabelValues(apperr.KindOf(err).String()).Inc()
		return err
	}
	metrics.Get().OperationsProcessedTotal.Inc()
	metrics.Get().TransformChainLength.Observe(float64(result.ChainLength))

	sess.Deliver(protocol.NewOperationAck(protocol.OperationAckPayload{
		Operation: protocol.ToWire(result.Transformed),
		Version:   result.Version,
		UserID:    userID,
	}))

	remote := protocol.NewRemoteOperation(protocol.RemoteOperationPayload{
		Operation: protocol.ToWire(result.Transformed),
		Version:   result.Version,
		UserID:    userID,
		Username:  sess.Username(),
	})
	r.broadcastLocal(userID, remote)
	r.publishDoc(ctx, remote)
	return nil
}

// CursorMove implements spec.md §4.3 CursorMove with the 50ms throttle.
func (r *Room) CursorMove(ctx context.Context, sess LocalSession, cursor protocol.Cursor) {
	userID := sess.UserID()

	r.mu.Lock()
	u, ok := r.localUsers[userID]
	if !ok {
		r.mu.Unlock()
		return
	}
	now := time.Now()
	if now.Sub(u.lastCursorAt) < CursorThrottle {
		r.mu.Unlock()
		return
	}
	u.lastCursorAt = now
	role := u.role
	r.mu.Unlock()

	msg := protocol.NewCursorMoved(protocol.CursorMovedPayload{UserID: userID, Username: sess.Username(), Cursor: cursor})
	r.broadcastLocal(userID, msg)
	r.upsertPresence(ctx, userID, sess.Username(), role, cursor)
}

// Leave removes a session from the room. If the local active-user set
// becomes empty, the instance unsubscribes from both channels and
// discards the operation buffer.
func (r *Room) Leave(ctx context.Context, sess LocalSession) {
	userID := sess.UserID()

	r.mu.Lock()
	_, existed := r.localUsers[userID]
	delete(r.localUsers, userID)
	empty := len(r.localUsers) == 0
	r.mu.Unlock()
	if !existed {
		return
	}
	metrics.Get().ActiveSessions.Dec()

	r.mgr.bus.Del(ctx, bus.PresenceKey(r.id, userID))

	left := protocol.NewUserLeft(protocol.UserLeftPayload{UserID: userID})
	r.broadcastLocal(userID, left)
	r.publishPresence(ctx, left)

	if empty {
		r.mgr.unsubscribe(ctx, bus.DocChannel(r.id))
		r.mgr.unsubscribe(ctx, bus.PresenceChannel(r.id))
		r.mgr.destroyRoom(r.id)
	}
}

// OperationsSince supports session-recovery re-sync (SPEC_FULL.md
// "Supplemented features").
func (r *Room) OperationsSince(since uint64) ([]ot.BufferEntry, bool) {
	return r.engine.OperationsSince(since)
}

// Empty reports whether no sessions are currently locally connected.
func (r *Room) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.localUsers) == 0
}

// RefreshPresence re-extends the TTL of every locally connected user's
// presence entry, preserving whatever cursor value was last published. This
// keeps an idle session (open but with no recent cursor movement, the only
// other thing that touches presence TTL) from silently expiring out of other
// clients' active-user lists before the connection actually closes.
func (r *Room) RefreshPresence(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.localUsers))
	for id := range r.localUsers {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		key := bus.PresenceKey(r.id, id)
		raw, ok, err := r.mgr.bus.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		if err := r.mgr.bus.Set(ctx, key, raw, PresenceTTLSeconds); err != nil {
			r.mgr.log.Errorw("presence refresh failed", "document", r.id, "user", id, "error", err)
		}
	}
}

func (r *Room) snapshotActiveUsers(ctx context.Context) []protocol.ActiveUser {
	keys, err := r.mgr.bus.Keys(ctx, bus.PresencePattern(r.id))
	if err != nil {
		return nil
	}
	out := make([]protocol.ActiveUser, 0, len(keys))
	for _, key := range keys {
		raw, ok, err := r.mgr.bus.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		var pv presenceValue
		if json.Unmarshal([]byte(raw), &pv) != nil {
			continue
		}
		out = append(out, protocol.ActiveUser{UserID: pv.UserID, Username: pv.Username, Role: pv.Role, Cursor: pv.Cursor})
	}
	return out
}

func (r *Room) upsertPresence(ctx context.Context, userID, username string, role document.Role, cursor protocol.Cursor) {
	pv := presenceValue{UserID: userID, Username: username, Role: role, JoinedAt: time.Now(), Cursor: cursor}
	body, err := json.Marshal(pv)
	if err != nil {
		return
	}
	if err := r.mgr.bus.Set(ctx, bus.PresenceKey(r.id, userID), string(body), PresenceTTLSeconds); err != nil {
		r.mgr.log.Errorw("presence upsert failed", "document", r.id, "user", userID, "error", err)
	}
}

// broadcastLocal delivers msg to every locally connected session except the
// originator.
func (r *Room) broadcastLocal(exceptUserID string, msg protocol.ServerMessage) {
	r.mu.Lock()
	targets := make([]LocalSession, 0, len(r.localUsers))
	for id, u := range r.localUsers {
		if id == exceptUserID {
			continue
		}
		targets = append(targets, u.session)
	}
	r.mu.Unlock()

	for _, sess := range targets {
		sess.Deliver(msg)
	}
}

// broadcastLocalAll delivers msg to every locally connected session, with no
// originator excluded (used for bus-ingress fan-out, where the "originator"
// isn't connected to this instance at all).
func (r *Room) broadcastLocalAll(msg protocol.ServerMessage) {
	r.mu.Lock()
	targets := make([]LocalSession, 0, len(r.localUsers))
	for _, u := range r.localUsers {
		targets = append(targets, u.session)
	}
	r.mu.Unlock()

	for _, sess := range targets {
		sess.Deliver(msg)
	}
}

func (r *Room) publishDoc(ctx context.Context, msg protocol.ServerMessage) {
	r.publish(ctx, bus.DocChannel(r.id), msg)
}

func (r *Room) publishPresence(ctx context.Context, msg protocol.ServerMessage) {
	r.publish(ctx, bus.PresenceChannel(r.id), msg)
}

// publish wraps msg in the {serverId, event, payload} bus envelope and
// publishes it. Publish failures are logged and swallowed per spec.md §7:
// the store remains the source of truth and a lost bus message is recovered
// on the next fetch or re-join.
func (r *Room) publish(ctx context.Context, channel string, msg protocol.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		r.mgr.log.Errorw("bus envelope marshal failed", "channel", channel, "error", err)
		return
	}
	envelope := busEnvelope{ServerID: r.mgr.serverID, Event: msg.Event, Payload: payload}
	body, err := json.Marshal(envelope)
	if err != nil {
		r.mgr.log.Errorw("bus envelope marshal failed", "channel", channel, "error", err)
		return
	}
	if err := r.mgr.bus.Publish(ctx, channel, string(body)); err != nil {
		r.mgr.log.Errorw("bus publish failed", "channel", channel, "error", err)
		metrics.Get().BusPublishFailuresTotal.Inc()
	}
}

// onBusDocMessage and onBusPresenceMessage are the bus ingress handlers of
// spec.md §4.3: drop self-originated echoes by serverId, otherwise fan the
// event out to every locally connected session.
func (r *Room) onBusDocMessage(payload string)      { r.onBusMessage(payload) }
func (r *Room) onBusPresenceMessage(payload string) { r.onBusMessage(payload) }

func (r *Room) onBusMessage(payload string) {
	var env busEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return
	}
	if env.ServerID == r.mgr.serverID {
		return // echo suppression
	}
	r.broadcastLocalAll(protocol.ServerMessage{Event: env.Event, Payload: json.RawMessage(env.Payload)})
}
