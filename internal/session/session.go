// Package session implements the transport-agnostic Session State of
// spec.md §4.4: inbound event dispatch to the Room Manager and outbound
// event delivery to whatever transport is attached (internal/wsapi for
// production, a fake in tests). Grounded in shape on
// segfal-realtime_whiteboard/go-server/websocket/client.go's per-connection
// dispatch switch, generalized from stroke/canvas events to spec.md's
// join_document/operation/cursor_move/leave_document set.
package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/collabtext/realtime-docs/internal/apperr"
	"github.com/collabtext/realtime-docs/internal/logging"
	"github.com/collabtext/realtime-docs/internal/protocol"
	"github.com/collabtext/realtime-docs/internal/room"
)

// RoomManager is the narrow dependency Session needs from internal/room.
type RoomManager interface {
	Room(documentID string) *room.Room
	ReleaseIfEmpty(documentID string, r *room.Room)
}

// DefaultOutboundBuffer matches kolabpad/segfal's broadcast buffer size
// default for a per-connection outbound channel.
const DefaultOutboundBuffer = 16

// Session is one authenticated connection's state, independent of whether it
// rides over a websocket, an in-process test harness, or anything else.
type Session struct {
	id       string
	userID   string
	username string
	mgr      RoomManager
	log      *logging.Logger

	out chan protocol.ServerMessage

	mu          sync.Mutex
	currentRoom *room.Room
}

func New(id, userID, username string, mgr RoomManager, log *logging.Logger, outboundBuffer int) *Session {
	if outboundBuffer <= 0 {
		outboundBuffer = DefaultOutboundBuffer
	}
	return &Session{
		id:       id,
		userID:   userID,
		username: username,
		mgr:      mgr,
		log:      log,
		out:      make(chan protocol.ServerMessage, outboundBuffer),
	}
}

func (s *Session) UserID() string   { return s.userID }
func (s *Session) Username() string { return s.username }

// Outbound is drained by the transport layer to deliver messages to the
// peer.
func (s *Session) Outbound() <-chan protocol.ServerMessage { return s.out }

// Deliver implements room.LocalSession. A full outbound channel means the
// transport is not draining fast enough; the message is dropped rather than
// blocking the room's broadcast loop, and logged so the condition is
// observable.
func (s *Session) Deliver(msg protocol.ServerMessage) {
	select {
	case s.out <- msg:
	default:
		s.log.Warnw("dropping outbound message, session send buffer full", "session", s.id, "event", msg.Event)
	}
}

// HandleRaw parses one inbound frame and dispatches it to the room manager.
func (s *Session) HandleRaw(ctx context.Context, data []byte) error {
	var msg protocol.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.Deliver(protocol.NewErrorMessage("malformed message", apperr.KindInvalidOperation.String()))
		return apperr.Wrap(apperr.KindInvalidOperation, "malformed message", err)
	}

	switch {
	case msg.JoinDocument != nil:
		return s.handleJoin(ctx, msg.JoinDocument.DocumentID)
	case msg.LeaveDocument != nil:
		s.handleLeave(ctx)
		return nil
	case msg.Operation != nil:
		return s.handleOperation(ctx, msg.Operation.Operation)
	case msg.CursorMove != nil:
		s.handleCursorMove(ctx, msg.CursorMove.Cursor)
		return nil
	default:
		s.Deliver(protocol.NewErrorMessage("unknown event: "+msg.RawEvent, apperr.KindInvalidOperation.String()))
		return apperr.New(apperr.KindInvalidOperation, "unknown event "+msg.RawEvent)
	}
}

func (s *Session) handleJoin(ctx context.Context, documentID string) error {
	s.mu.Lock()
	prev := s.currentRoom
	s.currentRoom = nil
	s.mu.Unlock()
	if prev != nil {
		prev.Leave(ctx, s)
	}

	r := s.mgr.Room(documentID)
	if err := r.Join(ctx, s); err != nil {
		s.mgr.ReleaseIfEmpty(documentID, r)
		return err
	}

	s.mu.Lock()
	s.currentRoom = r
	s.mu.Unlock()
	return nil
}

func (s *Session) handleLeave(ctx context.Context) {
	s.mu.Lock()
	r := s.currentRoom
	s.currentRoom = nil
	s.mu.Unlock()
	if r != nil {
		r.Leave(ctx, s)
	}
}

func (s *Session) handleOperation(ctx context.Context, wire protocol.WireOperation) error {
	s.mu.Lock()
	r := s.currentRoom
	s.mu.Unlock()
	if r == nil {
		s.Deliver(protocol.NewErrorMessage("no active document", apperr.KindInvalidOperation.String()))
		return apperr.New(apperr.KindInvalidOperation, "operation received before join_document")
	}

	op, err := wire.ToOperation()
	if err != nil {
		s.Deliver(protocol.NewErrorMessage(err.Error(), apperr.KindInvalidOperation.String()))
		return apperr.Wrap(apperr.KindInvalidOperation, "invalid operation shape", err)
	}
	return r.Operation(ctx, s, op)
}

func (s *Session) handleCursorMove(ctx context.Context, cursor protocol.Cursor) {
	s.mu.Lock()
	r := s.currentRoom
	s.mu.Unlock()
	if r == nil {
		return
	}
	r.CursorMove(ctx, s, cursor)
}

// Close leaves the current room, if any, and releases session state. The
// outbound channel is not closed; the transport stops draining it when its
// own context is cancelled.
func (s *Session) Close(ctx context.Context) {
	s.handleLeave(ctx)
}
