// Package protocol defines the client<->session wire protocol (spec.md §4.4,
// §6): every message is {event, ...payload}. Inbound and outbound events are
// each a sum type, grounded on shiv248-kolabpad/internal/protocol/messages.go's
// tagged-union (un)marshaling pattern and generalized to spec.md's event set.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/collabtext/realtime-docs/internal/document"
	"github.com/collabtext/realtime-docs/internal/ot"
)

// Inbound event names.
const (
	EventJoinDocument  = "join_document"
	EventLeaveDocument = "leave_document"
	EventOperation     = "operation"
	EventCursorMove    = "cursor_move"
)

// Outbound event names.
const (
	EventDocumentState = "document_state"
	EventOperationAck  = "operation_ack"
	EventRemoteOp      = "remote_operation"
	EventUserJoined    = "user_joined"
	EventUserLeft      = "user_left"
	EventCursorMoved   = "cursor_moved"
	EventErrorMessage  = "error_message"
)

// Cursor is an opaque cursor/selection payload the core passes through
// untouched, carried as a raw JSON value rather than a fixed struct since
// clients are free to shape it however their editor widget needs.
type Cursor = json.RawMessage

// WireOperation is the JSON shape of an Operation on the wire.
type WireOperation struct {
	Type        string `json:"type"` // "insert" | "delete" | "noop"
	Position    uint32 `json:"position"`
	Text        string `json:"text,omitempty"`
	Length      uint32 `json:"length,omitempty"`
	BaseVersion uint64 `json:"baseVersion"`
}

func ToWire(op ot.Operation) WireOperation {
	w := WireOperation{Position: op.Position, BaseVersion: op.BaseVersion}
	switch op.Kind {
	case ot.KindInsert:
		w.Type = "insert"
		w.Text = op.Text
	case ot.KindDelete:
		w.Type = "delete"
		w.Length = op.Length
	default:
		w.Type = "noop"
	}
	return w
}

func (w WireOperation) ToOperation() (ot.Operation, error) {
	switch w.Type {
	case "insert":
		return ot.NewInsert(w.Position, w.Text, w.BaseVersion), nil
	case "delete":
		return ot.NewDelete(w.Position, w.Length, w.BaseVersion), nil
	case "noop", "":
		return ot.Noop(), nil
	default:
		return ot.Operation{}, fmt.Errorf("unknown operation type %q", w.Type)
	}
}

// ClientMessage is the tagged union of inbound events.
type ClientMessage struct {
	JoinDocument  *JoinDocumentPayload  `json:"-"`
	LeaveDocument *LeaveDocumentPayload `json:"-"`
	Operation     *OperationPayload     `json:"-"`
	CursorMove    *CursorMovePayload    `json:"-"`

	// RawEvent is populated whenever Event names something this union does
	// not recognize, so the session layer can produce InvalidOperation
	// instead of silently ignoring an unknown event name (the "Dynamic
	// message dispatch" design note).
	RawEvent string `json:"-"`
}

type JoinDocumentPayload struct {
	DocumentID string `json:"documentId"`
}

type LeaveDocumentPayload struct{}

type OperationPayload struct {
	Operation WireOperation `json:"operation"`
}

type CursorMovePayload struct {
	Cursor Cursor `json:"cursor"`
}

func (m *ClientMessage) UnmarshalJSON(data []byte) error {
	var probe struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	switch probe.Event {
	case EventJoinDocument:
		var p JoinDocumentPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		m.JoinDocument = &p
	case EventLeaveDocument:
		m.LeaveDocument = &LeaveDocumentPayload{}
	case EventOperation:
		var p OperationPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		m.Operation = &p
	case EventCursorMove:
		var p CursorMovePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		m.CursorMove = &p
	default:
		m.RawEvent = probe.Event
	}
	return nil
}

// ServerMessage is the tagged union of outbound events; MarshalJSON emits
// exactly one event's fields alongside its "event" discriminator.
type ServerMessage struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"-"`
}

func (m ServerMessage) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	eventJSON, err := json.Marshal(m.Event)
	if err != nil {
		return nil, err
	}
	fields["event"] = eventJSON
	return json.Marshal(fields)
}

// Outbound payload shapes.

type ActiveUser struct {
	UserID   string        `json:"userId"`
	Username string        `json:"username"`
	Role     document.Role `json:"role"`
	Cursor   Cursor        `json:"cursor,omitempty"`
}

type DocumentStatePayload struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Content     string        `json:"content"`
	Version     uint64        `json:"version"`
	Owner       string        `json:"owner"`
	Role        document.Role `json:"role"`
	ActiveUsers []ActiveUser  `json:"activeUsers"`
}

type OperationAckPayload struct {
	Operation WireOperation `json:"operation"`
	Version   uint64        `json:"version"`
	UserID    string        `json:"userId"`
}

type RemoteOperationPayload struct {
	Operation WireOperation `json:"operation"`
	Version   uint64        `json:"version"`
	UserID    string        `json:"userId"`
	Username  string        `json:"username"`
}

type UserJoinedPayload struct {
	UserID   string        `json:"userId"`
	Username string        `json:"username"`
	Role     document.Role `json:"role"`
}

type UserLeftPayload struct {
	UserID string `json:"userId"`
}

type CursorMovedPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Cursor   Cursor `json:"cursor"`
}

type ErrorMessagePayload struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

func NewDocumentState(p DocumentStatePayload) ServerMessage {
	return ServerMessage{Event: EventDocumentState, Payload: p}
}
func NewOperationAck(p OperationAckPayload) ServerMessage {
	return ServerMessage{Event: EventOperationAck, Payload: p}
}
func NewRemoteOperation(p RemoteOperationPayload) ServerMessage {
	return ServerMessage{Event: EventRemoteOp, Payload: p}
}
func NewUserJoined(p UserJoinedPayload) ServerMessage {
	return ServerMessage{Event: EventUserJoined, Payload: p}
}
func NewUserLeft(p UserLeftPayload) ServerMessage {
	return ServerMessage{Event: EventUserLeft, Payload: p}
}
func NewCursorMoved(p CursorMovedPayload) ServerMessage {
	return ServerMessage{Event: EventCursorMoved, Payload: p}
}
func NewErrorMessage(message, kind string) ServerMessage {
	return ServerMessage{Event: EventErrorMessage, Payload: ErrorMessagePayload{Message: message, Kind: kind}}
}
