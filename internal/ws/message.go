package ws

import (
	"time"

	"github.com/shared-canvas/backend/internal/model"
)

// MessageType represents the type of WebSocket message.
type MessageType string

const (
	// Client -> Server message types. Draw and clear are also broadcast
	// back out once sequenced.
	MessageTypeDraw  MessageType = "draw"
	MessageTypeClear MessageType = "clear"
	MessageTypeAck   MessageType = "ack"
	MessageTypePing  MessageType = "ping"

	// Server -> Client message types
	MessageTypeReplay   MessageType = "replay"
	MessageTypeAccepted MessageType = "accepted"
	MessageTypeRejected MessageType = "rejected"
	MessageTypePong     MessageType = "pong"
	MessageTypeError    MessageType = "error"
)

// Message represents a WebSocket message. Draw messages carry the stroke
// fields at the top level, the same shape as a BoardEvent.
type Message struct {
	Type           MessageType `json:"type"`
	SequenceID     uint64      `json:"sequenceId,omitempty"`
	SourceClientID string      `json:"sourceClientId,omitempty"`
	*model.StrokeSegment
	AcceptedAt time.Time `json:"acceptedAt,omitzero"`

	// Replay. The board size uses its own keys so that it does not
	// collide with the stroke width.
	ClientID    string             `json:"clientId,omitempty"`
	BoardID     string             `json:"boardId,omitempty"`
	BoardWidth  int                `json:"boardWidth,omitempty"`
	BoardHeight int                `json:"boardHeight,omitempty"`
	Events      []model.BoardEvent `json:"events,omitzero"`

	Error string `json:"error,omitempty"`
}

// IsEvent reports whether the message carries a board event.
func (m *Message) IsEvent() bool {
	return m.Type == MessageTypeDraw || m.Type == MessageTypeClear
}

// Event converts a draw or clear message into a BoardEvent. Geometry on a
// clear is dropped.
func (m *Message) Event() model.BoardEvent {
	ev := model.BoardEvent{
		Type:           model.EventType(m.Type),
		SequenceID:     m.SequenceID,
		SourceClientID: m.SourceClientID,
		AcceptedAt:     m.AcceptedAt,
	}
	if m.Type == MessageTypeDraw && m.StrokeSegment != nil {
		seg := *m.StrokeSegment
		ev.StrokeSegment = &seg
	}
	return ev
}

// EventMessage wraps a board event for the wire.
func EventMessage(ev model.BoardEvent) *Message {
	ev = ev.Clone()
	return &Message{
		Type:           MessageType(ev.Type),
		SequenceID:     ev.SequenceID,
		SourceClientID: ev.SourceClientID,
		StrokeSegment:  ev.StrokeSegment,
		AcceptedAt:     ev.AcceptedAt,
	}
}

// ReplayMessage is the first message a client receives after connecting.
func ReplayMessage(clientID string, board *model.Board, events []model.BoardEvent) *Message {
	if events == nil {
		events = []model.BoardEvent{}
	}
	return &Message{
		Type:        MessageTypeReplay,
		ClientID:    clientID,
		BoardID:     board.ID,
		BoardWidth:  board.Width,
		BoardHeight: board.Height,
		Events:      events,
	}
}
