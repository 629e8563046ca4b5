package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType tags a BoardEvent.
type EventType string

const (
	EventTypeDraw  EventType = "draw"
	EventTypeClear EventType = "clear"
)

// NoCursor asks for the effective history instead of a suffix of the log.
// Sequence ids start at 1, so 0 never names an accepted event.
const NoCursor uint64 = 0

// StrokeSegment is one straight line between two points in board units.
type StrokeSegment struct {
	X1    float64 `json:"x1"`
	Y1    float64 `json:"y1"`
	X2    float64 `json:"x2"`
	Y2    float64 `json:"y2"`
	Color string  `json:"color"`
	Width float64 `json:"width"`
}

// BoardEvent is either a stroke segment or a clear. The stroke fields are
// flattened into the JSON object and only present for draw events.
type BoardEvent struct {
	Type           EventType `json:"type"`
	SequenceID     uint64    `json:"sequenceId,omitempty"`
	SourceClientID string    `json:"sourceClientId,omitempty"`
	*StrokeSegment
	AcceptedAt time.Time `json:"acceptedAt,omitzero"`
}

// NewStrokeEvent builds an unsequenced draw event.
func NewStrokeEvent(seg StrokeSegment) BoardEvent {
	s := seg
	return BoardEvent{Type: EventTypeDraw, StrokeSegment: &s}
}

// NewClearEvent builds an unsequenced clear event.
func NewClearEvent() BoardEvent {
	return BoardEvent{Type: EventTypeClear}
}

// IsClear reports whether the event wipes the board.
func (e BoardEvent) IsClear() bool {
	return e.Type == EventTypeClear
}

// Clone returns a copy that shares no memory with e.
func (e BoardEvent) Clone() BoardEvent {
	if e.StrokeSegment != nil {
		s := *e.StrokeSegment
		e.StrokeSegment = &s
	}
	return e
}

// String is used in log lines.
func (e BoardEvent) String() string {
	if e.StrokeSegment != nil {
		return fmt.Sprintf("%s#%d(%g,%g->%g,%g %s %g)", e.Type, e.SequenceID,
			e.X1, e.Y1, e.X2, e.Y2, e.Color, e.Width)
	}
	return fmt.Sprintf("%s#%d", e.Type, e.SequenceID)
}

// UnmarshalJSON drops stroke fields that arrive on a clear event so that a
// clear never carries geometry.
func (e *BoardEvent) UnmarshalJSON(data []byte) error {
	type plain BoardEvent
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = BoardEvent(p)
	if e.Type == EventTypeClear {
		e.StrokeSegment = nil
	}
	return nil
}

// EffectiveHistory returns the suffix of events that starts at the latest
// clear, or all events if there is none. Folding the result over an empty
// canvas yields the same raster as folding the whole slice.
func EffectiveHistory(events []BoardEvent) []BoardEvent {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].IsClear() {
			return events[i:]
		}
	}
	return events
}
