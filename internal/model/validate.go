package model

import (
	"fmt"
	"math"
)

// Bounds is the logical canvas an event must fit in. A zero MaxStrokeWidth
// means DefaultMaxStrokeWidth.
type Bounds struct {
	Width          float64
	Height         float64
	MaxStrokeWidth float64
}

// Validate checks that the event is well formed for a board with the given
// bounds. Sequence ids and sources are ignored; the hub overwrites them.
func (e BoardEvent) Validate(b Bounds) error {
	switch e.Type {
	case EventTypeClear:
		return nil
	case EventTypeDraw:
		if e.StrokeSegment == nil {
			return fmt.Errorf("%w: draw without segment", ErrMalformedEvent)
		}
		return e.StrokeSegment.Validate(b)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, e.Type)
	}
}

// Validate checks coordinates, width and color of a segment.
func (s *StrokeSegment) Validate(b Bounds) error {
	maxWidth := b.MaxStrokeWidth
	if maxWidth <= 0 {
		maxWidth = DefaultMaxStrokeWidth
	}
	for _, v := range []float64{s.X1, s.Y1, s.X2, s.Y2, s.Width} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value", ErrMalformedEvent)
		}
	}
	if !inRange(s.X1, b.Width) || !inRange(s.X2, b.Width) ||
		!inRange(s.Y1, b.Height) || !inRange(s.Y2, b.Height) {
		return fmt.Errorf("%w: coordinates outside %gx%g", ErrMalformedEvent, b.Width, b.Height)
	}
	if s.Width <= 0 || s.Width > maxWidth {
		return fmt.Errorf("%w: width %g not in (0, %g]", ErrMalformedEvent, s.Width, maxWidth)
	}
	if !ValidColor(s.Color) {
		return fmt.Errorf("%w: color %q", ErrMalformedEvent, s.Color)
	}
	return nil
}

func inRange(v, limit float64) bool {
	return v >= 0 && v <= limit
}

// ValidColor accepts #rgb and #rrggbb hex colors, the format produced by an
// HTML color input.
func ValidColor(c string) bool {
	if len(c) != 4 && len(c) != 7 {
		return false
	}
	if c[0] != '#' {
		return false
	}
	for _, r := range c[1:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
