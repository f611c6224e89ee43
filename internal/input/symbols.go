package input

import (
	"fmt"
	"time"
)

// Symbol is the output of a decoder. The set of implementations is closed;
// consumers switch over the concrete types.
type Symbol interface {
	symbolMarker()
	Time() time.Time
}

// IRCode is a decoded remote-control frame.
type IRCode struct {
	Code   uint32
	Repeat bool
	At     time.Time
}

func (IRCode) symbolMarker()     {}
func (s IRCode) Time() time.Time { return s.At }

// RotaryStep is one encoder step (+1 clockwise, -1 counter-clockwise).
// Burst counts the same-direction steps seen within the velocity window,
// including this one; 1 means the knob is turning slowly.
type RotaryStep struct {
	Encoder int
	Delta   int
	Burst   int
	At      time.Time
}

func (RotaryStep) symbolMarker()     {}
func (s RotaryStep) Time() time.Time { return s.At }

// ButtonEdge is a debounced press or release of a discrete button.
type ButtonEdge struct {
	Button  int
	Pressed bool
	At      time.Time
}

func (ButtonEdge) symbolMarker()     {}
func (s ButtonEdge) Time() time.Time { return s.At }

// Gesture is the class of a completed (or held) touch contact.
type Gesture int

const (
	GestureTap Gesture = iota
	GestureHold
	GestureSwipe
)

func (g Gesture) String() string {
	switch g {
	case GestureTap:
		return "tap"
	case GestureHold:
		return "hold"
	case GestureSwipe:
		return "swipe"
	default:
		return fmt.Sprintf("gesture(%d)", int(g))
	}
}

// Direction of a swipe in screen coordinates (y grows downwards).
type Direction int

const (
	DirNone Direction = iota
	DirUp
	DirDown
	DirLeft
	DirRight
)

func (d Direction) String() string {
	switch d {
	case DirUp:
		return "up"
	case DirDown:
		return "down"
	case DirLeft:
		return "left"
	case DirRight:
		return "right"
	default:
		return "none"
	}
}

// TouchGesture is a classified touch contact. Electrode is the electrode that
// carried the most pressure when the contact began.
type TouchGesture struct {
	Gesture   Gesture
	Electrode int
	Direction Direction
	// Repeat counts Hold emissions within one contact, starting at 0.
	Repeat int
	At     time.Time
}

func (TouchGesture) symbolMarker()     {}
func (s TouchGesture) Time() time.Time { return s.At }
