// Package input holds the data model shared by every stage of the input
// pipeline: physical sources, raw samples, debounced edges, decoder symbols
// and the unified InputEvent handed to the router.
package input

import (
	"fmt"
	"time"
)

// Source identifies the physical origin of a sample. The set is closed; every
// switch over Source must handle all four values.
type Source int

const (
	SourceIR Source = iota
	SourceButton
	SourceRotary
	SourceTouch

	numSources
)

// Sources lists every Source in declaration order.
func Sources() []Source {
	return []Source{SourceIR, SourceButton, SourceRotary, SourceTouch}
}

func (s Source) String() string {
	switch s {
	case SourceIR:
		return "ir"
	case SourceButton:
		return "button"
	case SourceRotary:
		return "rotary"
	case SourceTouch:
		return "touch"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// Valid reports whether s is one of the declared sources.
func (s Source) Valid() bool {
	return s >= SourceIR && s < numSources
}

// Digital line levels.
const (
	Low  = 0
	High = 1
)

// RawSample is an instantaneous reading of one channel.
//
// Level is 0/1 for digital lines (1 = asserted: pressed, IR mark, touched).
// Rotary encoders report the quadrature phase A<<1|B as a single sample per
// read. Value carries the analog reading for touch electrodes.
type RawSample struct {
	Source  Source
	Channel int
	Level   int
	Value   int
	At      time.Time
}

// Key returns the (source, channel) pair owning this sample.
func (s RawSample) Key() ChannelKey {
	return ChannelKey{Source: s.Source, Channel: s.Channel}
}

// ChannelKey addresses one physical channel.
type ChannelKey struct {
	Source  Source
	Channel int
}

func (k ChannelKey) String() string {
	return fmt.Sprintf("%s/%d", k.Source, k.Channel)
}

// Edge is a debounced, committed level transition from Prev to Level.
// At is the commit time: candidate start plus the debounce window.
type Edge struct {
	Source  Source
	Channel int
	Prev    int
	Level   int
	Value   int
	At      time.Time
}

// Kind classifies an InputEvent.
type Kind int

const (
	KindPress Kind = iota
	KindRelease
	KindRepeat
	KindStep
	KindTap
	KindHold
	KindSwipe
)

func (k Kind) String() string {
	switch k {
	case KindPress:
		return "press"
	case KindRelease:
		return "release"
	case KindRepeat:
		return "repeat"
	case KindStep:
		return "step"
	case KindTap:
		return "tap"
	case KindHold:
		return "hold"
	case KindSwipe:
		return "swipe"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText lets Kind appear by name in JSON payloads.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// MarshalText lets Source appear by name in JSON payloads.
func (s Source) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// InputEvent is the only record crossing into the router and UI.
// Events leave the dispatcher in non-decreasing At order.
type InputEvent struct {
	Seq    uint64    `json:"seq"`
	Source Source    `json:"source"`
	Kind   Kind      `json:"kind"`
	Key    string    `json:"key"`
	At     time.Time `json:"at"`
	Repeat int       `json:"repeat,omitempty"`
}

func (e InputEvent) String() string {
	if e.Repeat > 0 {
		return fmt.Sprintf("%s %s %s #%d", e.Source, e.Kind, e.Key, e.Repeat)
	}
	return fmt.Sprintf("%s %s %s", e.Source, e.Kind, e.Key)
}
