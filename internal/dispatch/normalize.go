// Package dispatch turns decoder symbols into InputEvents, restores
// timestamp order across sources and hands events to the UI through a
// bounded queue.
package dispatch

import (
	"fmt"
	"strings"

	"olinput/internal/input"
)

// Keymap names the physical inputs. Any input without an entry gets a
// synthetic name so it can still be bound or logged.
type Keymap struct {
	// Buttons maps button channels to key names (e.g. 0 -> "KEY_OK").
	Buttons map[int]string

	// IR maps decoded remote codes to remote key names.
	IR map[uint32]string

	// Remap translates remote key names to logical keys, for remotes whose
	// labels disagree with the UI (e.g. "KEY_ENTER" -> "KEY_OK").
	Remap map[string]string

	// Electrodes maps touch electrodes to key names.
	Electrodes map[int]string

	// Encoders maps encoder channels to a name prefix; the step keys are
	// <prefix>_CW and <prefix>_CCW.
	Encoders map[int]string
}

// IRKey returns the key name of an IR code, after remapping.
func (k Keymap) IRKey(code uint32) string {
	name, ok := k.IR[code]
	if !ok {
		return fmt.Sprintf("IR_0x%08X", code)
	}
	if mapped, ok := k.Remap[name]; ok {
		return mapped
	}
	return name
}

// ButtonKey returns the key name of a button channel.
func (k Keymap) ButtonKey(ch int) string {
	if name, ok := k.Buttons[ch]; ok {
		return name
	}
	return fmt.Sprintf("BUTTON_%d", ch)
}

// ElectrodeKey returns the key name of a touch electrode.
func (k Keymap) ElectrodeKey(ch int) string {
	if name, ok := k.Electrodes[ch]; ok {
		return name
	}
	return fmt.Sprintf("PAD_%d", ch)
}

// RotaryKey returns the step key of an encoder for the given direction.
func (k Keymap) RotaryKey(ch, delta int) string {
	prefix, ok := k.Encoders[ch]
	if !ok {
		prefix = "ROTARY"
		if ch != 0 {
			prefix = fmt.Sprintf("ROTARY%d", ch)
		}
	}
	if delta < 0 {
		return prefix + "_CCW"
	}
	return prefix + "_CW"
}

// SwipeKey returns the key of a swipe direction, e.g. SWIPE_LEFT.
func SwipeKey(d input.Direction) string {
	return "SWIPE_" + strings.ToUpper(d.String())
}

// Normalizer converts symbols into InputEvents and numbers them. It is
// owned by the pipeline worker.
type Normalizer struct {
	keys    Keymap
	seq     uint64
	repeats map[uint32]int
}

// NewNormalizer creates a normalizer over a keymap.
func NewNormalizer(keys Keymap) *Normalizer {
	return &Normalizer{keys: keys, repeats: make(map[uint32]int)}
}

// Normalize maps one symbol to its InputEvent.
func (n *Normalizer) Normalize(sym input.Symbol) input.InputEvent {
	var ev input.InputEvent
	switch s := sym.(type) {
	case input.IRCode:
		ev = input.InputEvent{Source: input.SourceIR, Kind: input.KindPress, Key: n.keys.IRKey(s.Code), At: s.At}
		if s.Repeat {
			n.repeats[s.Code]++
			ev.Kind = input.KindRepeat
			ev.Repeat = n.repeats[s.Code]
		} else {
			clear(n.repeats)
		}
	case input.ButtonEdge:
		ev = input.InputEvent{Source: input.SourceButton, Kind: input.KindRelease, Key: n.keys.ButtonKey(s.Button), At: s.At}
		if s.Pressed {
			ev.Kind = input.KindPress
		}
	case input.RotaryStep:
		ev = input.InputEvent{Source: input.SourceRotary, Kind: input.KindStep, Key: n.keys.RotaryKey(s.Encoder, s.Delta), At: s.At}
		if s.Burst > 1 {
			ev.Repeat = s.Burst - 1
		}
	case input.TouchGesture:
		ev = input.InputEvent{Source: input.SourceTouch, Key: n.keys.ElectrodeKey(s.Electrode), At: s.At}
		switch s.Gesture {
		case input.GestureTap:
			ev.Kind = input.KindTap
		case input.GestureHold:
			ev.Kind = input.KindHold
			ev.Repeat = s.Repeat
		case input.GestureSwipe:
			ev.Kind = input.KindSwipe
			ev.Key = SwipeKey(s.Direction)
		default:
			panic(fmt.Sprintf("dispatch: unknown gesture %d", int(s.Gesture)))
		}
	default:
		panic(fmt.Sprintf("dispatch: unknown symbol %T", sym))
	}
	n.seq++
	ev.Seq = n.seq
	return ev
}
