// Package decoder converts debounced edges into source-specific symbols:
// IR codes, rotary steps, button edges and touch gestures.
package decoder

import (
	"fmt"
	"time"

	"olinput/internal/input"
)

// Config bundles the per-source decoder settings.
type Config struct {
	IR     IRTiming
	Rotary RotaryConfig
	Touch  TouchConfig
}

// Set owns one decoder per source and routes edges by Source.
type Set struct {
	IR     *IR
	Rotary *Rotary
	Button *Button
	Touch  *Touch
}

// NewSet creates every decoder.
func NewSet(cfg Config, stats *input.Stats) *Set {
	if stats == nil {
		stats = new(input.Stats)
	}
	return &Set{
		IR:     NewIR(cfg.IR, stats),
		Rotary: NewRotary(cfg.Rotary, stats),
		Button: NewButton(),
		Touch:  NewTouch(cfg.Touch, stats),
	}
}

// Decode routes one edge to the decoder of its source.
func (s *Set) Decode(e input.Edge) []input.Symbol {
	switch e.Source {
	case input.SourceIR:
		if code, ok := s.IR.Offer(e); ok {
			return []input.Symbol{code}
		}
	case input.SourceButton:
		return []input.Symbol{s.Button.Offer(e)}
	case input.SourceRotary:
		if step, ok := s.Rotary.Offer(e); ok {
			return []input.Symbol{step}
		}
	case input.SourceTouch:
		gestures := s.Touch.Offer(e)
		out := make([]input.Symbol, 0, len(gestures))
		for _, g := range gestures {
			out = append(out, g)
		}
		return out
	default:
		panic(fmt.Sprintf("decoder: unknown source %d", int(e.Source)))
	}
	return nil
}

// Observe passes a raw sample to decoders that track analog state between
// edges. Only touch pressure is tracked today.
func (s *Set) Observe(r input.RawSample) {
	if r.Source == input.SourceTouch {
		s.Touch.UpdatePressure(r)
	}
}

// Advance runs time-driven decoder work: stale IR frames are discarded and
// due touch holds are emitted.
func (s *Set) Advance(now time.Time) []input.Symbol {
	s.IR.Advance(now)
	gestures := s.Touch.Advance(now)
	if len(gestures) == 0 {
		return nil
	}
	out := make([]input.Symbol, 0, len(gestures))
	for _, g := range gestures {
		out = append(out, g)
	}
	return out
}

// NextDeadline returns the earliest time Advance has work to do.
func (s *Set) NextDeadline() (time.Time, bool) {
	return earliest(s.IR.NextDeadline, s.Touch.NextDeadline)
}

// Reset clears all decoder state.
func (s *Set) Reset() {
	s.IR.Reset()
	s.Rotary.Reset()
	s.Touch.Reset()
}

func earliest(fns ...func() (time.Time, bool)) (time.Time, bool) {
	var next time.Time
	found := false
	for _, fn := range fns {
		at, ok := fn()
		if ok && (!found || at.Before(next)) {
			next = at
			found = true
		}
	}
	return next, found
}
