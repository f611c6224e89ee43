package decoder

import (
	"math"
	"time"

	"olinput/internal/input"
)

// RotaryConfig tunes the quadrature decoder.
type RotaryConfig struct {
	// Divider is the number of valid quarter-cycles per emitted step.
	// Values below 1 mean 1.
	Divider int

	// Invert swaps clockwise and counter-clockwise.
	Invert bool

	// VelocityWindow is the time window over which same-direction steps
	// are counted into RotaryStep.Burst. Zero disables burst counting.
	VelocityWindow time.Duration
}

// quadTable maps prev<<2|cur to a quarter-cycle delta. Gray order for
// clockwise rotation is 00 -> 01 -> 11 -> 10 -> 00.
var quadTable = [16]int8{
	0b0000: 0, 0b0001: +1, 0b0010: -1, 0b0011: invalidStep,
	0b0100: -1, 0b0101: 0, 0b0110: invalidStep, 0b0111: +1,
	0b1000: +1, 0b1001: invalidStep, 0b1010: 0, 0b1011: -1,
	0b1100: invalidStep, 0b1101: -1, 0b1110: +1, 0b1111: 0,
}

const invalidStep = 2

type rotaryStep struct {
	at        time.Time
	direction int
}

type encoder struct {
	acc    int
	misses uint32
	recent []rotaryStep
}

// Rotary decodes debounced quadrature phase edges into steps.
type Rotary struct {
	cfg      RotaryConfig
	stats    *input.Stats
	encoders map[int]*encoder
}

// NewRotary creates a quadrature decoder.
func NewRotary(cfg RotaryConfig, stats *input.Stats) *Rotary {
	if cfg.Divider < 1 {
		cfg.Divider = 1
	}
	if stats == nil {
		stats = new(input.Stats)
	}
	return &Rotary{cfg: cfg, stats: stats, encoders: make(map[int]*encoder)}
}

func (r *Rotary) encoder(ch int) *encoder {
	enc := r.encoders[ch]
	if enc == nil {
		enc = &encoder{recent: make([]rotaryStep, 0, 16)}
		r.encoders[ch] = enc
	}
	return enc
}

// Offer consumes one phase transition. It returns a step when the
// accumulated quarter-cycles reach the divider.
func (r *Rotary) Offer(e input.Edge) (input.RotaryStep, bool) {
	enc := r.encoder(e.Channel)
	d := quadTable[(e.Prev&0b11)<<2|(e.Level&0b11)]
	switch d {
	case 0:
		return input.RotaryStep{}, false
	case invalidStep:
		// Both lines changed between reads; the direction is unknowable.
		if enc.misses < math.MaxUint32 {
			enc.misses++
		}
		r.stats.RotaryMisses.Add(1)
		return input.RotaryStep{}, false
	}

	delta := int(d)
	if r.cfg.Invert {
		delta = -delta
	}
	if enc.acc != 0 && (enc.acc > 0) != (delta > 0) {
		enc.acc = 0
	}
	enc.acc += delta
	if enc.acc > -r.cfg.Divider && enc.acc < r.cfg.Divider {
		return input.RotaryStep{}, false
	}
	enc.acc = 0

	return input.RotaryStep{
		Encoder: e.Channel,
		Delta:   delta,
		Burst:   enc.addStep(delta, e.At, r.cfg.VelocityWindow),
		At:      e.At,
	}, true
}

// addStep records a step and returns the count of recent steps in the same
// direction within window.
func (enc *encoder) addStep(direction int, at time.Time, window time.Duration) int {
	if window <= 0 {
		return 1
	}
	cutoff := at.Add(-window)

	filtered := enc.recent[:0]
	for _, s := range enc.recent {
		if s.at.After(cutoff) {
			filtered = append(filtered, s)
		}
	}
	filtered = append(filtered, rotaryStep{at: at, direction: direction})
	enc.recent = filtered

	sameDir := 0
	for _, s := range filtered {
		if s.direction == direction {
			sameDir++
		}
	}
	return sameDir
}

// Misses returns the saturating count of invalid transitions seen on one
// encoder.
func (r *Rotary) Misses(ch int) uint32 {
	if enc := r.encoders[ch]; enc != nil {
		return enc.misses
	}
	return 0
}

// Reset clears accumulators and velocity history; miss counters persist.
func (r *Rotary) Reset() {
	for _, enc := range r.encoders {
		enc.acc = 0
		enc.recent = enc.recent[:0]
	}
}
