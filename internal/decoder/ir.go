package decoder

import (
	"time"

	"olinput/internal/input"
)

// IRTiming is a pulse-distance protocol timing table. Marks are the
// asserted (carrier present) periods, spaces the gaps between them.
type IRTiming struct {
	LeaderMark  time.Duration
	LeaderSpace time.Duration
	RepeatSpace time.Duration
	BitMark     time.Duration
	ZeroSpace   time.Duration
	OneSpace    time.Duration
	Bits        int

	// Tolerance is the accepted deviation from each nominal duration, in
	// percent.
	Tolerance int

	// CheckInverse requires the top byte to be the complement of the byte
	// below it (the command byte of NEC frames).
	CheckInverse bool

	// RepeatTimeout bounds the gap between a frame (or previous repeat)
	// and a repeat frame that still refers to it.
	RepeatTimeout time.Duration

	// FrameTimeout discards a partial frame when no edge arrives for this
	// long.
	FrameTimeout time.Duration
}

// NECTiming returns the standard NEC timing table.
func NECTiming() IRTiming {
	return IRTiming{
		LeaderMark:    9000 * time.Microsecond,
		LeaderSpace:   4500 * time.Microsecond,
		RepeatSpace:   2250 * time.Microsecond,
		BitMark:       562 * time.Microsecond,
		ZeroSpace:     562 * time.Microsecond,
		OneSpace:      1687 * time.Microsecond,
		Bits:          32,
		Tolerance:     25,
		CheckInverse:  true,
		RepeatTimeout: 150 * time.Millisecond,
		FrameTimeout:  20 * time.Millisecond,
	}
}

type irState int

const (
	irIdle irState = iota
	irLeaderSpace
	irBitMark
	irBitSpace
	irStopMark
	irRepeatStop
)

type irChannel struct {
	state    irState
	seen     bool
	lastEdge time.Time

	bits int
	code uint32

	lastCode  uint32
	lastValid bool
	lastFrame time.Time
}

// IR decodes debounced receiver edges into remote-control codes. Frames
// that fail any timing or integrity check are counted and discarded;
// nothing is ever guessed.
type IR struct {
	timing   IRTiming
	stats    *input.Stats
	channels map[int]*irChannel
}

// NewIR creates an IR decoder for the given timing table.
func NewIR(timing IRTiming, stats *input.Stats) *IR {
	if stats == nil {
		stats = new(input.Stats)
	}
	return &IR{timing: timing, stats: stats, channels: make(map[int]*irChannel)}
}

func (d *IR) match(got, want time.Duration) bool {
	tol := want * time.Duration(d.timing.Tolerance) / 100
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	return diff <= tol
}

func (d *IR) malformed(ch *irChannel) {
	d.stats.MalformedFrames.Add(1)
	ch.state = irIdle
	ch.bits = 0
	ch.code = 0
}

// Offer consumes one receiver edge. The period that just ended is a mark
// when the line falls and a space when it rises.
func (d *IR) Offer(e input.Edge) (input.IRCode, bool) {
	ch := d.channels[e.Channel]
	if ch == nil {
		ch = &irChannel{}
		d.channels[e.Channel] = ch
	}
	if !ch.seen {
		ch.seen = true
		ch.lastEdge = e.At
		return input.IRCode{}, false
	}
	dur := e.At.Sub(ch.lastEdge)
	ch.lastEdge = e.At
	mark := e.Level == input.Low

	switch ch.state {
	case irIdle:
		// Anything but a leader mark is line noise between frames.
		if mark && d.match(dur, d.timing.LeaderMark) {
			ch.state = irLeaderSpace
		}

	case irLeaderSpace:
		switch {
		case mark:
			d.malformed(ch)
		case d.match(dur, d.timing.LeaderSpace):
			ch.state = irBitMark
			ch.bits = 0
			ch.code = 0
		case d.match(dur, d.timing.RepeatSpace):
			ch.state = irRepeatStop
		default:
			d.malformed(ch)
		}

	case irBitMark:
		if !mark || !d.match(dur, d.timing.BitMark) {
			d.malformed(ch)
			break
		}
		ch.state = irBitSpace

	case irBitSpace:
		if mark {
			d.malformed(ch)
			break
		}
		switch {
		case d.match(dur, d.timing.OneSpace):
			ch.code |= 1 << uint(ch.bits)
		case d.match(dur, d.timing.ZeroSpace):
		default:
			d.malformed(ch)
			return input.IRCode{}, false
		}
		ch.bits++
		if ch.bits == d.timing.Bits {
			ch.state = irStopMark
		} else {
			ch.state = irBitMark
		}

	case irStopMark:
		if !mark || !d.match(dur, d.timing.BitMark) {
			d.malformed(ch)
			break
		}
		code := ch.code
		ch.state = irIdle
		if d.timing.CheckInverse && !inverseOK(code, d.timing.Bits) {
			d.stats.MalformedFrames.Add(1)
			ch.lastValid = false
			return input.IRCode{}, false
		}
		ch.lastCode = code
		ch.lastValid = true
		ch.lastFrame = e.At
		return input.IRCode{Code: code, At: e.At}, true

	case irRepeatStop:
		if !mark || !d.match(dur, d.timing.BitMark) {
			d.malformed(ch)
			break
		}
		ch.state = irIdle
		if !ch.lastValid || e.At.Sub(ch.lastFrame) > d.timing.RepeatTimeout {
			// A repeat that refers to no recent frame.
			ch.lastValid = false
			d.stats.MalformedFrames.Add(1)
			return input.IRCode{}, false
		}
		ch.lastFrame = e.At
		return input.IRCode{Code: ch.lastCode, Repeat: true, At: e.At}, true
	}
	return input.IRCode{}, false
}

// inverseOK checks that the top byte of a frame complements the byte below.
func inverseOK(code uint32, bits int) bool {
	if bits < 16 {
		return true
	}
	hi := byte(code >> uint(bits-8))
	lo := byte(code >> uint(bits-16))
	return hi == ^lo
}

// Advance discards partial frames whose next edge is overdue.
func (d *IR) Advance(now time.Time) {
	for _, ch := range d.channels {
		if ch.state != irIdle && now.Sub(ch.lastEdge) > d.timing.FrameTimeout {
			d.malformed(ch)
		}
	}
}

// NextDeadline returns when the earliest partial frame goes stale.
func (d *IR) NextDeadline() (time.Time, bool) {
	var next time.Time
	found := false
	for _, ch := range d.channels {
		if ch.state == irIdle {
			continue
		}
		at := ch.lastEdge.Add(d.timing.FrameTimeout + time.Nanosecond)
		if !found || at.Before(next) {
			next = at
			found = true
		}
	}
	return next, found
}

// Reset drops partial frames and repeat history.
func (d *IR) Reset() {
	d.channels = make(map[int]*irChannel)
}
