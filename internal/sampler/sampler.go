// Package sampler reads the physical input hardware and turns every signal
// change into a stamped input.RawSample on a bounded queue.
//
// Edge sources (GPIO lines, LIRC pulses, the terminal) run a callback or a
// reader goroutine per device that does nothing but stamp and enqueue.
// Scanned sources (the MPR121 electrode grid, polled GPIO) run a Scanner on
// their own ticker. None of them touch pipeline state.
package sampler

import (
	"context"
	"fmt"
	"time"

	"olinput/internal/input"
)

// Runner is a sample source. Run blocks until ctx is canceled or the
// source fails for good.
type Runner interface {
	Run(ctx context.Context) error
}

// Pull selects the line bias.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

func (p Pull) String() string {
	switch p {
	case PullNone:
		return "none"
	case PullUp:
		return "up"
	case PullDown:
		return "down"
	default:
		return fmt.Sprintf("pull(%d)", int(p))
	}
}

// ParsePull parses "up", "down" or "none".
func ParsePull(s string) (Pull, error) {
	switch s {
	case "up":
		return PullUp, nil
	case "down":
		return PullDown, nil
	case "none", "":
		return PullNone, nil
	}
	return PullNone, fmt.Errorf("invalid pull %q (want up, down or none)", s)
}

// Line is a digital input feeding one channel of a source.
type Line struct {
	Source  input.Source
	Channel int
	Pin     int

	// ActiveHigh reports the line as asserted when it reads high. Buttons
	// wired to ground and IR receiver modules are active low.
	ActiveHigh bool

	Pull Pull

	// Debounce is a kernel-side debounce period, if the backend has one.
	Debounce time.Duration
}

// level converts a raw pin reading into an asserted/released level.
func (l Line) level(high bool) int {
	if high == l.ActiveHigh {
		return input.High
	}
	return input.Low
}

// Encoder is a quadrature pair reported as one rotary channel.
type Encoder struct {
	Channel    int
	PinA, PinB int
	Pull       Pull
	Debounce   time.Duration
}

func phase(a, b bool) int {
	p := 0
	if a {
		p |= 0b10
	}
	if b {
		p |= 0b01
	}
	return p
}

// GPIOConfig lists the lines a GPIO backend must watch.
type GPIOConfig struct {
	// Chip names the gpiocdev character device, e.g. "gpiochip0".
	Chip string

	Lines    []Line
	Encoders []Encoder

	// PollInterval drives backends without edge detection.
	PollInterval time.Duration
}

// Empty reports whether there is nothing to watch.
func (c GPIOConfig) Empty() bool {
	return len(c.Lines) == 0 && len(c.Encoders) == 0
}

// Source is the source failures of the whole backend are reported against:
// the first line's, or rotary for an encoder-only config.
func (c GPIOConfig) Source() input.Source {
	if len(c.Lines) > 0 {
		return c.Lines[0].Source
	}
	if len(c.Encoders) > 0 {
		return input.SourceRotary
	}
	return input.SourceButton
}
