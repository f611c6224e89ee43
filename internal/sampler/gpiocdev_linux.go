//go:build linux

package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"

	"olinput/internal/input"
)

const gpioConsumer = "olinput"

// monoClock maps kernel CLOCK_MONOTONIC event timestamps onto wall time.
type monoClock struct {
	wall time.Time
	mono time.Duration
}

func newMonoClock() (monoClock, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return monoClock{}, fmt.Errorf("clock_gettime: %w", err)
	}
	return monoClock{wall: time.Now(), mono: time.Duration(ts.Nano())}, nil
}

func (c monoClock) at(ts time.Duration) time.Time {
	return c.wall.Add(ts - c.mono)
}

func cdevOptions(pull Pull, debounce time.Duration, h gpiocdev.EventHandler) []gpiocdev.LineReqOption {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithConsumer(gpioConsumer),
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(h),
	}
	switch pull {
	case PullUp:
		opts = append(opts, gpiocdev.WithPullUp)
	case PullDown:
		opts = append(opts, gpiocdev.WithPullDown)
	case PullNone:
		opts = append(opts, gpiocdev.WithBiasDisabled)
	default:
		panic(fmt.Sprintf("sampler: unknown pull %d", int(pull)))
	}
	if debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(debounce))
	}
	return opts
}

// GPIOCdev watches GPIO lines through the kernel character device. Line
// events carry kernel timestamps, so samples are stamped at the edge rather
// than when the handler runs.
type GPIOCdev struct {
	cfg    GPIOConfig
	q      *Queue
	logger *slog.Logger
}

// NewGPIOCdev creates the backend. Lines are requested by Run.
func NewGPIOCdev(cfg GPIOConfig, q *Queue, logger *slog.Logger) *GPIOCdev {
	if cfg.Chip == "" {
		cfg.Chip = "gpiochip0"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &GPIOCdev{cfg: cfg, q: q, logger: logger}
}

type cdevEncoder struct {
	mu         sync.Mutex
	a, b       bool
	pinA, pinB int
}

// Run requests every line and holds them until ctx is canceled.
func (g *GPIOCdev) Run(ctx context.Context) error {
	clock, err := newMonoClock()
	if err != nil {
		return input.Unavailable(g.cfg.Source(), "init clock", err)
	}

	var held []*gpiocdev.Line
	release := func() {
		for _, l := range held {
			l.Close()
		}
	}

	for _, line := range g.cfg.Lines {
		handler := func(evt gpiocdev.LineEvent) {
			var high bool
			switch evt.Type {
			case gpiocdev.LineEventRisingEdge:
				high = true
			case gpiocdev.LineEventFallingEdge:
			default:
				return
			}
			g.q.Push(input.RawSample{
				Source:  line.Source,
				Channel: line.Channel,
				Level:   line.level(high),
				At:      clock.at(evt.Timestamp),
			})
		}
		l, err := gpiocdev.RequestLine(g.cfg.Chip, line.Pin, cdevOptions(line.Pull, line.Debounce, handler)...)
		if err != nil {
			release()
			return input.Unavailable(line.Source, "request line", fmt.Errorf("%s:%d: %w", g.cfg.Chip, line.Pin, err))
		}
		held = append(held, l)
		if v, err := l.Value(); err == nil {
			g.q.Push(input.RawSample{Source: line.Source, Channel: line.Channel, Level: line.level(v == 1)})
		}
	}

	for _, enc := range g.cfg.Encoders {
		st := &cdevEncoder{pinA: enc.PinA, pinB: enc.PinB}
		handler := func(evt gpiocdev.LineEvent) {
			var high bool
			switch evt.Type {
			case gpiocdev.LineEventRisingEdge:
				high = true
			case gpiocdev.LineEventFallingEdge:
			default:
				return
			}
			st.mu.Lock()
			defer st.mu.Unlock()
			switch evt.Offset {
			case st.pinA:
				st.a = high
			case st.pinB:
				st.b = high
			default:
				return
			}
			g.q.Push(input.RawSample{
				Source:  input.SourceRotary,
				Channel: enc.Channel,
				Level:   phase(st.a, st.b),
				At:      clock.at(evt.Timestamp),
			})
		}
		for _, pin := range []int{enc.PinA, enc.PinB} {
			l, err := gpiocdev.RequestLine(g.cfg.Chip, pin, cdevOptions(enc.Pull, enc.Debounce, handler)...)
			if err != nil {
				release()
				return input.Unavailable(input.SourceRotary, "request line", fmt.Errorf("%s:%d: %w", g.cfg.Chip, pin, err))
			}
			held = append(held, l)
			v, err := l.Value()
			if err != nil {
				continue
			}
			st.mu.Lock()
			if pin == enc.PinA {
				st.a = v == 1
			} else {
				st.b = v == 1
			}
			st.mu.Unlock()
		}
		st.mu.Lock()
		g.q.Push(input.RawSample{Source: input.SourceRotary, Channel: enc.Channel, Level: phase(st.a, st.b)})
		st.mu.Unlock()
	}

	g.logger.Info("gpiocdev started", "chip", g.cfg.Chip, "lines", len(g.cfg.Lines), "encoders", len(g.cfg.Encoders))
	<-ctx.Done()
	release()
	return nil
}
