//go:build linux

package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
	"golang.org/x/sync/errgroup"

	"olinput/internal/input"
)

// RPIO polls BCM283x GPIO registers through /dev/gpiomem. It has no edge
// detection, so lines are scanned every PollInterval; encoders need a short
// interval to keep up with fast turns.
type RPIO struct {
	cfg    GPIOConfig
	q      *Queue
	stats  *input.Stats
	logger *slog.Logger
}

// NewRPIO creates the backend. The register block is mapped by Run.
func NewRPIO(cfg GPIOConfig, q *Queue, stats *input.Stats, logger *slog.Logger) *RPIO {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Millisecond
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RPIO{cfg: cfg, q: q, stats: stats, logger: logger}
}

// The register mapping is process wide and shared by every RPIO backend.
var (
	rpioMu   sync.Mutex
	rpioRefs int
)

func openRPIO() error {
	rpioMu.Lock()
	defer rpioMu.Unlock()
	if rpioRefs == 0 {
		if err := rpio.Open(); err != nil {
			return err
		}
	}
	rpioRefs++
	return nil
}

func closeRPIO() {
	rpioMu.Lock()
	defer rpioMu.Unlock()
	rpioRefs--
	if rpioRefs == 0 {
		rpio.Close()
	}
}

func rpioInput(pin int, pull Pull) rpio.Pin {
	p := rpio.Pin(pin)
	p.Input()
	switch pull {
	case PullUp:
		p.PullUp()
	case PullDown:
		p.PullDown()
	case PullNone:
		p.PullOff()
	default:
		panic(fmt.Sprintf("sampler: unknown pull %d", int(pull)))
	}
	return p
}

type rpioLines struct {
	lines []Line
	pins  []rpio.Pin
}

func (r *rpioLines) Poll() ([]input.RawSample, error) {
	out := make([]input.RawSample, len(r.lines))
	for i, l := range r.lines {
		out[i] = input.RawSample{Channel: l.Channel, Level: l.level(r.pins[i].Read() == rpio.High)}
	}
	return out, nil
}

type rpioEncoders struct {
	encoders []Encoder
	pins     [][2]rpio.Pin
}

func (r *rpioEncoders) Poll() ([]input.RawSample, error) {
	out := make([]input.RawSample, len(r.encoders))
	for i, enc := range r.encoders {
		a, b := r.pins[i][0].Read() == rpio.High, r.pins[i][1].Read() == rpio.High
		out[i] = input.RawSample{Channel: enc.Channel, Level: phase(a, b)}
	}
	return out, nil
}

// Run maps the GPIO registers and scans until ctx is canceled. Each source
// gets its own scanner so a sample carries the right Source.
func (r *RPIO) Run(ctx context.Context) error {
	if err := openRPIO(); err != nil {
		return input.Unavailable(r.cfg.Source(), "open gpiomem", err)
	}
	defer closeRPIO()

	bySource := make(map[input.Source]*rpioLines)
	for _, l := range r.cfg.Lines {
		pl := bySource[l.Source]
		if pl == nil {
			pl = &rpioLines{}
			bySource[l.Source] = pl
		}
		pl.lines = append(pl.lines, l)
		pl.pins = append(pl.pins, rpioInput(l.Pin, l.Pull))
	}

	g, ctx := errgroup.WithContext(ctx)
	for src, pl := range bySource {
		sc := NewScanner(ScanConfig{Source: src, Interval: r.cfg.PollInterval}, pl, r.q, r.stats, r.logger)
		g.Go(func() error { return sc.Run(ctx) })
	}
	if len(r.cfg.Encoders) > 0 {
		pe := &rpioEncoders{encoders: r.cfg.Encoders}
		for _, enc := range r.cfg.Encoders {
			pe.pins = append(pe.pins, [2]rpio.Pin{rpioInput(enc.PinA, enc.Pull), rpioInput(enc.PinB, enc.Pull)})
		}
		sc := NewScanner(ScanConfig{Source: input.SourceRotary, Interval: r.cfg.PollInterval}, pe, r.q, r.stats, r.logger)
		g.Go(func() error { return sc.Run(ctx) })
	}
	r.logger.Info("rpio gpio started", "lines", len(r.cfg.Lines), "encoders", len(r.cfg.Encoders), "interval", r.cfg.PollInterval)
	return g.Wait()
}
