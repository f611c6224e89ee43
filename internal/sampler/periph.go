package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"olinput/internal/input"
)

var (
	periphOnce sync.Once
	periphErr  error
)

func initPeriph() error {
	periphOnce.Do(func() {
		_, periphErr = host.Init()
	})
	return periphErr
}

func periphPull(p Pull) gpio.Pull {
	switch p {
	case PullUp:
		return gpio.PullUp
	case PullDown:
		return gpio.PullDown
	case PullNone:
		return gpio.Float
	default:
		panic(fmt.Sprintf("sampler: unknown pull %d", int(p)))
	}
}

// Periph watches GPIO lines through periph.io. Each pin gets a goroutine
// blocked in WaitForEdge; Halt unblocks them on shutdown.
type Periph struct {
	cfg    GPIOConfig
	q      *Queue
	logger *slog.Logger
}

// NewPeriph creates the backend. Pins are claimed by Run.
func NewPeriph(cfg GPIOConfig, q *Queue, logger *slog.Logger) *Periph {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Periph{cfg: cfg, q: q, logger: logger}
}

func periphPin(src input.Source, pin int, pull Pull) (gpio.PinIO, error) {
	p := gpioreg.ByName(strconv.Itoa(pin))
	if p == nil {
		return nil, input.Unavailable(src, "open pin", fmt.Errorf("no gpio %d", pin))
	}
	if err := p.In(periphPull(pull), gpio.BothEdges); err != nil {
		return nil, input.Unavailable(src, "configure pin", fmt.Errorf("gpio %d: %w", pin, err))
	}
	return p, nil
}

// Run claims every pin and watches them until ctx is canceled.
func (p *Periph) Run(ctx context.Context) error {
	if err := initPeriph(); err != nil {
		return input.Unavailable(p.cfg.Source(), "init host", err)
	}

	var pins []gpio.PinIO
	halt := func() {
		for _, pin := range pins {
			pin.Halt()
		}
	}

	var wg sync.WaitGroup
	for _, l := range p.cfg.Lines {
		pin, err := periphPin(l.Source, l.Pin, l.Pull)
		if err != nil {
			halt()
			wg.Wait()
			return err
		}
		pins = append(pins, pin)
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.q.Push(input.RawSample{Source: l.Source, Channel: l.Channel, Level: l.level(bool(pin.Read()))})
			for pin.WaitForEdge(-1) {
				if ctx.Err() != nil {
					return
				}
				p.q.Push(input.RawSample{Source: l.Source, Channel: l.Channel, Level: l.level(bool(pin.Read()))})
			}
		}()
	}

	for _, enc := range p.cfg.Encoders {
		a, err := periphPin(input.SourceRotary, enc.PinA, enc.Pull)
		if err != nil {
			halt()
			wg.Wait()
			return err
		}
		pins = append(pins, a)
		b, err := periphPin(input.SourceRotary, enc.PinB, enc.Pull)
		if err != nil {
			halt()
			wg.Wait()
			return err
		}
		pins = append(pins, b)

		var mu sync.Mutex
		read := func() {
			mu.Lock()
			defer mu.Unlock()
			p.q.Push(input.RawSample{Source: input.SourceRotary, Channel: enc.Channel, Level: phase(bool(a.Read()), bool(b.Read()))})
		}
		read()
		for _, pin := range []gpio.PinIO{a, b} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for pin.WaitForEdge(-1) {
					if ctx.Err() != nil {
						return
					}
					read()
				}
			}()
		}
	}

	p.logger.Info("periph gpio started", "lines", len(p.cfg.Lines), "encoders", len(p.cfg.Encoders))
	<-ctx.Done()
	halt()
	wg.Wait()
	return nil
}
