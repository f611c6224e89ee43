package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"olinput/internal/config"
	"olinput/internal/input"
	"olinput/internal/sampler"
)

// source is one hardware sampler started by the daemon.
type source struct {
	name   string
	src    input.Source
	runner sampler.Runner
}

// buildSources creates the samplers for every enabled source that passed
// validation. Sources listed in skip are left out. Every GPIO source gets
// its own runner, so a line that cannot be requested only stops that source.
func buildSources(cfg *config.Config, skip map[input.Source]error, q *sampler.Queue, stats *input.Stats, logger *slog.Logger) []source {
	var out []source

	for _, src := range []input.Source{input.SourceButton, input.SourceIR, input.SourceRotary} {
		gpio := cfg.GPIOConfig(src, skip)
		if gpio.Empty() {
			continue
		}
		out = append(out, source{
			name:   "gpio/" + src.String(),
			src:    src,
			runner: newGPIORunner(cfg.GPIO.Backend, gpio, q, stats, logger.With("source", src.String(), "backend", cfg.GPIO.Backend)),
		})
	}

	if cfg.IR.Enabled && cfg.IR.Backend == config.IRBackendLIRC && skip[input.SourceIR] == nil {
		out = append(out, source{
			name:   "lirc",
			src:    input.SourceIR,
			runner: sampler.NewLIRC(cfg.IR.Device, 0, q, logger.With("source", "ir", "device", cfg.IR.Device)),
		})
	}

	if cfg.Touch.Enabled && skip[input.SourceTouch] == nil {
		out = append(out, source{
			name: "mpr121",
			src:  input.SourceTouch,
			runner: &touchRunner{
				bus:      cfg.Touch.I2CBus,
				addr:     uint16(cfg.Touch.I2CAddress),
				chip:     cfg.MPR121Config(),
				interval: cfg.ScanInterval(),
				q:        q,
				stats:    stats,
				logger:   logger.With("source", "touch"),
			},
		})
	}

	if cfg.Terminal.Enabled {
		out = append(out, source{
			name: "terminal",
			src:  input.SourceButton,
			runner: sampler.NewTerminal(cfg.Terminal.Device, cfg.TerminalKeys(),
				time.Duration(cfg.Terminal.ReleaseMS)*time.Millisecond, q, logger.With("source", "terminal")),
		})
	}

	return out
}

// newGPIORunner picks the sampler for the configured GPIO backend.
func newGPIORunner(backend string, gpio sampler.GPIOConfig, q *sampler.Queue, stats *input.Stats, logger *slog.Logger) sampler.Runner {
	switch backend {
	case config.BackendPeriph:
		return sampler.NewPeriph(gpio, q, logger)
	case config.BackendRPIO:
		return sampler.NewRPIO(gpio, q, stats, logger)
	default:
		return sampler.NewGPIOCdev(gpio, q, logger)
	}
}

// touchRunner opens the MPR121 and scans it until ctx ends.
type touchRunner struct {
	bus      string
	addr     uint16
	chip     sampler.MPR121Config
	interval time.Duration
	q        *sampler.Queue
	stats    *input.Stats
	logger   *slog.Logger
}

func (t *touchRunner) Run(ctx context.Context) error {
	dev, closer, err := sampler.OpenMPR121(t.bus, t.addr, t.chip)
	if err != nil {
		return err
	}
	defer closer.Close()

	t.logger.Info("mpr121 ready", "bus", t.bus, "addr", fmt.Sprintf("0x%02x", t.addr), "electrodes", len(t.chip.Electrodes))
	scan := sampler.NewScanner(sampler.ScanConfig{
		Source:   input.SourceTouch,
		Interval: t.interval,
		Held:     true,
	}, dev, t.q, t.stats, t.logger)
	return scan.Run(ctx)
}

// supervisor restarts a failed source with capped exponential backoff so
// one broken device never stops the others.
type supervisor struct {
	stats      *input.Stats
	logger     *slog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

func newSupervisor(stats *input.Stats, logger *slog.Logger) *supervisor {
	return &supervisor{
		stats:      stats,
		logger:     logger,
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}
}

// run keeps s running until ctx ends. A configuration error stops the
// source for good; any other failure is counted and retried.
func (sv *supervisor) run(ctx context.Context, s source) error {
	backoff := sv.minBackoff
	for {
		sv.logger.Info("source starting", "source", s.name)
		started := time.Now()
		err := s.runner.Run(ctx)
		if ctx.Err() != nil {
			sv.logger.Info("source stopped", "source", s.name)
			return nil
		}
		if errors.Is(err, input.ErrConfiguration) {
			sv.logger.Error("source disabled", "source", s.name, "error", err)
			return nil
		}

		src := s.src
		var se *input.SourceError
		if errors.As(err, &se) {
			src = se.Source
		}
		sv.stats.SourceUnavailable(src)

		// A source that ran for a while before failing starts over with a
		// short delay.
		if time.Since(started) > sv.maxBackoff {
			backoff = sv.minBackoff
		}
		sv.logger.Warn("source failed, retrying", "source", s.name, "error", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, sv.maxBackoff)
	}
}
