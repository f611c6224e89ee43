package sampler

import (
	"context"
	"log/slog"
	"time"

	"olinput/internal/input"
)

// Poller reads every channel of a scanned device once. Samples may leave At
// zero; the scanner stamps them with the scan time.
type Poller interface {
	Poll() ([]input.RawSample, error)
}

// ScanConfig configures a Scanner.
type ScanConfig struct {
	Source   input.Source
	Interval time.Duration

	// Held re-sends asserted channels whose Value changed, so decoders that
	// track analog readings (touch pressure) stay current between edges.
	Held bool
}

// Scanner polls a device on a fixed interval and enqueues the channels that
// changed since the previous scan.
type Scanner struct {
	cfg     ScanConfig
	poller  Poller
	q       *Queue
	stats   *input.Stats
	logger  *slog.Logger
	last    map[int]input.RawSample
	failing bool
}

// NewScanner creates a scanner feeding q.
func NewScanner(cfg ScanConfig, p Poller, q *Queue, stats *input.Stats, logger *slog.Logger) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = 20 * time.Millisecond
	}
	if stats == nil {
		stats = new(input.Stats)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scanner{
		cfg:    cfg,
		poller: p,
		q:      q,
		stats:  stats,
		logger: logger,
		last:   make(map[int]input.RawSample),
	}
}

// Run scans until ctx is canceled. Read failures never end the loop; they
// are counted and retried on the next tick.
func (s *Scanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("scanner started", "source", s.cfg.Source.String(), "interval", s.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.Scan(now)
		}
	}
}

// Scan performs one poll.
func (s *Scanner) Scan(now time.Time) {
	samples, err := s.poller.Poll()
	if err != nil {
		s.stats.SourceUnavailable(s.cfg.Source)
		if !s.failing {
			s.logger.Warn("source read failed", "source", s.cfg.Source.String(), "err", err)
		}
		s.failing = true
		return
	}
	if s.failing {
		s.logger.Info("source recovered", "source", s.cfg.Source.String())
		s.failing = false
	}

	for _, smp := range samples {
		smp.Source = s.cfg.Source
		if smp.At.IsZero() {
			smp.At = now
		}
		prev, seen := s.last[smp.Channel]
		changed := !seen || prev.Level != smp.Level
		if !changed && s.cfg.Held && smp.Level == input.High && smp.Value != prev.Value {
			changed = true
		}
		if !changed {
			continue
		}
		// A dropped change is offered again on the next scan.
		if s.q.Push(smp) {
			s.last[smp.Channel] = smp
		}
	}
}
