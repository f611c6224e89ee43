// Package pipeline runs the single input worker: raw samples in, ordered
// InputEvents out.
//
// The worker owns every piece of mutable pipeline state (debounce bank,
// decoders, normalizer, reorder buffer), so none of it needs locks. It is
// fed through a bounded channel by edge callbacks and scan loops, and it
// feeds the UI through a dispatch.Queue.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"olinput/internal/debounce"
	"olinput/internal/decoder"
	"olinput/internal/dispatch"
	"olinput/internal/input"
)

// Config is the immutable pipeline configuration.
type Config struct {
	Debounce map[input.Source]debounce.Policy
	Decoders decoder.Config
	Keymap   dispatch.Keymap

	// ReorderWindow is how long events wait for slower sources before they
	// are released; one decoder cycle (the touch scan interval) is enough.
	ReorderWindow time.Duration

	// TickHz drives time-based work (debounce commits without a follow-up
	// sample, touch holds, stale IR frames, reorder release).
	TickHz int
}

// Engine is the pipeline worker state.
type Engine struct {
	bank     *debounce.Bank
	decoders *decoder.Set
	norm     *dispatch.Normalizer
	reorder  *dispatch.Reorder
	out      *dispatch.Queue

	tickHz    int
	window    time.Duration
	now       time.Time
	watermark atomic.Pointer[time.Time]
	stats     *input.Stats
	logger *slog.Logger
}

// New creates an engine publishing into out.
func New(cfg Config, out *dispatch.Queue, stats *input.Stats, logger *slog.Logger) *Engine {
	if stats == nil {
		stats = new(input.Stats)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.TickHz <= 0 {
		cfg.TickHz = 200
	}
	return &Engine{
		bank:     debounce.New(cfg.Debounce, stats),
		decoders: decoder.NewSet(cfg.Decoders, stats),
		norm:     dispatch.NewNormalizer(cfg.Keymap),
		reorder:  dispatch.NewReorder(cfg.ReorderWindow, stats),
		out:      out,
		tickHz:   cfg.TickHz,
		window:   cfg.ReorderWindow,
		stats:    stats,
		logger:   logger,
	}
}

// Stats returns the counters shared by every stage.
func (e *Engine) Stats() *input.Stats { return e.stats }

// Queue returns the output queue.
func (e *Engine) Queue() *dispatch.Queue { return e.out }

// Watermark is the event time up to which every event has been published:
// nothing stamped at or before it can still arrive on the queue. It is safe
// to call from any goroutine.
func (e *Engine) Watermark() time.Time {
	if wm := e.watermark.Load(); wm != nil {
		return *wm
	}
	return time.Time{}
}

// Latency is how far the watermark trails the clock while Run is ticking.
func (e *Engine) Latency() time.Duration {
	return e.window + time.Second/time.Duration(e.tickHz)
}

func (e *Engine) setWatermark(at time.Time) {
	if cur := e.watermark.Load(); cur != nil && !at.After(*cur) {
		return
	}
	e.watermark.Store(&at)
}

func (e *Engine) observe(now time.Time) {
	if now.After(e.now) {
		e.now = now
	}
}

// Process runs one raw sample through debounce and decode. Samples of one
// channel must arrive in timestamp order; samples of different channels
// may interleave arbitrarily.
func (e *Engine) Process(s input.RawSample) {
	if !s.Source.Valid() {
		e.logger.Warn("sample from unknown source dropped", "source", int(s.Source))
		return
	}
	e.observe(s.At)
	for _, edge := range e.bank.Offer(s) {
		e.decode(edge)
	}
	e.decoders.Observe(s)
	e.release()
}

// Advance runs time-driven work up to now.
func (e *Engine) Advance(now time.Time) {
	e.observe(now)
	for _, edge := range e.bank.Advance(now) {
		e.decode(edge)
	}
	for _, sym := range e.decoders.Advance(now) {
		e.emit(sym)
	}
	e.release()
}

// NextDeadline returns the earliest time at which Advance has work.
func (e *Engine) NextDeadline() (time.Time, bool) {
	var next time.Time
	found := false
	for _, fn := range []func() (time.Time, bool){
		e.bank.NextDeadline,
		e.decoders.NextDeadline,
		e.reorder.NextDeadline,
	} {
		at, ok := fn()
		if ok && (!found || at.Before(next)) {
			next, found = at, true
		}
	}
	return next, found
}

// Flush releases every held event into the output queue.
func (e *Engine) Flush() {
	for _, ev := range e.reorder.Flush() {
		e.publish(ev)
	}
	e.setWatermark(e.now)
}

func (e *Engine) decode(edge input.Edge) {
	for _, sym := range e.decoders.Decode(edge) {
		e.emit(sym)
	}
}

func (e *Engine) emit(sym input.Symbol) {
	ev := e.norm.Normalize(sym)
	e.logger.Debug("input event", "event", ev.String(), "at", ev.At.Format(time.StampMicro))
	e.reorder.Push(ev)
}

func (e *Engine) release() {
	for _, ev := range e.reorder.Release(e.now) {
		e.publish(ev)
	}
	// Published after the events so a reader that sees the new watermark
	// finds them already queued.
	if !e.now.IsZero() {
		e.setWatermark(e.now.Add(-e.window))
	}
}

func (e *Engine) publish(ev input.InputEvent) {
	if err := e.out.Push(ev); err != nil {
		if errors.Is(err, input.ErrQueueOverflow) {
			e.logger.Debug("event queue full, dropped oldest event")
			return
		}
		e.logger.Warn("event dropped", "event", ev.String(), "err", err)
	}
}

// Run consumes samples until ctx is canceled or samples is closed. On the
// way out it processes samples already queued, flushes the reorder buffer
// and closes the output queue.
func (e *Engine) Run(ctx context.Context, samples <-chan input.RawSample) error {
	ticker := time.NewTicker(time.Second / time.Duration(e.tickHz))
	defer ticker.Stop()
	defer e.out.Close()

	// drain processes whatever is already queued so time-driven commits
	// never overtake samples that were stamped earlier.
	drain := func() bool {
		for {
			select {
			case s, ok := <-samples:
				if !ok {
					return false
				}
				e.Process(s)
			default:
				return true
			}
		}
	}

	shutdown := func(reason string) {
		drain()
		e.Advance(time.Now())
		e.Flush()
		e.logger.Info("pipeline stopping", "reason", reason, "stats", e.stats.Snapshot())
	}

	e.logger.Info("pipeline started", "tick_hz", e.tickHz)
	for {
		select {
		case <-ctx.Done():
			shutdown("context canceled")
			return nil

		case s, ok := <-samples:
			if !ok {
				shutdown("samples channel closed")
				return nil
			}
			e.Process(s)

		case now := <-ticker.C:
			if !drain() {
				shutdown("samples channel closed")
				return nil
			}
			e.Advance(now)
		}
	}
}
