package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"olinput/internal/dispatch"
	"olinput/internal/input"
	"olinput/internal/router"
)

// publisher receives everything the consumer produces. The websocket
// stream implements it; nopPublisher is used when the stream is disabled.
type publisher interface {
	Event(ev input.InputEvent)
	Action(a router.Action)
	Mode(mode string)
}

type nopPublisher struct{}

func (nopPublisher) Event(input.InputEvent) {}
func (nopPublisher) Action(router.Action)   {}
func (nopPublisher) Mode(string)            {}

// eventClock reports how far event time has been published on the queue.
// The pipeline engine implements it.
type eventClock interface {
	Watermark() time.Time
	Latency() time.Duration
}

// expireRetry is how long the consumer waits again when a router deadline
// has passed on the wall clock but not yet on the event clock.
const expireRetry = 5 * time.Millisecond

// runConsumer is the daemon's UI loop: it drains the event queue, routes
// each event under the current UI context and publishes the results.
//
// Long-press and repeat deadlines are in event time. They fire only once
// the pipeline's watermark has passed them, so a release stamped before
// the deadline but still held by the pipeline always wins. It returns once
// the queue is closed and empty.
func runConsumer(ctx context.Context, q *dispatch.Queue, r *router.Router, store *router.ContextStore, clock eventClock, pub publisher, logger *slog.Logger) error {
	if pub == nil {
		pub = nopPublisher{}
	}

	emit := func(actions []router.Action) {
		for _, a := range actions {
			logger.Debug("action", "name", a.Name, "key", a.Key, "mode", a.Mode, "repeat", a.Repeat, "long", a.Long)
			pub.Action(a)
		}
	}
	handle := func(ev input.InputEvent) {
		pub.Event(ev)
		emit(r.Handle(ev, store.Get()))
	}

	for {
		waitCtx := ctx
		cancel := context.CancelFunc(func() {})
		if at, ok := r.NextDeadline(); ok {
			wake := at.Add(clock.Latency())
			if now := time.Now(); !wake.After(now) {
				wake = now.Add(expireRetry)
			}
			if !clock.Watermark().Before(at) {
				wake = time.Now()
			}
			waitCtx, cancel = context.WithDeadline(ctx, wake)
		}
		ev, err := q.Wait(waitCtx)
		cancel()

		switch {
		case err == nil:
			handle(ev)

		case errors.Is(err, dispatch.ErrClosed):
			logger.Info("consumer stopping", "reason", "queue closed")
			return nil

		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			// Read the watermark first: every event at or before it is
			// already queued and is routed ahead of the timers.
			wm := clock.Watermark()
			for {
				ev, ok := q.Pop()
				if !ok {
					break
				}
				handle(ev)
			}
			emit(r.Expire(wm, store.Get()))

		default:
			// Parent canceled. The pipeline closes the queue after its final
			// flush, so keep draining without deadlines until then.
			for {
				ev, err := q.Wait(context.Background())
				if err != nil {
					logger.Info("consumer stopping", "reason", "shutdown")
					return nil
				}
				handle(ev)
			}
		}
	}
}
