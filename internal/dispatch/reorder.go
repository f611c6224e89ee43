package dispatch

import (
	"container/heap"
	"time"

	"olinput/internal/input"
)

type eventHeap []input.InputEvent

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if !h[i].At.Equal(h[j].At) {
		return h[i].At.Before(h[j].At)
	}
	return h[i].Seq < h[j].Seq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)   { *h = append(*h, x.(input.InputEvent)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	*h = old[:n-1]
	return ev
}

// Reorder holds events for one reorder window so that events decoded out of
// timestamp order (different sources, different decode latencies) leave in
// order. Events are released once they are older than now-window.
type Reorder struct {
	window   time.Duration
	stats    *input.Stats
	h        eventHeap
	last     time.Time
	released bool
}

// NewReorder creates a reorder buffer.
func NewReorder(window time.Duration, stats *input.Stats) *Reorder {
	if stats == nil {
		stats = new(input.Stats)
	}
	return &Reorder{window: window, stats: stats}
}

// Push adds an event. An event older than the last released one can no
// longer be placed correctly; it is clamped to the last released time and
// counted as late.
func (r *Reorder) Push(ev input.InputEvent) {
	if r.released && ev.At.Before(r.last) {
		r.stats.LateEvents.Add(1)
		ev.At = r.last
	}
	heap.Push(&r.h, ev)
}

// Release pops every event whose timestamp is at or before now-window.
func (r *Reorder) Release(now time.Time) []input.InputEvent {
	return r.popUntil(now.Add(-r.window), false)
}

// Flush releases everything regardless of age.
func (r *Reorder) Flush() []input.InputEvent {
	return r.popUntil(time.Time{}, true)
}

func (r *Reorder) popUntil(cutoff time.Time, all bool) []input.InputEvent {
	var out []input.InputEvent
	for r.h.Len() > 0 {
		if !all && r.h[0].At.After(cutoff) {
			break
		}
		ev := heap.Pop(&r.h).(input.InputEvent)
		r.last = ev.At
		r.released = true
		out = append(out, ev)
	}
	return out
}

// NextDeadline returns when the oldest held event becomes releasable.
func (r *Reorder) NextDeadline() (time.Time, bool) {
	if r.h.Len() == 0 {
		return time.Time{}, false
	}
	return r.h[0].At.Add(r.window), true
}

// Len returns the number of held events.
func (r *Reorder) Len() int { return r.h.Len() }
