package sampler

import (
	"sync"
	"time"

	"olinput/internal/input"
)

// Stamper keeps the timestamps of each channel strictly increasing. Two
// edges that the clock cannot tell apart are spaced by one nanosecond.
type Stamper struct {
	mu   sync.Mutex
	last map[input.ChannelKey]time.Time
	now  func() time.Time
}

// NewStamper creates an empty stamper.
func NewStamper() *Stamper {
	return &Stamper{last: make(map[input.ChannelKey]time.Time), now: time.Now}
}

// Stamp returns the timestamp to use for a sample of key observed at at. A
// zero at means "now".
func (s *Stamper) Stamp(key input.ChannelKey, at time.Time) time.Time {
	if at.IsZero() {
		at = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.last[key]; ok && !at.After(prev) {
		at = prev.Add(time.Nanosecond)
	}
	s.last[key] = at
	return at
}

// Queue is the bounded hand-off between sources and the pipeline worker.
// Push never blocks: a full queue drops the new sample and counts it.
type Queue struct {
	ch    chan input.RawSample
	stamp *Stamper
	stats *input.Stats
}

// NewQueue creates a queue holding up to capacity samples.
func NewQueue(capacity int, stats *input.Stats) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	if stats == nil {
		stats = new(input.Stats)
	}
	return &Queue{
		ch:    make(chan input.RawSample, capacity),
		stamp: NewStamper(),
		stats: stats,
	}
}

// Push stamps s and enqueues it. It reports false if the sample was dropped.
func (q *Queue) Push(s input.RawSample) bool {
	s.At = q.stamp.Stamp(s.Key(), s.At)
	select {
	case q.ch <- s:
		return true
	default:
		q.stats.SampleDrops.Add(1)
		return false
	}
}

// C is the receiving end read by the pipeline worker.
func (q *Queue) C() <-chan input.RawSample { return q.ch }

// Len returns the number of queued samples.
func (q *Queue) Len() int { return len(q.ch) }
