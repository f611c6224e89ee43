package input

import "sync/atomic"

// Stats holds the pipeline's diagnostic counters. All fields are safe for
// concurrent use; producers only ever increment.
type Stats struct {
	SampleDrops       atomic.Uint64
	OutOfOrder        atomic.Uint64
	MalformedFrames   atomic.Uint64
	RotaryMisses      atomic.Uint64
	TouchUnclassified atomic.Uint64
	LateEvents        atomic.Uint64
	QueueOverflows    atomic.Uint64
	Unmapped          atomic.Uint64

	unavailable [numSources]atomic.Uint64
}

// SourceUnavailable increments the transient-failure counter for src.
func (s *Stats) SourceUnavailable(src Source) {
	if src.Valid() {
		s.unavailable[src].Add(1)
	}
}

// StatsSnapshot is a point-in-time copy of Stats suitable for JSON.
type StatsSnapshot struct {
	SampleDrops       uint64            `json:"sample_drops"`
	OutOfOrder        uint64            `json:"out_of_order"`
	MalformedFrames   uint64            `json:"malformed_frames"`
	RotaryMisses      uint64            `json:"rotary_misses"`
	TouchUnclassified uint64            `json:"touch_unclassified"`
	LateEvents        uint64            `json:"late_events"`
	QueueOverflows    uint64            `json:"queue_overflows"`
	Unmapped          uint64            `json:"unmapped"`
	SourceUnavailable map[string]uint64 `json:"source_unavailable"`
}

// Snapshot copies the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		SampleDrops:       s.SampleDrops.Load(),
		OutOfOrder:        s.OutOfOrder.Load(),
		MalformedFrames:   s.MalformedFrames.Load(),
		RotaryMisses:      s.RotaryMisses.Load(),
		TouchUnclassified: s.TouchUnclassified.Load(),
		LateEvents:        s.LateEvents.Load(),
		QueueOverflows:    s.QueueOverflows.Load(),
		Unmapped:          s.Unmapped.Load(),
		SourceUnavailable: make(map[string]uint64, numSources),
	}
	for _, src := range Sources() {
		snap.SourceUnavailable[src.String()] = s.unavailable[src].Load()
	}
	return snap
}
