// Package debounce turns chattering raw samples into clean logical edges.
//
// Each physical channel runs a two-state machine:
//
//	Stable(level) --differing sample--> Candidate(level, since)
//	Candidate --same level persists >= window--> Stable(new), edge emitted at since+window
//	Candidate --reverts to stable level--> Stable(old), nothing emitted
//
// A burst alternating faster than the window therefore never commits.
package debounce

import (
	"sort"
	"time"

	"olinput/internal/input"
)

// Policy is the debounce configuration of one source class.
type Policy struct {
	Window time.Duration

	// AdoptFirst takes the first sample of a channel as its stable level
	// instead of assuming Low. Quadrature encoders need this since their
	// resting phase is arbitrary.
	AdoptFirst bool
}

type channel struct {
	seen       bool
	stable     int
	lastTrans  time.Time
	lastSample time.Time
	value      int

	pending   bool
	candidate int
	since     time.Time
}

// Bank owns the debounce state of every channel. It is not safe for
// concurrent use; the pipeline worker is its only caller.
type Bank struct {
	policies map[input.Source]Policy
	channels map[input.ChannelKey]*channel
	stats    *input.Stats
}

// New creates a bank. Sources without a policy use a zero window.
func New(policies map[input.Source]Policy, stats *input.Stats) *Bank {
	p := make(map[input.Source]Policy, len(policies))
	for src, pol := range policies {
		p[src] = pol
	}
	if stats == nil {
		stats = new(input.Stats)
	}
	return &Bank{
		policies: p,
		channels: make(map[input.ChannelKey]*channel),
		stats:    stats,
	}
}

// Offer feeds one raw sample and returns the edges it caused to commit.
// A candidate that has already persisted for its full window by the time
// of s commits first, stamped at its own deadline.
func (b *Bank) Offer(s input.RawSample) []input.Edge {
	key := s.Key()
	pol := b.policies[s.Source]
	ch := b.channels[key]
	if ch == nil {
		ch = &channel{}
		b.channels[key] = ch
	}

	if !ch.seen {
		ch.seen = true
		ch.lastSample = s.At
		ch.value = s.Value
		if pol.AdoptFirst {
			ch.stable = s.Level
			ch.lastTrans = s.At
			return nil
		}
		ch.stable = input.Low
		return b.consider(key, ch, pol, s, nil)
	}

	if !s.At.After(ch.lastSample) {
		b.stats.OutOfOrder.Add(1)
		return nil
	}

	var edges []input.Edge
	if e, ok := b.commitDue(key, ch, pol, s.At); ok {
		edges = append(edges, e)
	}
	ch.lastSample = s.At
	ch.value = s.Value
	return b.consider(key, ch, pol, s, edges)
}

func (b *Bank) consider(key input.ChannelKey, ch *channel, pol Policy, s input.RawSample, edges []input.Edge) []input.Edge {
	switch {
	case s.Level == ch.stable:
		// Bounce absorbed.
		ch.pending = false
		return edges
	case ch.pending && s.Level == ch.candidate:
		return edges
	}
	ch.pending = true
	ch.candidate = s.Level
	ch.since = s.At
	if pol.Window <= 0 {
		if e, ok := b.commitDue(key, ch, pol, s.At); ok {
			edges = append(edges, e)
		}
	}
	return edges
}

// commitDue commits ch's candidate if it has persisted for the window by now.
func (b *Bank) commitDue(key input.ChannelKey, ch *channel, pol Policy, now time.Time) (input.Edge, bool) {
	if !ch.pending {
		return input.Edge{}, false
	}
	at := ch.since.Add(pol.Window)
	if at.After(now) {
		return input.Edge{}, false
	}
	if !at.After(ch.lastTrans) {
		// Cannot happen with strictly increasing samples; refuse rather
		// than break the transition ordering.
		ch.pending = false
		return input.Edge{}, false
	}
	prev := ch.stable
	ch.pending = false
	ch.stable = ch.candidate
	ch.lastTrans = at
	return input.Edge{
		Source:  key.Source,
		Channel: key.Channel,
		Prev:    prev,
		Level:   ch.stable,
		Value:   ch.value,
		At:      at,
	}, true
}

// Advance commits every candidate whose window has elapsed by now. Edges are
// returned in timestamp order.
func (b *Bank) Advance(now time.Time) []input.Edge {
	var edges []input.Edge
	for key, ch := range b.channels {
		if e, ok := b.commitDue(key, ch, b.policies[key.Source], now); ok {
			edges = append(edges, e)
		}
	}
	sortEdges(edges)
	return edges
}

// NextDeadline returns the earliest time at which a pending candidate will
// commit, if any candidate is pending.
func (b *Bank) NextDeadline() (time.Time, bool) {
	var next time.Time
	found := false
	for key, ch := range b.channels {
		if !ch.pending {
			continue
		}
		at := ch.since.Add(b.policies[key.Source].Window)
		if !found || at.Before(next) {
			next = at
			found = true
		}
	}
	return next, found
}

// Stable returns the committed level of a channel.
func (b *Bank) Stable(key input.ChannelKey) (int, bool) {
	ch := b.channels[key]
	if ch == nil || !ch.seen {
		return 0, false
	}
	return ch.stable, true
}

// LastTransition returns the commit time of the channel's latest edge.
func (b *Bank) LastTransition(key input.ChannelKey) (time.Time, bool) {
	ch := b.channels[key]
	if ch == nil || ch.lastTrans.IsZero() {
		return time.Time{}, false
	}
	return ch.lastTrans, true
}

// Reset forgets all channel state.
func (b *Bank) Reset() {
	b.channels = make(map[input.ChannelKey]*channel)
}

func sortEdges(edges []input.Edge) {
	sort.SliceStable(edges, func(i, j int) bool {
		if !edges[i].At.Equal(edges[j].At) {
			return edges[i].At.Before(edges[j].At)
		}
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Channel < edges[j].Channel
	})
}
