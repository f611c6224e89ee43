//go:build linux

package sampler

import (
	"testing"
	"time"

	"olinput/internal/input"
)

func TestLIRC_PulseSpaceTimeline(t *testing.T) {
	q := NewQueue(16, nil)
	l := NewLIRC("/dev/lirc0", 0, q, nil)
	now := t0
	l.now = func() time.Time { return now }

	// The pulse packet arrives when the pulse has ended.
	l.feed(lircPulse | 9000)
	l.feed(lircSpace | 4500)
	now = now.Add(5 * time.Millisecond)
	l.feed(lircPulse | 560)
	l.feed(lircTimeout | 20000)

	got := drain(q)
	want := []struct {
		level int
		at    time.Duration
	}{
		{input.High, -9000 * time.Microsecond},
		{input.Low, 0},
		{input.High, 4500 * time.Microsecond},
		{input.Low, 5060 * time.Microsecond},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d: %v", len(want), len(got), got)
	}
	for i, w := range want {
		if got[i].Source != input.SourceIR || got[i].Level != w.level || !got[i].At.Equal(t0.Add(w.at)) {
			t.Errorf("sample %d: expected level %d at %v, got level %d at %v", i, w.level, w.at, got[i].Level, got[i].At.Sub(t0))
		}
	}
}

func TestLIRC_ReanchorsAfterTimeout(t *testing.T) {
	q := NewQueue(16, nil)
	l := NewLIRC("/dev/lirc0", 0, q, nil)
	now := t0
	l.now = func() time.Time { return now }

	l.feed(lircPulse | 1000)
	l.feed(lircTimeout | 20000)
	now = now.Add(time.Second)
	l.feed(lircPulse | 1000)

	got := drain(q)
	if len(got) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(got))
	}
	if !got[2].At.Equal(now.Add(-time.Millisecond)) {
		t.Errorf("expected the new pulse anchored on the clock, got %v", got[2].At.Sub(t0))
	}
}
