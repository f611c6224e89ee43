package decoder

import (
	"testing"
	"time"

	"olinput/internal/input"
)

// crossLayout is the joystick-style pad arrangement: up, right, down, left
// around a centre pad.
func crossLayout() map[int]Point {
	return map[int]Point{
		0: {X: 0, Y: -1},
		1: {X: 1, Y: 0},
		2: {X: 0, Y: 1},
		3: {X: -1, Y: 0},
		4: {X: 0, Y: 0},
	}
}

func testTouchConfig() TouchConfig {
	return TouchConfig{
		Positions:     crossLayout(),
		HoldThreshold: 500 * time.Millisecond,
		HoldRepeat:    200 * time.Millisecond,
		Distance:      1,
		SwipeWindow:   800 * time.Millisecond,
	}
}

func touchEdge(pad, level, pressure int, ms int) input.Edge {
	prev := input.Low
	if level == input.Low {
		prev = input.High
	}
	return input.Edge{
		Source:  input.SourceTouch,
		Channel: pad,
		Prev:    prev,
		Level:   level,
		Value:   pressure,
		At:      at(time.Duration(ms) * time.Millisecond),
	}
}

func feedTouch(d *Touch, edges ...input.Edge) []input.TouchGesture {
	var out []input.TouchGesture
	for _, e := range edges {
		out = append(out, d.Offer(e)...)
	}
	return out
}

func TestTouch_ShortContactIsTap(t *testing.T) {
	d := NewTouch(testTouchConfig(), nil)

	got := feedTouch(d,
		touchEdge(4, input.High, 20, 0),
		touchEdge(4, input.Low, 0, 80),
	)
	if len(got) != 1 {
		t.Fatalf("expected 1 gesture, got %d", len(got))
	}
	g := got[0]
	if g.Gesture != input.GestureTap || g.Electrode != 4 {
		t.Errorf("expected tap on electrode 4, got %s on %d", g.Gesture, g.Electrode)
	}
	if !g.At.Equal(at(80 * time.Millisecond)) {
		t.Errorf("expected tap at release time, got %v", g.At.Sub(t0))
	}
}

func TestTouch_HoldRepeatsUntilRelease(t *testing.T) {
	d := NewTouch(testTouchConfig(), nil)

	feedTouch(d, touchEdge(4, input.High, 20, 0))

	next, ok := d.NextDeadline()
	if !ok || !next.Equal(at(500*time.Millisecond)) {
		t.Fatalf("expected first hold deadline at +500ms, got %v (ok=%v)", next.Sub(t0), ok)
	}
	if got := d.Advance(at(499 * time.Millisecond)); len(got) != 0 {
		t.Fatalf("expected no hold before threshold, got %v", got)
	}

	holds := d.Advance(at(1000 * time.Millisecond))
	wantAt := []int{500, 700, 900}
	if len(holds) != len(wantAt) {
		t.Fatalf("expected %d holds, got %d", len(wantAt), len(holds))
	}
	for i, h := range holds {
		if h.Gesture != input.GestureHold || h.Repeat != i {
			t.Errorf("hold %d: expected hold repeat %d, got %s repeat %d", i, i, h.Gesture, h.Repeat)
		}
		if !h.At.Equal(at(time.Duration(wantAt[i]) * time.Millisecond)) {
			t.Errorf("hold %d: expected at +%dms, got %v", i, wantAt[i], h.At.Sub(t0))
		}
	}

	got := feedTouch(d, touchEdge(4, input.Low, 0, 1050))
	if len(got) != 0 {
		t.Errorf("expected no gesture on release after hold, got %v", got)
	}
	if _, ok := d.NextDeadline(); ok {
		t.Errorf("expected no deadline after release")
	}
}

func TestTouch_ReleaseEdgeFlushesDueHolds(t *testing.T) {
	d := NewTouch(testTouchConfig(), nil)

	got := feedTouch(d,
		touchEdge(4, input.High, 20, 0),
		touchEdge(4, input.Low, 0, 600),
	)
	if len(got) != 1 || got[0].Gesture != input.GestureHold {
		t.Fatalf("expected a single hold, got %v", got)
	}
}

func TestTouch_Swipes(t *testing.T) {
	tests := []struct {
		name string
		pads []int
		want input.Direction
	}{
		{"left to right", []int{3, 4, 1}, input.DirRight},
		{"right to left", []int{1, 4, 3}, input.DirLeft},
		{"top to bottom", []int{0, 4, 2}, input.DirDown},
		{"bottom to top", []int{2, 4, 0}, input.DirUp},
		{"half swipe", []int{4, 1}, input.DirRight},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := new(input.Stats)
			d := NewTouch(testTouchConfig(), stats)

			// Each pad overlaps the next by 30ms.
			var edges []input.Edge
			for i, pad := range tt.pads {
				edges = append(edges, touchEdge(pad, input.High, 20, i*60))
				edges = append(edges, touchEdge(pad, input.Low, 0, i*60+90))
			}
			sortTouchEdges(edges)

			got := feedTouch(d, edges...)
			if len(got) != 1 {
				t.Fatalf("expected 1 gesture, got %d (unclassified=%d)", len(got), stats.TouchUnclassified.Load())
			}
			if got[0].Gesture != input.GestureSwipe || got[0].Direction != tt.want {
				t.Errorf("expected swipe %s, got %s %s", tt.want, got[0].Gesture, got[0].Direction)
			}
			if got[0].Electrode != tt.pads[0] {
				t.Errorf("expected swipe to start on electrode %d, got %d", tt.pads[0], got[0].Electrode)
			}
		})
	}
}

func sortTouchEdges(edges []input.Edge) {
	for i := 1; i < len(edges); i++ {
		for j := i; j > 0 && edges[j].At.Before(edges[j-1].At); j-- {
			edges[j], edges[j-1] = edges[j-1], edges[j]
		}
	}
}

func TestTouch_SlowDragIsUnclassified(t *testing.T) {
	stats := new(input.Stats)
	cfg := testTouchConfig()
	d := NewTouch(cfg, stats)

	got := feedTouch(d,
		touchEdge(3, input.High, 20, 0),
		touchEdge(4, input.High, 20, 200),
		touchEdge(3, input.Low, 0, 400),
		touchEdge(4, input.Low, 0, 900),
	)
	if len(got) != 0 {
		t.Fatalf("expected no gesture, got %v", got)
	}
	if got := stats.TouchUnclassified.Load(); got != 1 {
		t.Errorf("expected 1 unclassified contact, got %d", got)
	}
}

func TestTouch_PressureWeightsCentroid(t *testing.T) {
	d := NewTouch(testTouchConfig(), nil)

	// A finger mostly on the centre pad brushing the right pad stays a tap.
	got := feedTouch(d,
		touchEdge(4, input.High, 30, 0),
		touchEdge(1, input.High, 10, 10),
		touchEdge(1, input.Low, 0, 40),
		touchEdge(4, input.Low, 0, 60),
	)
	if len(got) != 1 || got[0].Gesture != input.GestureTap || got[0].Electrode != 4 {
		t.Fatalf("expected tap on electrode 4, got %v", got)
	}

	// A finger rolling from the left pad onto the right one while both
	// stay touched moves the centroid by pressure alone.
	got = feedTouch(d,
		touchEdge(3, input.High, 30, 100),
		touchEdge(1, input.High, 1, 110),
	)
	d.UpdatePressure(input.RawSample{Source: input.SourceTouch, Channel: 3, Value: 1, At: at(120 * time.Millisecond)})
	d.UpdatePressure(input.RawSample{Source: input.SourceTouch, Channel: 1, Value: 40, At: at(130 * time.Millisecond)})
	got = append(got, feedTouch(d,
		touchEdge(3, input.Low, 0, 140),
		touchEdge(1, input.Low, 0, 150),
	)...)
	if len(got) != 1 || got[0].Gesture != input.GestureSwipe || got[0].Direction != input.DirRight {
		t.Fatalf("expected swipe right, got %v", got)
	}
}

func TestTouch_UnpositionedElectrodeTaps(t *testing.T) {
	d := NewTouch(testTouchConfig(), nil)

	got := feedTouch(d,
		touchEdge(9, input.High, 20, 0),
		touchEdge(9, input.Low, 0, 50),
	)
	if len(got) != 1 || got[0].Gesture != input.GestureTap || got[0].Electrode != 9 {
		t.Fatalf("expected tap on electrode 9, got %v", got)
	}
}
