package decoder

import (
	"math"
	"time"

	"olinput/internal/input"
)

// Point is an electrode position in screen coordinates (y grows downwards).
type Point struct {
	X, Y float64
}

// TouchConfig tunes the gesture recogniser.
type TouchConfig struct {
	// Positions places electrodes on the grid. Electrodes without a
	// position still start and end contacts but do not move the centroid.
	Positions map[int]Point

	// HoldThreshold is the contact duration at which the first Hold fires;
	// it is also the upper bound of a Tap.
	HoldThreshold time.Duration

	// HoldRepeat is the interval between Hold emissions after the first.
	HoldRepeat time.Duration

	// Distance separates taps (below) from swipes (at or above), in the
	// units of Positions.
	Distance float64

	// SwipeWindow is the longest contact still classified as a swipe.
	SwipeWindow time.Duration
}

type contact struct {
	active    bool
	start     time.Time
	electrode int
	origin    Point
	current   Point
	hasPos    bool
	moved     bool
	holds     int
}

// Touch recognises Tap, Hold and Swipe gestures from debounced electrode
// edges. Pressure (the electrode delta) weights the contact centroid.
type Touch struct {
	cfg     TouchConfig
	stats   *input.Stats
	touched map[int]int // electrode -> latest pressure
	contact contact
}

// NewTouch creates a gesture recogniser.
func NewTouch(cfg TouchConfig, stats *input.Stats) *Touch {
	if stats == nil {
		stats = new(input.Stats)
	}
	if cfg.HoldRepeat <= 0 {
		cfg.HoldRepeat = cfg.HoldThreshold
	}
	return &Touch{cfg: cfg, stats: stats, touched: make(map[int]int)}
}

// Offer consumes one debounced electrode edge. Holds that fell due before
// the edge are returned ahead of whatever the edge itself produces.
func (t *Touch) Offer(e input.Edge) []input.TouchGesture {
	out := t.Advance(e.At)

	if e.Level != input.Low {
		t.touched[e.Channel] = e.Value
		if !t.contact.active {
			t.contact = contact{active: true, start: e.At, electrode: e.Channel}
			t.contact.origin, t.contact.hasPos = t.centroid()
			t.contact.current = t.contact.origin
			return out
		}
		t.track()
		return out
	}

	if _, ok := t.touched[e.Channel]; !ok {
		return out
	}
	delete(t.touched, e.Channel)
	if len(t.touched) > 0 {
		t.track()
		return out
	}
	if g, ok := t.release(e.At); ok {
		out = append(out, g)
	}
	return out
}

// UpdatePressure refreshes the pressure of an electrode that is already
// stably touched. Samples for untouched electrodes are ignored.
func (t *Touch) UpdatePressure(s input.RawSample) {
	if _, ok := t.touched[s.Channel]; !ok || !t.contact.active {
		return
	}
	t.touched[s.Channel] = s.Value
	t.track()
}

func (t *Touch) track() {
	p, ok := t.centroid()
	if !ok {
		return
	}
	if !t.contact.hasPos {
		// First positioned electrode of this contact becomes the origin.
		t.contact.origin = p
		t.contact.hasPos = true
	}
	t.contact.current = p
	if distance(t.contact.origin, p) >= t.cfg.Distance {
		t.contact.moved = true
	}
}

// centroid returns the pressure-weighted mean position of the touched
// electrodes that have a position.
func (t *Touch) centroid() (Point, bool) {
	var sx, sy, sw float64
	for el, pressure := range t.touched {
		pos, ok := t.cfg.Positions[el]
		if !ok {
			continue
		}
		w := float64(pressure)
		if w <= 0 {
			w = 1
		}
		sx += pos.X * w
		sy += pos.Y * w
		sw += w
	}
	if sw == 0 {
		return Point{}, false
	}
	return Point{X: sx / sw, Y: sy / sw}, true
}

func (t *Touch) release(at time.Time) (input.TouchGesture, bool) {
	c := t.contact
	t.contact = contact{}
	if c.holds > 0 {
		return input.TouchGesture{}, false
	}

	dur := at.Sub(c.start)
	dist := distance(c.origin, c.current)
	switch {
	case dur < t.cfg.HoldThreshold && dist < t.cfg.Distance:
		return input.TouchGesture{Gesture: input.GestureTap, Electrode: c.electrode, At: at}, true
	case dist >= t.cfg.Distance && dur <= t.cfg.SwipeWindow:
		return input.TouchGesture{
			Gesture:   input.GestureSwipe,
			Electrode: c.electrode,
			Direction: direction(c.origin, c.current),
			At:        at,
		}, true
	}
	t.stats.TouchUnclassified.Add(1)
	return input.TouchGesture{}, false
}

// nextHold returns when the next Hold of the active contact is due.
func (t *Touch) nextHold() (time.Time, bool) {
	c := &t.contact
	if !c.active || c.moved || t.cfg.HoldThreshold <= 0 {
		return time.Time{}, false
	}
	return c.start.Add(t.cfg.HoldThreshold + time.Duration(c.holds)*t.cfg.HoldRepeat), true
}

// Advance emits every Hold that fell due by now, each stamped at its own
// scheduled time.
func (t *Touch) Advance(now time.Time) []input.TouchGesture {
	var out []input.TouchGesture
	for {
		at, ok := t.nextHold()
		if !ok || at.After(now) {
			return out
		}
		out = append(out, input.TouchGesture{
			Gesture:   input.GestureHold,
			Electrode: t.contact.electrode,
			Repeat:    t.contact.holds,
			At:        at,
		})
		t.contact.holds++
	}
}

// NextDeadline reports when Advance will next have work.
func (t *Touch) NextDeadline() (time.Time, bool) {
	return t.nextHold()
}

// Reset abandons any active contact.
func (t *Touch) Reset() {
	t.touched = make(map[int]int)
	t.contact = contact{}
}

func distance(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

func direction(from, to Point) input.Direction {
	dx, dy := to.X-from.X, to.Y-from.Y
	if math.Abs(dx) >= math.Abs(dy) {
		if dx > 0 {
			return input.DirRight
		}
		return input.DirLeft
	}
	if dy > 0 {
		return input.DirDown
	}
	return input.DirUp
}
