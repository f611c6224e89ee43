package router

import (
	"testing"
	"time"

	"olinput/internal/input"
)

var t0 = time.Unix(1700000000, 0)

func ms(n int) time.Time { return t0.Add(time.Duration(n) * time.Millisecond) }

func testConfig() Config {
	return Config{
		Bindings: map[string]map[string]string{
			DefaultMode: {
				"KEY_UP":        "nav_up",
				"KEY_OK":        "select",
				"KEY_OK:long":   "menu",
				"KEY_POWER":     "power",
				"ROTARY_CW":     "nav_down",
				"SWIPE_LEFT":    "previous",
				"KEY_BACK":      "back",
				"KEY_STOP:long": "shutdown",
			},
			"player": {
				"ROTARY_CW": "volume_up",
			},
		},
		Repeat:         []string{"KEY_UP"},
		LongPress:      600 * time.Millisecond,
		RepeatInterval: 100 * time.Millisecond,
	}
}

func ev(src input.Source, kind input.Kind, key string, at time.Time) input.InputEvent {
	return input.InputEvent{Source: src, Kind: kind, Key: key, At: at}
}

var def = Context{Mode: DefaultMode}

func TestRouter_ModeFallback(t *testing.T) {
	r := New(testConfig(), nil, nil)

	a, ok := r.Route(ev(input.SourceRotary, input.KindStep, "ROTARY_CW", ms(0)), Context{Mode: "player"})
	if !ok || a.Name != "volume_up" || a.Mode != "player" {
		t.Errorf("expected volume_up in player mode, got %+v (ok=%v)", a, ok)
	}
	a, ok = r.Route(ev(input.SourceRotary, input.KindStep, "ROTARY_CW", ms(1)), Context{Mode: "browser"})
	if !ok || a.Name != "nav_down" {
		t.Errorf("expected fallback to default binding nav_down, got %+v (ok=%v)", a, ok)
	}
	a, ok = r.Route(ev(input.SourceTouch, input.KindSwipe, "SWIPE_LEFT", ms(2)), Context{Mode: "player"})
	if !ok || a.Name != "previous" {
		t.Errorf("expected previous, got %+v (ok=%v)", a, ok)
	}
}

func TestRouter_UnboundDropped(t *testing.T) {
	stats := new(input.Stats)
	r := New(testConfig(), nil, stats)

	if _, ok := r.Route(ev(input.SourceIR, input.KindPress, "IR_0x00000012", ms(0)), def); ok {
		t.Errorf("expected unbound IR code to be dropped")
	}
	if _, ok := r.Route(ev(input.SourceTouch, input.KindTap, "PAD_9", ms(0)), def); ok {
		t.Errorf("expected unbound pad to be dropped")
	}
	if got := stats.Unmapped.Load(); got != 2 {
		t.Errorf("expected 2 unmapped events, got %d", got)
	}
}

func TestRouter_ShortPressOnRelease(t *testing.T) {
	r := New(testConfig(), nil, nil)

	if _, ok := r.Route(ev(input.SourceButton, input.KindPress, "KEY_OK", ms(0)), def); ok {
		t.Fatalf("expected press of a long-capable key to defer its action")
	}
	next, ok := r.NextDeadline()
	if !ok || !next.Equal(ms(600)) {
		t.Fatalf("expected long-press deadline +600ms, got %v (ok=%v)", next.Sub(t0), ok)
	}

	got := r.Handle(ev(input.SourceButton, input.KindRelease, "KEY_OK", ms(200)), def)
	if len(got) != 1 || got[0].Name != "select" || got[0].Long {
		t.Fatalf("expected short select on release, got %+v", got)
	}
	if !got[0].At.Equal(ms(200)) {
		t.Errorf("expected action at release time, got %v", got[0].At.Sub(t0))
	}
	if _, ok := r.NextDeadline(); ok {
		t.Errorf("expected release to cancel the pending long press")
	}
}

func TestRouter_LongPressAtThreshold(t *testing.T) {
	r := New(testConfig(), nil, nil)

	r.Route(ev(input.SourceButton, input.KindPress, "KEY_OK", ms(0)), def)
	if got := r.Expire(ms(599), def); len(got) != 0 {
		t.Fatalf("expected nothing before threshold, got %+v", got)
	}
	got := r.Expire(ms(700), def)
	if len(got) != 1 || got[0].Name != "menu" || !got[0].Long || !got[0].At.Equal(ms(600)) {
		t.Fatalf("expected long menu at +600ms, got %+v", got)
	}
	if got := r.Handle(ev(input.SourceButton, input.KindRelease, "KEY_OK", ms(900)), def); len(got) != 0 {
		t.Errorf("expected no action on release after long press, got %+v", got)
	}
}

func TestRouter_ReleaseAfterMissedExpiry(t *testing.T) {
	r := New(testConfig(), nil, nil)

	// The consumer never ticked; the release must still see the long press
	// fire first.
	r.Route(ev(input.SourceButton, input.KindPress, "KEY_OK", ms(0)), def)
	got := r.Handle(ev(input.SourceButton, input.KindRelease, "KEY_OK", ms(800)), def)
	if len(got) != 1 || got[0].Name != "menu" {
		t.Fatalf("expected only the long action, got %+v", got)
	}
}

func TestRouter_LongOnlyBinding(t *testing.T) {
	r := New(testConfig(), nil, nil)

	r.Route(ev(input.SourceButton, input.KindPress, "KEY_STOP", ms(0)), def)
	if got := r.Handle(ev(input.SourceButton, input.KindRelease, "KEY_STOP", ms(100)), def); len(got) != 0 {
		t.Errorf("expected a short tap of a long-only key to do nothing, got %+v", got)
	}
	r.Route(ev(input.SourceButton, input.KindPress, "KEY_STOP", ms(1000)), def)
	got := r.Expire(ms(1600), def)
	if len(got) != 1 || got[0].Name != "shutdown" {
		t.Errorf("expected shutdown, got %+v", got)
	}
}

func TestRouter_RepeatWhileHeld(t *testing.T) {
	r := New(testConfig(), nil, nil)

	a, ok := r.Route(ev(input.SourceButton, input.KindPress, "KEY_UP", ms(0)), def)
	if !ok || a.Name != "nav_up" || a.Repeat != 0 {
		t.Fatalf("expected immediate nav_up, got %+v (ok=%v)", a, ok)
	}
	got := r.Expire(ms(850), def)
	wantAt := []int{600, 700, 800}
	if len(got) != len(wantAt) {
		t.Fatalf("expected %d repeats, got %d", len(wantAt), len(got))
	}
	for i, a := range got {
		if a.Name != "nav_up" || a.Repeat != i+1 || !a.At.Equal(ms(wantAt[i])) {
			t.Errorf("repeat %d: expected nav_up #%d at +%dms, got %+v", i, i+1, wantAt[i], a)
		}
	}
	r.Route(ev(input.SourceButton, input.KindRelease, "KEY_UP", ms(860)), def)
	if got := r.Expire(ms(2000), def); len(got) != 0 {
		t.Errorf("expected repeats to stop at release, got %d", len(got))
	}
}

func TestRouter_ModeChangeDisarmsHold(t *testing.T) {
	r := New(testConfig(), nil, nil)

	r.Route(ev(input.SourceButton, input.KindPress, "KEY_OK", ms(0)), def)
	if got := r.Expire(ms(700), Context{Mode: "player"}); len(got) != 0 {
		t.Errorf("expected no long action after a mode switch, got %+v", got)
	}
	if got := r.Handle(ev(input.SourceButton, input.KindRelease, "KEY_OK", ms(800)), Context{Mode: "player"}); len(got) != 0 {
		t.Errorf("expected no short action after a mode switch, got %+v", got)
	}
}

func TestRouter_IRRepeats(t *testing.T) {
	cfg := testConfig()
	cfg.Bindings[DefaultMode]["KEY_POWER:long"] = "standby"
	r := New(cfg, nil, nil)

	a, ok := r.Route(ev(input.SourceIR, input.KindPress, "KEY_UP", ms(0)), def)
	if !ok || a.Name != "nav_up" {
		t.Fatalf("expected nav_up, got %+v", a)
	}
	rep := ev(input.SourceIR, input.KindRepeat, "KEY_UP", ms(110))
	rep.Repeat = 1
	a, ok = r.Route(rep, def)
	if !ok || a.Name != "nav_up" || a.Repeat != 1 {
		t.Errorf("expected repeat of nav_up, got %+v (ok=%v)", a, ok)
	}

	// A non-repeating key with a long binding fires the long action once,
	// on the first repeat frame past the threshold.
	r.Route(ev(input.SourceIR, input.KindPress, "KEY_POWER", ms(1000)), def)
	var longs []Action
	for i := 1; i <= 10; i++ {
		rep := ev(input.SourceIR, input.KindRepeat, "KEY_POWER", ms(1000+110*i))
		rep.Repeat = i
		if a, ok := r.Route(rep, def); ok {
			longs = append(longs, a)
		}
	}
	if len(longs) != 1 {
		t.Fatalf("expected exactly 1 long action from IR repeats, got %d", len(longs))
	}
	if longs[0].Name != "standby" || !longs[0].Long || !longs[0].At.Equal(ms(1660)) {
		t.Errorf("expected standby at +1660ms, got %+v", longs[0])
	}

	// A non-repeating key without a long binding ignores repeats.
	if _, ok := r.Route(ev(input.SourceIR, input.KindRepeat, "KEY_BACK", ms(3000)), def); ok {
		t.Errorf("expected repeats of KEY_BACK to be ignored")
	}
}

func TestRouter_TouchHold(t *testing.T) {
	r := New(testConfig(), nil, nil)

	hold := ev(input.SourceTouch, input.KindHold, "KEY_OK", ms(500))
	a, ok := r.Route(hold, def)
	if !ok || a.Name != "menu" || !a.Long {
		t.Fatalf("expected long menu from first hold, got %+v (ok=%v)", a, ok)
	}
	hold.Repeat = 1
	if _, ok := r.Route(hold, def); ok {
		t.Errorf("expected later holds of a non-repeating key to be ignored")
	}

	up := ev(input.SourceTouch, input.KindHold, "KEY_UP", ms(500))
	for i := 0; i < 3; i++ {
		up.Repeat = i
		a, ok := r.Route(up, def)
		if !ok || a.Name != "nav_up" || a.Repeat != i {
			t.Errorf("hold %d: expected nav_up #%d, got %+v (ok=%v)", i, i, a, ok)
		}
	}
}

func TestContextStore(t *testing.T) {
	s := NewContextStore("")
	if got := s.Get().Mode; got != DefaultMode {
		t.Errorf("expected %q, got %q", DefaultMode, got)
	}
	s.SetMode("player")
	if got := s.Get().Mode; got != "player" {
		t.Errorf("expected player, got %q", got)
	}
	s.SetMode("")
	if got := s.Get().Mode; got != DefaultMode {
		t.Errorf("expected empty mode to select %q, got %q", DefaultMode, got)
	}
}
