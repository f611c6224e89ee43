// Package router maps InputEvents to UI actions according to the current UI
// mode and the press policy of each key.
//
// Triggers are key names ("KEY_OK", "ROTARY_CW", "SWIPE_LEFT"); appending
// ":long" ("KEY_OK:long") binds the long-press variant of a key. A key with
// a long binding fires its short action on release before the long-press
// threshold and its long action when the threshold expires while held. Keys
// listed as repeating fire on press and then every repeat interval once the
// threshold has passed.
package router

import (
	"log/slog"
	"sort"
	"time"

	"olinput/internal/input"
)

// LongSuffix marks a long-press trigger.
const LongSuffix = ":long"

// Action is the router's output: a named UI intent.
type Action struct {
	Name   string       `json:"name"`
	Key    string       `json:"key"`
	Source input.Source `json:"source"`
	Mode   string       `json:"mode"`
	At     time.Time    `json:"at"`
	Repeat int          `json:"repeat,omitempty"`
	Long   bool         `json:"long,omitempty"`
}

// Config is the router's immutable binding table and press policy.
type Config struct {
	// Bindings maps mode -> trigger -> action name.
	Bindings map[string]map[string]string

	// Repeat lists keys that auto-repeat while held.
	Repeat []string

	LongPress      time.Duration
	RepeatInterval time.Duration
}

// irPress tracks an IR key across its repeat frames.
type irPress struct {
	since    time.Time
	longDone bool
}

type held struct {
	source input.Source
	mode   string
	since  time.Time

	short string
	long  string

	longDue  bool
	longDone bool

	repeating  bool
	repeatName string
	repeats    int
}

// Router is owned by the consumer goroutine; it is not safe for concurrent
// use.
type Router struct {
	cfg    Config
	repeat map[string]bool
	held   map[string]*held
	irHeld map[string]*irPress
	log    *slog.Logger
	stats  *input.Stats
}

// New creates a router.
func New(cfg Config, log *slog.Logger, stats *input.Stats) *Router {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if stats == nil {
		stats = new(input.Stats)
	}
	if cfg.RepeatInterval <= 0 {
		cfg.RepeatInterval = cfg.LongPress
	}
	rep := make(map[string]bool, len(cfg.Repeat))
	for _, k := range cfg.Repeat {
		rep[k] = true
	}
	return &Router{
		cfg:    cfg,
		repeat: rep,
		held:   make(map[string]*held),
		irHeld: make(map[string]*irPress),
		log:    log,
		stats:  stats,
	}
}

// Lookup resolves a trigger in mode, falling back to DefaultMode.
func (r *Router) Lookup(mode, trigger string) (string, bool) {
	if name, ok := r.cfg.Bindings[mode][trigger]; ok {
		return name, true
	}
	name, ok := r.cfg.Bindings[DefaultMode][trigger]
	return name, ok
}

func (r *Router) action(ev input.InputEvent, mode, name string, at time.Time) Action {
	return Action{Name: name, Key: ev.Key, Source: ev.Source, Mode: mode, At: at}
}

func (r *Router) drop(ev input.InputEvent, mode, reason string) (Action, bool) {
	r.stats.Unmapped.Add(1)
	r.log.Debug("input event dropped", "event", ev.String(), "mode", mode, "reason", reason)
	return Action{}, false
}

// Route maps one event. Events that produce nothing now (an unbound key, a
// press whose action is decided later) return false.
func (r *Router) Route(ev input.InputEvent, ctx Context) (Action, bool) {
	mode := ctx.Mode
	if mode == "" {
		mode = DefaultMode
	}
	short, hasShort := r.Lookup(mode, ev.Key)
	long, hasLong := r.Lookup(mode, ev.Key+LongSuffix)

	switch ev.Kind {
	case input.KindPress:
		if ev.Source == input.SourceIR {
			// No release exists for IR; the long variant is reached
			// through repeat frames instead.
			clear(r.irHeld)
			r.irHeld[ev.Key] = &irPress{since: ev.At}
			if !hasShort {
				return r.drop(ev, mode, "unbound")
			}
			return r.action(ev, mode, short, ev.At), true
		}
		return r.press(ev, mode, short, hasShort, long, hasLong)

	case input.KindRelease:
		h := r.held[ev.Key]
		if h == nil {
			return Action{}, false
		}
		delete(r.held, ev.Key)
		if h.longDue && !h.longDone && h.short != "" {
			return r.action(ev, h.mode, h.short, ev.At), true
		}
		return Action{}, false

	case input.KindRepeat:
		if r.repeat[ev.Key] && hasShort {
			a := r.action(ev, mode, short, ev.At)
			a.Repeat = ev.Repeat
			return a, true
		}
		p := r.irHeld[ev.Key]
		if hasLong && p != nil && !p.longDone && ev.At.Sub(p.since) >= r.cfg.LongPress {
			p.longDone = true
			a := r.action(ev, mode, long, ev.At)
			a.Long = true
			return a, true
		}
		return Action{}, false

	case input.KindHold:
		if ev.Repeat == 0 && hasLong {
			a := r.action(ev, mode, long, ev.At)
			a.Long = true
			return a, true
		}
		if !hasShort {
			if !hasLong {
				return r.drop(ev, mode, "unbound")
			}
			return Action{}, false
		}
		if ev.Repeat > 0 && !r.repeat[ev.Key] {
			return Action{}, false
		}
		a := r.action(ev, mode, short, ev.At)
		a.Repeat = ev.Repeat
		return a, true

	case input.KindStep, input.KindTap, input.KindSwipe:
		if !hasShort {
			return r.drop(ev, mode, "unbound")
		}
		a := r.action(ev, mode, short, ev.At)
		a.Repeat = ev.Repeat
		return a, true
	}
	return r.drop(ev, mode, "unknown kind")
}

// Handle expires timers up to ev.At and then routes ev, so a long press
// that fell due before a release is reported ahead of it.
func (r *Router) Handle(ev input.InputEvent, ctx Context) []Action {
	out := r.Expire(ev.At, ctx)
	if a, ok := r.Route(ev, ctx); ok {
		out = append(out, a)
	}
	return out
}

func (r *Router) press(ev input.InputEvent, mode, short string, hasShort bool, long string, hasLong bool) (Action, bool) {
	if !hasShort && !hasLong {
		return r.drop(ev, mode, "unbound")
	}
	if r.held[ev.Key] != nil {
		// A second press of an already-held key (two buttons, one key):
		// keep the first hold.
		return r.drop(ev, mode, "already held")
	}
	h := &held{source: ev.Source, mode: mode, since: ev.At}
	r.held[ev.Key] = h

	if hasLong {
		h.longDue = r.cfg.LongPress > 0
		h.long = long
		h.short = short
		if !h.longDue && hasShort {
			return r.action(ev, mode, short, ev.At), true
		}
		return Action{}, false
	}
	if r.repeat[ev.Key] && r.cfg.LongPress > 0 {
		h.repeating = true
		h.repeatName = short
	}
	return r.action(ev, mode, short, ev.At), true
}

func (r *Router) nextDue(h *held) (time.Time, bool) {
	switch {
	case h.longDue && !h.longDone:
		return h.since.Add(r.cfg.LongPress), true
	case h.repeating:
		return h.since.Add(r.cfg.LongPress + time.Duration(h.repeats)*r.cfg.RepeatInterval), true
	}
	return time.Time{}, false
}

// Expire fires long-press and repeat actions that fell due by now. Each
// action is stamped with its scheduled time. Holds that began in another
// mode than ctx's are disarmed instead: the screen they were meant for is
// gone.
func (r *Router) Expire(now time.Time, ctx Context) []Action {
	mode := ctx.Mode
	if mode == "" {
		mode = DefaultMode
	}
	keys := make([]string, 0, len(r.held))
	for k := range r.held {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []Action
	for _, key := range keys {
		h := r.held[key]
		if h.mode != mode {
			h.longDue, h.repeating, h.short = false, false, ""
			continue
		}
		for {
			at, ok := r.nextDue(h)
			if !ok || at.After(now) {
				break
			}
			ev := input.InputEvent{Source: h.source, Key: key}
			if h.longDue && !h.longDone {
				h.longDone = true
				a := r.action(ev, h.mode, h.long, at)
				a.Long = true
				out = append(out, a)
				continue
			}
			h.repeats++
			a := r.action(ev, h.mode, h.repeatName, at)
			a.Repeat = h.repeats
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// NextDeadline returns when Expire will next have work.
func (r *Router) NextDeadline() (time.Time, bool) {
	var next time.Time
	found := false
	for _, h := range r.held {
		at, ok := r.nextDue(h)
		if ok && (!found || at.Before(next)) {
			next = at
			found = true
		}
	}
	return next, found
}

// Reset forgets held keys.
func (r *Router) Reset() {
	r.held = make(map[string]*held)
	r.irHeld = make(map[string]*irPress)
}
