package config

import (
	"sort"
	"time"

	"olinput/internal/debounce"
	"olinput/internal/decoder"
	"olinput/internal/dispatch"
	"olinput/internal/input"
	"olinput/internal/pipeline"
	"olinput/internal/router"
	"olinput/internal/sampler"
)

// TerminalChannelBase is the first button channel used by terminal keys,
// clear of any GPIO pin number.
const TerminalChannelBase = 1000

func msec(n int) time.Duration { return time.Duration(n) * time.Millisecond }
func usec(n int) time.Duration { return time.Duration(n) * time.Microsecond }

// DebouncePolicies returns the per-source debounce windows.
func (c *Config) DebouncePolicies() map[input.Source]debounce.Policy {
	return map[input.Source]debounce.Policy{
		input.SourceIR:     {Window: usec(c.IR.DebounceUS)},
		input.SourceButton: {Window: msec(c.Buttons.DebounceMS)},
		input.SourceRotary: {Window: usec(c.Rotary.DebounceUS), AdoptFirst: true},
		input.SourceTouch:  {Window: msec(c.Touch.DebounceMS)},
	}
}

// IRTiming converts the timing table.
func (c *Config) IRTiming() decoder.IRTiming {
	t := c.IR.Timing
	return decoder.IRTiming{
		LeaderMark:    usec(t.LeaderMarkUS),
		LeaderSpace:   usec(t.LeaderSpaceUS),
		RepeatSpace:   usec(t.RepeatSpaceUS),
		BitMark:       usec(t.BitMarkUS),
		ZeroSpace:     usec(t.ZeroSpaceUS),
		OneSpace:      usec(t.OneSpaceUS),
		Bits:          t.Bits,
		Tolerance:     t.TolerancePct,
		CheckInverse:  t.CheckInverse,
		RepeatTimeout: msec(t.RepeatTimeoutMS),
		FrameTimeout:  msec(t.FrameTimeoutMS),
	}
}

// DecoderConfig converts the decoder settings.
func (c *Config) DecoderConfig() decoder.Config {
	positions := make(map[int]decoder.Point)
	for _, p := range c.Touch.Pads {
		if p.X != nil && p.Y != nil {
			positions[p.Electrode] = decoder.Point{X: *p.X, Y: *p.Y}
		}
	}
	return decoder.Config{
		IR: c.IRTiming(),
		Rotary: decoder.RotaryConfig{
			Divider:        c.Rotary.Divider,
			Invert:         c.Rotary.Invert,
			VelocityWindow: msec(c.Rotary.VelocityWindowMS),
		},
		Touch: decoder.TouchConfig{
			Positions:     positions,
			HoldThreshold: msec(c.Touch.HoldMS),
			HoldRepeat:    msec(c.Touch.HoldRepeatMS),
			Distance:      c.Touch.Distance,
			SwipeWindow:   msec(c.Touch.SwipeWindowMS),
		},
	}
}

// Keymap builds the key names of every configured input. Unparsable IR
// codes are skipped; ValidateSources reports them.
func (c *Config) Keymap() dispatch.Keymap {
	km := dispatch.Keymap{
		Buttons:    make(map[int]string),
		IR:         make(map[uint32]string),
		Remap:      make(map[string]string),
		Electrodes: make(map[int]string),
		Encoders:   make(map[int]string),
	}
	for _, p := range c.Buttons.Pins {
		km.Buttons[p.Pin] = p.Key
	}
	for ch, name := range c.terminalNames() {
		km.Buttons[ch] = name
	}
	for code, name := range c.IR.Keymap {
		if v, err := ParseIRCode(code); err == nil {
			km.IR[v] = name
		}
	}
	for from, to := range c.IR.Remap {
		km.Remap[from] = to
	}
	for _, p := range c.Touch.Pads {
		km.Electrodes[p.Electrode] = p.Key
	}
	for i, e := range c.Rotary.Encoders {
		if e.Name != "" {
			km.Encoders[i] = e.Name
		}
	}
	return km
}

// ScanInterval is the touch scan period.
func (c *Config) ScanInterval() time.Duration {
	return msec(c.Touch.ScanIntervalMS)
}

// ReorderWindow is the configured window, or one touch scan.
func (c *Config) ReorderWindow() time.Duration {
	if c.Pipeline.ReorderWindowMS > 0 {
		return msec(c.Pipeline.ReorderWindowMS)
	}
	return c.ScanInterval()
}

// PipelineConfig converts the pipeline settings.
func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		Debounce:      c.DebouncePolicies(),
		Decoders:      c.DecoderConfig(),
		Keymap:        c.Keymap(),
		ReorderWindow: c.ReorderWindow(),
		TickHz:        c.Pipeline.TickHz,
	}
}

// RouterConfig converts the router settings.
func (c *Config) RouterConfig() router.Config {
	bindings := make(map[string]map[string]string, len(c.Router.Bindings))
	for mode, table := range c.Router.Bindings {
		m := make(map[string]string, len(table))
		for trigger, action := range table {
			m[trigger] = action
		}
		bindings[mode] = m
	}
	return router.Config{
		Bindings:       bindings,
		Repeat:         append([]string(nil), c.Router.Repeat...),
		LongPress:      msec(c.Router.LongPressMS),
		RepeatInterval: msec(c.Router.RepeatMS),
	}
}

// GPIOConfig lists the GPIO lines of src. It is empty when src is
// disabled, not wired to GPIO, or in skip (the result of ValidateSources).
// Each source gets its own sampler so a line that cannot be requested only
// takes down its own source.
func (c *Config) GPIOConfig(src input.Source, skip map[input.Source]error) sampler.GPIOConfig {
	out := sampler.GPIOConfig{
		Chip:         c.GPIO.Chip,
		PollInterval: usec(c.GPIO.PollIntervalUS),
	}
	if skip[src] != nil {
		return out
	}
	switch src {
	case input.SourceButton:
		if !c.Buttons.Enabled {
			break
		}
		pull, _ := sampler.ParsePull(c.Buttons.Pull)
		for _, p := range c.Buttons.Pins {
			out.Lines = append(out.Lines, sampler.Line{
				Source:     input.SourceButton,
				Channel:    p.Pin,
				Pin:        p.Pin,
				ActiveHigh: p.ActiveHigh,
				Pull:       pull,
			})
		}
	case input.SourceIR:
		if !c.IR.Enabled || c.IR.Backend != IRBackendGPIO {
			break
		}
		out.Lines = append(out.Lines, sampler.Line{
			Source:     input.SourceIR,
			Pin:        c.IR.Pin,
			ActiveHigh: c.IR.ActiveHigh,
			Pull:       sampler.PullUp,
		})
	case input.SourceRotary:
		if !c.Rotary.Enabled {
			break
		}
		pull, _ := sampler.ParsePull(c.Rotary.Pull)
		for i, e := range c.Rotary.Encoders {
			out.Encoders = append(out.Encoders, sampler.Encoder{
				Channel: i,
				PinA:    e.PinA,
				PinB:    e.PinB,
				Pull:    pull,
			})
		}
	}
	return out
}

// MPR121Config converts the touch controller settings.
func (c *Config) MPR121Config() sampler.MPR121Config {
	out := sampler.MPR121Config{
		Touch:   uint8(c.Touch.TouchThreshold),
		Release: uint8(c.Touch.ReleaseThreshold),
	}
	for _, p := range c.Touch.Pads {
		out.Electrodes = append(out.Electrodes, sampler.MPR121Electrode{
			Electrode: p.Electrode,
			Touch:     uint8(p.Touch),
			Release:   uint8(p.Release),
		})
	}
	return out
}

func (c *Config) terminalChars() []string {
	if !c.Terminal.Enabled {
		return nil
	}
	chars := make([]string, 0, len(c.Terminal.Keys))
	for k := range c.Terminal.Keys {
		if len(k) == 1 {
			chars = append(chars, k)
		}
	}
	sort.Strings(chars)
	return chars
}

func (c *Config) terminalNames() map[int]string {
	out := make(map[int]string)
	for i, k := range c.terminalChars() {
		out[TerminalChannelBase+i] = c.Terminal.Keys[k]
	}
	return out
}

// TerminalKeys maps each terminal character to its button channel.
func (c *Config) TerminalKeys() map[byte]int {
	out := make(map[byte]int)
	for i, k := range c.terminalChars() {
		out[k[0]] = TerminalChannelBase + i
	}
	return out
}
