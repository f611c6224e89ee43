package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"olinput/internal/input"
	"olinput/internal/router"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "olinput.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if errs := cfg.ValidateSources(); len(errs) != 0 {
		t.Fatalf("expected no source errors with every source disabled, got %v", errs)
	}

	cfg.Buttons.Enabled = true
	cfg.Buttons.Pins = []ButtonPin{{Pin: 17, Key: "KEY_OK"}}
	cfg.Rotary.Enabled = true
	cfg.Rotary.Encoders = []EncoderPins{{PinA: 5, PinB: 6}}
	cfg.IR.Enabled = true
	cfg.Touch.Enabled = true
	if errs := cfg.ValidateSources(); len(errs) != 0 {
		t.Fatalf("expected enabled defaults to validate, got %v", errs)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
buttons:
  enabled: true
  pins:
    - {pin: 17, key: KEY_OK}
    - {pin: 27, key: KEY_BACK, active_high: true}
ir:
  enabled: true
  keymap:
    "0x00FF18E7": KEY_UP
  remap:
    KEY_ENTER: KEY_OK
router:
  bindings:
    player:
      ROTARY_CW: volume_up
logging:
  level: debug
`)
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(cfg.Buttons.Pins) != 2 || !cfg.Buttons.Pins[1].ActiveHigh {
		t.Errorf("expected two buttons with the second active high, got %+v", cfg.Buttons.Pins)
	}
	if cfg.Buttons.DebounceMS != 20 {
		t.Errorf("expected default debounce to survive, got %d", cfg.Buttons.DebounceMS)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug, got %q", cfg.Logging.Level)
	}
	if cfg.Router.Bindings["player"]["ROTARY_CW"] != "volume_up" {
		t.Errorf("expected player binding, got %v", cfg.Router.Bindings)
	}

	km := cfg.Keymap()
	if got := km.IRKey(0x00FF18E7); got != "KEY_UP" {
		t.Errorf("expected KEY_UP, got %q", got)
	}
	if got := km.ButtonKey(27); got != "KEY_BACK" {
		t.Errorf("expected KEY_BACK, got %q", got)
	}
}

func TestLoadConfigFile_RejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "buttons:\n  enabled: true\n  debounce: 20\n")
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadConfigFile_RejectsTrailingDocument(t *testing.T) {
	for name, doc := range map[string]string{
		"known keys":   "logging:\n  level: info\n---\nlogging:\n  level: debug\n",
		"unknown keys": "logging:\n  level: info\n---\nbogus: 1\n",
		"scalar":       "logging:\n  level: info\n---\n42\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfigFile(writeConfig(t, doc))
			if err == nil || !strings.Contains(err.Error(), "trailing document") {
				t.Fatalf("expected trailing document error, got %v", err)
			}
		})
	}
}

func TestLoadConfigFile_TrailingCommentsAllowed(t *testing.T) {
	cfg, err := LoadConfigFile(writeConfig(t, "logging:\n  level: debug\n# end of file\n\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %q", cfg.Logging.Level)
	}
}

func TestLoadConfigFile_EmptyPath(t *testing.T) {
	if _, err := LoadConfigFile(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestFlagOverrides(t *testing.T) {
	cfg := DefaultConfig()
	backend := BackendPeriph
	level := "warn"
	touch := true
	socket := ""
	FlagOverrides{GPIOBackend: &backend, LogLevel: &level, UseTouch: &touch, IPCSocketPath: &socket}.Apply(&cfg)

	if cfg.GPIO.Backend != BackendPeriph || cfg.Logging.Level != "warn" || !cfg.Touch.Enabled {
		t.Errorf("expected overrides applied, got %+v %+v %+v", cfg.GPIO, cfg.Logging, cfg.Touch.Enabled)
	}
	if cfg.IPC.SocketPath != "" {
		t.Errorf("expected zero-value override applied")
	}
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected empty socket path to fail validation")
	}

	FlagOverrides{}.Apply(nil)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"tick", func(c *Config) { c.Pipeline.TickHz = 0 }, "pipeline.tick_hz"},
		{"queue", func(c *Config) { c.Pipeline.QueueCapacity = 0 }, "pipeline.queue_capacity"},
		{"long press", func(c *Config) { c.Router.LongPressMS = -1 }, "router.long_press_ms"},
		{"empty action", func(c *Config) { c.Router.Bindings[router.DefaultMode]["KEY_X"] = "" }, "empty action"},
		{"stream path", func(c *Config) { c.Stream.Path = "actions" }, "stream.path"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"terminal key", func(c *Config) {
			c.Terminal.Enabled = true
			c.Terminal.Keys = map[string]string{"up": "KEY_UP"}
		}, "single character"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateSources_IsolatesFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Buttons.Enabled = true
	cfg.Buttons.Pins = []ButtonPin{{Pin: 17, Key: "KEY_OK"}, {Pin: 17, Key: "KEY_BACK"}}
	cfg.Rotary.Enabled = true
	cfg.Rotary.Encoders = []EncoderPins{{PinA: 5, PinB: 6}}
	cfg.IR.Enabled = true
	cfg.IR.Timing.TolerancePct = 60
	cfg.Touch.Enabled = true
	cfg.Touch.ReleaseThreshold = 25

	errs := cfg.ValidateSources()
	for _, src := range []input.Source{input.SourceButton, input.SourceIR, input.SourceTouch} {
		err, ok := errs[src]
		if !ok {
			t.Errorf("expected a %s configuration error", src)
			continue
		}
		if !errors.Is(err, input.ErrConfiguration) {
			t.Errorf("expected %s error to wrap ErrConfiguration, got %v", src, err)
		}
		var se *input.SourceError
		if !errors.As(err, &se) || se.Source != src {
			t.Errorf("expected SourceError for %s, got %v", src, err)
		}
	}
	if err, ok := errs[input.SourceRotary]; ok {
		t.Errorf("expected rotary to stay valid, got %v", err)
	}

	if gpio := cfg.GPIOConfig(input.SourceButton, errs); !gpio.Empty() {
		t.Errorf("expected failed button source to contribute no lines, got %+v", gpio)
	}
	if gpio := cfg.GPIOConfig(input.SourceRotary, errs); len(gpio.Encoders) != 1 || gpio.Encoders[0].PinA != 5 {
		t.Errorf("expected the encoder to be kept, got %+v", gpio.Encoders)
	}
}

func TestValidateSources_Cases(t *testing.T) {
	tests := []struct {
		name   string
		src    input.Source
		mutate func(*Config)
	}{
		{"backend", input.SourceButton, func(c *Config) { c.GPIO.Backend = "sysfs" }},
		{"pull", input.SourceButton, func(c *Config) { c.Buttons.Pull = "sideways" }},
		{"no pins", input.SourceButton, func(c *Config) { c.Buttons.Pins = nil }},
		{"divider", input.SourceRotary, func(c *Config) { c.Rotary.Divider = 0 }},
		{"same pins", input.SourceRotary, func(c *Config) { c.Rotary.Encoders = []EncoderPins{{PinA: 5, PinB: 5}} }},
		{"ir backend", input.SourceIR, func(c *Config) { c.IR.Backend = "evdev" }},
		{"ir rpio", input.SourceIR, func(c *Config) {
			c.IR.Backend = IRBackendGPIO
			c.GPIO.Backend = BackendRPIO
		}},
		{"ir bits", input.SourceIR, func(c *Config) { c.IR.Timing.Bits = 40 }},
		{"ir keymap", input.SourceIR, func(c *Config) { c.IR.Keymap = map[string]string{"zz": "KEY_UP"} }},
		{"ir spaces", input.SourceIR, func(c *Config) { c.IR.Timing.ZeroSpaceUS = 1700 }},
		{"touch address", input.SourceTouch, func(c *Config) { c.Touch.I2CAddress = 0x80 }},
		{"touch electrode", input.SourceTouch, func(c *Config) { c.Touch.Pads = []TouchPad{{Electrode: 12, Key: "KEY_OK"}} }},
		{"touch position", input.SourceTouch, func(c *Config) {
			x := 1.0
			c.Touch.Pads = []TouchPad{{Electrode: 0, Key: "KEY_OK", X: &x}}
		}},
		{"touch pad thresholds", input.SourceTouch, func(c *Config) {
			c.Touch.Pads = []TouchPad{{Electrode: 0, Key: "KEY_OK", Touch: 10, Release: 12}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Buttons.Enabled = true
			cfg.Buttons.Pins = []ButtonPin{{Pin: 17, Key: "KEY_OK"}}
			cfg.Rotary.Enabled = true
			cfg.Rotary.Encoders = []EncoderPins{{PinA: 5, PinB: 6}}
			cfg.IR.Enabled = true
			cfg.Touch.Enabled = true
			tt.mutate(&cfg)

			errs := cfg.ValidateSources()
			if _, ok := errs[tt.src]; !ok {
				t.Errorf("expected %s error, got %v", tt.src, errs)
			}
		})
	}
}

func TestRuntimeConversions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rotary.Encoders = []EncoderPins{{PinA: 5, PinB: 6}, {Name: "VOLUME", PinA: 7, PinB: 8}}
	cfg.Terminal.Enabled = true
	cfg.Terminal.Keys = map[string]string{"w": "KEY_UP", "e": "KEY_OK"}

	pc := cfg.PipelineConfig()
	if pc.ReorderWindow != 20*time.Millisecond {
		t.Errorf("expected reorder window to default to the scan interval, got %v", pc.ReorderWindow)
	}
	if p := pc.Debounce[input.SourceRotary]; !p.AdoptFirst || p.Window != 500*time.Microsecond {
		t.Errorf("expected rotary policy 500us adopt-first, got %+v", p)
	}
	if pc.Decoders.IR.LeaderMark != 9*time.Millisecond || pc.Decoders.IR.Bits != 32 {
		t.Errorf("expected NEC timing, got %+v", pc.Decoders.IR)
	}
	if len(pc.Decoders.Touch.Positions) != 5 {
		t.Errorf("expected the 5 cross pads positioned, got %d", len(pc.Decoders.Touch.Positions))
	}
	if got := pc.Keymap.RotaryKey(1, -1); got != "VOLUME_CCW" {
		t.Errorf("expected VOLUME_CCW, got %q", got)
	}
	if got := pc.Keymap.RotaryKey(0, 1); got != "ROTARY_CW" {
		t.Errorf("expected ROTARY_CW, got %q", got)
	}

	keys := cfg.TerminalKeys()
	if keys['e'] != TerminalChannelBase || keys['w'] != TerminalChannelBase+1 {
		t.Errorf("expected sorted terminal channels, got %v", keys)
	}
	if got := pc.Keymap.ButtonKey(TerminalChannelBase + 1); got != "KEY_UP" {
		t.Errorf("expected terminal channel named KEY_UP, got %q", got)
	}

	rc := cfg.RouterConfig()
	if rc.LongPress != 600*time.Millisecond || rc.RepeatInterval != 80*time.Millisecond {
		t.Errorf("expected 600ms/80ms, got %v/%v", rc.LongPress, rc.RepeatInterval)
	}
	rc.Bindings[router.DefaultMode]["KEY_OK"] = "changed"
	if cfg.Router.Bindings[router.DefaultMode]["KEY_OK"] != "select" {
		t.Errorf("expected router config to be a copy")
	}

	mc := cfg.MPR121Config()
	if mc.Touch != 20 || mc.Release != 15 || len(mc.Electrodes) != 12 {
		t.Errorf("expected 12 electrodes at 20/15, got %+v", mc)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandPath("~/olinput.yaml"); got != filepath.Join(home, "olinput.yaml") {
		t.Errorf("expected path under home, got %q", got)
	}
	if got := ExpandPath("/etc/olinput.yaml"); got != "/etc/olinput.yaml" {
		t.Errorf("expected absolute path unchanged, got %q", got)
	}
}

func TestGPIOConfig_SplitsBySource(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Buttons.Enabled = true
	cfg.Buttons.Pins = []ButtonPin{{Pin: 17, Key: "KEY_OK"}, {Pin: 27, Key: "KEY_BACK"}}
	cfg.IR.Enabled = true
	cfg.IR.Backend = IRBackendGPIO
	cfg.IR.Pin = 18
	cfg.Rotary.Enabled = true
	cfg.Rotary.Encoders = []EncoderPins{{PinA: 5, PinB: 6}}

	buttons := cfg.GPIOConfig(input.SourceButton, nil)
	if len(buttons.Lines) != 2 || len(buttons.Encoders) != 0 {
		t.Errorf("expected only the two button lines, got %+v", buttons)
	}
	for _, l := range buttons.Lines {
		if l.Source != input.SourceButton {
			t.Errorf("expected button line, got %v", l.Source)
		}
	}
	ir := cfg.GPIOConfig(input.SourceIR, nil)
	if len(ir.Lines) != 1 || ir.Lines[0].Pin != 18 || ir.Lines[0].Source != input.SourceIR || len(ir.Encoders) != 0 {
		t.Errorf("expected only the IR line, got %+v", ir)
	}
	rotary := cfg.GPIOConfig(input.SourceRotary, nil)
	if len(rotary.Lines) != 0 || len(rotary.Encoders) != 1 {
		t.Errorf("expected only the encoder, got %+v", rotary)
	}
	if touch := cfg.GPIOConfig(input.SourceTouch, nil); !touch.Empty() {
		t.Errorf("expected touch to have no gpio lines, got %+v", touch)
	}
}
