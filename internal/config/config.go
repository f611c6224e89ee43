// Package config loads the olinputd YAML configuration.
//
// Defaults and validation live here so the rest of the code can assume a
// well-formed config. The file is the primary configuration surface; flags
// only override a few values.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"olinput/internal/input"
	"olinput/internal/router"
	"olinput/internal/sampler"
)

// Config is the top-level YAML configuration.
type Config struct {
	GPIO     GPIOConfig     `yaml:"gpio"`
	Buttons  ButtonsConfig  `yaml:"buttons"`
	Rotary   RotaryConfig   `yaml:"rotary"`
	IR       IRConfig       `yaml:"ir"`
	Touch    TouchConfig    `yaml:"touch"`
	Terminal TerminalConfig `yaml:"terminal"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Router   RouterConfig   `yaml:"router"`
	IPC      IPCConfig      `yaml:"ipc"`
	Stream   StreamConfig   `yaml:"stream"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GPIO backends.
const (
	BackendGPIOCdev = "gpiocdev"
	BackendPeriph   = "periph"
	BackendRPIO     = "rpio"
)

// IR backends.
const (
	IRBackendLIRC = "lirc"
	IRBackendGPIO = "gpio"
)

type GPIOConfig struct {
	Backend string `yaml:"backend"` // gpiocdev | periph | rpio
	Chip    string `yaml:"chip"`    // gpiocdev only

	// PollIntervalUS is the scan period of the rpio backend.
	PollIntervalUS int `yaml:"poll_interval_us"`
}

type ButtonsConfig struct {
	Enabled    bool        `yaml:"enabled"`
	DebounceMS int         `yaml:"debounce_ms"`
	Pull       string      `yaml:"pull"`
	Pins       []ButtonPin `yaml:"pins"`
}

// ButtonPin is one push button. The pin number doubles as the button
// channel.
type ButtonPin struct {
	Pin        int    `yaml:"pin"`
	Key        string `yaml:"key"`
	ActiveHigh bool   `yaml:"active_high,omitempty"`
}

type RotaryConfig struct {
	Enabled          bool          `yaml:"enabled"`
	DebounceUS       int           `yaml:"debounce_us"`
	Divider          int           `yaml:"divider"`
	Invert           bool          `yaml:"invert"`
	VelocityWindowMS int           `yaml:"velocity_window_ms"`
	Pull             string        `yaml:"pull"`
	Encoders         []EncoderPins `yaml:"encoders"`
}

// EncoderPins is one quadrature encoder. Name prefixes the step keys
// (<name>_CW / <name>_CCW); the first encoder defaults to ROTARY. The push
// button of an encoder is an ordinary entry under buttons.pins.
type EncoderPins struct {
	Name string `yaml:"name,omitempty"`
	PinA int    `yaml:"pin_a"`
	PinB int    `yaml:"pin_b"`
}

type IRConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Backend    string `yaml:"backend"` // lirc | gpio
	Device     string `yaml:"device"`  // lirc only
	Pin        int    `yaml:"pin"`     // gpio only
	ActiveHigh bool   `yaml:"active_high,omitempty"`
	DebounceUS int    `yaml:"debounce_us"`

	Timing IRTimingConfig `yaml:"timing"`

	// Keymap maps hex codes ("0x00FF18E7") to remote key names.
	Keymap map[string]string `yaml:"keymap"`

	// Remap translates remote key names to logical keys.
	Remap map[string]string `yaml:"remap,omitempty"`
}

// IRTimingConfig is the pulse-distance timing table. The defaults are NEC.
type IRTimingConfig struct {
	LeaderMarkUS    int  `yaml:"leader_mark_us"`
	LeaderSpaceUS   int  `yaml:"leader_space_us"`
	RepeatSpaceUS   int  `yaml:"repeat_space_us"`
	BitMarkUS       int  `yaml:"bit_mark_us"`
	ZeroSpaceUS     int  `yaml:"zero_space_us"`
	OneSpaceUS      int  `yaml:"one_space_us"`
	Bits            int  `yaml:"bits"`
	TolerancePct    int  `yaml:"tolerance_pct"`
	CheckInverse    bool `yaml:"check_inverse"`
	RepeatTimeoutMS int  `yaml:"repeat_timeout_ms"`
	FrameTimeoutMS  int  `yaml:"frame_timeout_ms"`
}

type TouchConfig struct {
	Enabled        bool   `yaml:"enabled"`
	I2CBus         string `yaml:"i2c_bus"`
	I2CAddress     int    `yaml:"i2c_address"`
	ScanIntervalMS int    `yaml:"scan_interval_ms"`
	DebounceMS     int    `yaml:"debounce_ms"`

	TouchThreshold   int `yaml:"touch_threshold"`
	ReleaseThreshold int `yaml:"release_threshold"`

	Pads []TouchPad `yaml:"pads"`

	HoldMS        int     `yaml:"hold_ms"`
	HoldRepeatMS  int     `yaml:"hold_repeat_ms"`
	SwipeWindowMS int     `yaml:"swipe_window_ms"`
	Distance      float64 `yaml:"distance"`
}

// TouchPad is one electrode. Pads with a position take part in swipe
// detection; zero thresholds use the touch section's.
type TouchPad struct {
	Electrode int      `yaml:"electrode"`
	Key       string   `yaml:"key"`
	X         *float64 `yaml:"x,omitempty"`
	Y         *float64 `yaml:"y,omitempty"`
	Touch     int      `yaml:"touch_threshold,omitempty"`
	Release   int      `yaml:"release_threshold,omitempty"`
}

// TerminalConfig turns a tty into a button source for bench testing.
type TerminalConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Device    string `yaml:"device"`
	ReleaseMS int    `yaml:"release_ms"`

	// Keys maps a single typed character to a key name.
	Keys map[string]string `yaml:"keys"`
}

type PipelineConfig struct {
	TickHz           int `yaml:"tick_hz"`
	QueueCapacity    int `yaml:"queue_capacity"`
	RawQueueCapacity int `yaml:"raw_queue_capacity"`

	// ReorderWindowMS holds events for slower sources; 0 uses the touch
	// scan interval.
	ReorderWindowMS int `yaml:"reorder_window_ms"`
}

type RouterConfig struct {
	LongPressMS int      `yaml:"long_press_ms"`
	RepeatMS    int      `yaml:"repeat_ms"`
	Repeat      []string `yaml:"repeat"`
	InitialMode string   `yaml:"initial_mode"`

	// Bindings maps mode -> trigger -> action name. A trigger is a key
	// name, optionally suffixed with ":long".
	Bindings map[string]map[string]string `yaml:"bindings"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type StreamConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Listen          string `yaml:"listen"`
	Path            string `yaml:"path"`
	StatsIntervalMS int    `yaml:"stats_interval_ms"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func ptr(f float64) *float64 { return &f }

// DefaultPads is the joystick-cross layout: electrodes 0-4 form the cross
// (up, right, down, left, centre), the rest are plain keys.
func DefaultPads() []TouchPad {
	return []TouchPad{
		{Electrode: 0, Key: "KEY_UP", X: ptr(0), Y: ptr(-1)},
		{Electrode: 1, Key: "KEY_RIGHT", X: ptr(1), Y: ptr(0)},
		{Electrode: 2, Key: "KEY_DOWN", X: ptr(0), Y: ptr(1)},
		{Electrode: 3, Key: "KEY_LEFT", X: ptr(-1), Y: ptr(0)},
		{Electrode: 4, Key: "KEY_OK", X: ptr(0), Y: ptr(0)},
		{Electrode: 5, Key: "KEY_BACK"},
		{Electrode: 6, Key: "KEY_CHANNELUP"},
		{Electrode: 7, Key: "KEY_CHANNELDOWN"},
		{Electrode: 8, Key: "KEY_PLAY"},
		{Electrode: 9, Key: "KEY_INFO"},
		{Electrode: 10, Key: "KEY_STOP"},
		{Electrode: 11, Key: "KEY_POWER"},
	}
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		GPIO: GPIOConfig{
			Backend:        BackendGPIOCdev,
			Chip:           "gpiochip0",
			PollIntervalUS: 1000,
		},
		Buttons: ButtonsConfig{
			Enabled:    false,
			DebounceMS: 20,
			Pull:       "up",
		},
		Rotary: RotaryConfig{
			Enabled:          false,
			DebounceUS:       500,
			Divider:          2,
			VelocityWindowMS: 150,
			Pull:             "up",
		},
		IR: IRConfig{
			Enabled: false,
			Backend: IRBackendLIRC,
			Device:  "/dev/lirc0",
			Timing: IRTimingConfig{
				LeaderMarkUS:    9000,
				LeaderSpaceUS:   4500,
				RepeatSpaceUS:   2250,
				BitMarkUS:       562,
				ZeroSpaceUS:     562,
				OneSpaceUS:      1687,
				Bits:            32,
				TolerancePct:    25,
				CheckInverse:    true,
				RepeatTimeoutMS: 150,
				FrameTimeoutMS:  20,
			},
		},
		Touch: TouchConfig{
			Enabled:          false,
			I2CBus:           "",
			I2CAddress:       sampler.MPR121Address,
			ScanIntervalMS:   20,
			DebounceMS:       30,
			TouchThreshold:   20,
			ReleaseThreshold: 15,
			Pads:             DefaultPads(),
			HoldMS:           500,
			HoldRepeatMS:     200,
			SwipeWindowMS:    800,
			Distance:         1,
		},
		Terminal: TerminalConfig{
			Enabled:   false,
			Device:    "/dev/tty",
			ReleaseMS: 150,
			Keys: map[string]string{
				"w": "KEY_UP",
				"s": "KEY_DOWN",
				"a": "KEY_LEFT",
				"d": "KEY_RIGHT",
				"e": "KEY_OK",
				"q": "KEY_BACK",
			},
		},
		Pipeline: PipelineConfig{
			TickHz:           200,
			QueueCapacity:    64,
			RawQueueCapacity: 512,
		},
		Router: RouterConfig{
			LongPressMS: 600,
			RepeatMS:    80,
			Repeat:      []string{"KEY_UP", "KEY_DOWN", "KEY_LEFT", "KEY_RIGHT"},
			InitialMode: router.DefaultMode,
			Bindings: map[string]map[string]string{
				router.DefaultMode: {
					"KEY_UP":          "up",
					"KEY_DOWN":        "down",
					"KEY_LEFT":        "left",
					"KEY_RIGHT":       "right",
					"KEY_OK":          "select",
					"KEY_OK:long":     "menu",
					"KEY_BACK":        "back",
					"KEY_PLAY":        "play_pause",
					"KEY_STOP":        "stop",
					"KEY_INFO":        "info",
					"KEY_CHANNELUP":   "next",
					"KEY_CHANNELDOWN": "previous",
					"KEY_POWER:long":  "power_off",
					"ROTARY_CW":       "down",
					"ROTARY_CCW":      "up",
					"SWIPE_LEFT":      "previous",
					"SWIPE_RIGHT":     "next",
					"SWIPE_UP":        "volume_up",
					"SWIPE_DOWN":      "volume_down",
				},
			},
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/olinput.sock",
		},
		Stream: StreamConfig{
			Enabled:         true,
			Listen:          "127.0.0.1:8787",
			Path:            "/actions",
			StatsIntervalMS: 5000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of the
// defaults. Unknown fields are rejected to catch typos.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace and comments may follow the document.
	if err := dec.Decode(new(yaml.Node)); !errors.Is(err, io.EOF) {
		if err != nil {
			return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document: %w", err)
		}
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds flag values to apply on top of a loaded config. A nil
// pointer means the flag was not set.
type FlagOverrides struct {
	GPIOBackend *string
	GPIOChip    *string

	IRDevice   *string
	TouchBus   *string
	UseTouch   *bool
	UseIR      *bool
	UseButtons *bool
	UseRotary  *bool

	TerminalEnabled *bool

	IPCSocketPath *string
	StreamListen  *string
	StreamEnabled *bool
	InitialMode   *string

	LogLevel *string
}

// Apply merges the overrides into cfg. A non-nil pointer is applied even if
// it holds the zero value.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.GPIOBackend != nil {
		cfg.GPIO.Backend = *o.GPIOBackend
	}
	if o.GPIOChip != nil {
		cfg.GPIO.Chip = *o.GPIOChip
	}

	if o.IRDevice != nil {
		cfg.IR.Device = *o.IRDevice
	}
	if o.TouchBus != nil {
		cfg.Touch.I2CBus = *o.TouchBus
	}
	if o.UseTouch != nil {
		cfg.Touch.Enabled = *o.UseTouch
	}
	if o.UseIR != nil {
		cfg.IR.Enabled = *o.UseIR
	}
	if o.UseButtons != nil {
		cfg.Buttons.Enabled = *o.UseButtons
	}
	if o.UseRotary != nil {
		cfg.Rotary.Enabled = *o.UseRotary
	}
	if o.TerminalEnabled != nil {
		cfg.Terminal.Enabled = *o.TerminalEnabled
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.StreamListen != nil {
		cfg.Stream.Listen = *o.StreamListen
	}
	if o.StreamEnabled != nil {
		cfg.Stream.Enabled = *o.StreamEnabled
	}
	if o.InitialMode != nil {
		cfg.Router.InitialMode = *o.InitialMode
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks the settings shared by every source. Problems confined to
// one source are reported by ValidateSources instead, so the other sources
// can still start.
func (c *Config) Validate() error {
	// Pipeline
	if c.Pipeline.TickHz <= 0 || c.Pipeline.TickHz > 10000 {
		return errors.New("pipeline.tick_hz must be between 1 and 10000")
	}
	if c.Pipeline.QueueCapacity <= 0 {
		return errors.New("pipeline.queue_capacity must be > 0")
	}
	if c.Pipeline.RawQueueCapacity <= 0 {
		return errors.New("pipeline.raw_queue_capacity must be > 0")
	}
	if c.Pipeline.ReorderWindowMS < 0 {
		return errors.New("pipeline.reorder_window_ms must be >= 0")
	}

	// Router
	if c.Router.LongPressMS < 0 {
		return errors.New("router.long_press_ms must be >= 0")
	}
	if c.Router.RepeatMS < 0 {
		return errors.New("router.repeat_ms must be >= 0")
	}
	if c.Router.InitialMode == "" {
		return errors.New("router.initial_mode must not be empty")
	}
	for mode, table := range c.Router.Bindings {
		if mode == "" {
			return errors.New("router.bindings has an empty mode name")
		}
		for trigger, action := range table {
			if trigger == "" || trigger == router.LongSuffix {
				return fmt.Errorf("router.bindings.%s has an empty trigger", mode)
			}
			if action == "" {
				return fmt.Errorf("router.bindings.%s.%s has an empty action", mode, trigger)
			}
		}
	}

	// Terminal
	if c.Terminal.Enabled {
		if c.Terminal.Device == "" {
			return errors.New("terminal.device must not be empty")
		}
		if c.Terminal.ReleaseMS <= 0 {
			return errors.New("terminal.release_ms must be > 0")
		}
		if len(c.Terminal.Keys) == 0 {
			return errors.New("terminal.keys must not be empty")
		}
		for k, name := range c.Terminal.Keys {
			if len(k) != 1 {
				return fmt.Errorf("terminal.keys: %q must be a single character", k)
			}
			if name == "" {
				return fmt.Errorf("terminal.keys.%s has an empty key name", k)
			}
		}
	}

	// IPC / stream
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}
	if c.Stream.Enabled {
		if c.Stream.Listen == "" {
			return errors.New("stream.listen must not be empty")
		}
		if !strings.HasPrefix(c.Stream.Path, "/") {
			return errors.New("stream.path must start with /")
		}
		if c.Stream.StatsIntervalMS < 0 {
			return errors.New("stream.stats_interval_ms must be >= 0")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "error", "warn", "warning", "info", "debug":
	default:
		return fmt.Errorf("logging.level %q is invalid (use error, warn, info, debug)", c.Logging.Level)
	}

	return nil
}

// ValidateSources checks each enabled source. The returned map holds one
// ErrConfiguration error per source that must not be started; sources that
// are disabled or valid are absent.
func (c *Config) ValidateSources() map[input.Source]error {
	errs := make(map[input.Source]error)
	for _, src := range input.Sources() {
		var err error
		switch src {
		case input.SourceIR:
			err = c.validateIR()
		case input.SourceButton:
			err = c.validateButtons()
		case input.SourceRotary:
			err = c.validateRotary()
		case input.SourceTouch:
			err = c.validateTouch()
		default:
			panic(fmt.Sprintf("config: unknown source %d", int(src)))
		}
		if err != nil {
			errs[src] = err
		}
	}
	return errs
}

func (c *Config) validateGPIOBackend(src input.Source) error {
	switch c.GPIO.Backend {
	case BackendGPIOCdev:
		if c.GPIO.Chip == "" {
			return input.ConfigError(src, "gpio.chip must not be empty")
		}
	case BackendPeriph:
	case BackendRPIO:
		if c.GPIO.PollIntervalUS <= 0 {
			return input.ConfigError(src, "gpio.poll_interval_us must be > 0")
		}
	default:
		return input.ConfigError(src, "gpio.backend must be %q, %q or %q", BackendGPIOCdev, BackendPeriph, BackendRPIO)
	}
	return nil
}

func (c *Config) validateButtons() error {
	if !c.Buttons.Enabled {
		return nil
	}
	const src = input.SourceButton
	if err := c.validateGPIOBackend(src); err != nil {
		return err
	}
	if c.Buttons.DebounceMS < 0 {
		return input.ConfigError(src, "buttons.debounce_ms must be >= 0")
	}
	if _, err := sampler.ParsePull(c.Buttons.Pull); err != nil {
		return input.ConfigError(src, "buttons.pull: %v", err)
	}
	if len(c.Buttons.Pins) == 0 {
		return input.ConfigError(src, "buttons.pins must not be empty")
	}
	seen := make(map[int]bool)
	for i, p := range c.Buttons.Pins {
		if p.Pin < 0 {
			return input.ConfigError(src, "buttons.pins[%d].pin must be >= 0", i)
		}
		if seen[p.Pin] {
			return input.ConfigError(src, "buttons.pins[%d]: pin %d used twice", i, p.Pin)
		}
		seen[p.Pin] = true
		if p.Key == "" {
			return input.ConfigError(src, "buttons.pins[%d].key must not be empty", i)
		}
	}
	return nil
}

func (c *Config) validateRotary() error {
	if !c.Rotary.Enabled {
		return nil
	}
	const src = input.SourceRotary
	if err := c.validateGPIOBackend(src); err != nil {
		return err
	}
	if c.Rotary.DebounceUS < 0 {
		return input.ConfigError(src, "rotary.debounce_us must be >= 0")
	}
	if c.Rotary.Divider < 1 {
		return input.ConfigError(src, "rotary.divider must be >= 1")
	}
	if c.Rotary.VelocityWindowMS < 0 {
		return input.ConfigError(src, "rotary.velocity_window_ms must be >= 0")
	}
	if _, err := sampler.ParsePull(c.Rotary.Pull); err != nil {
		return input.ConfigError(src, "rotary.pull: %v", err)
	}
	if len(c.Rotary.Encoders) == 0 {
		return input.ConfigError(src, "rotary.encoders must not be empty")
	}
	seen := make(map[int]bool)
	for i, e := range c.Rotary.Encoders {
		if e.PinA < 0 || e.PinB < 0 {
			return input.ConfigError(src, "rotary.encoders[%d] pins must be >= 0", i)
		}
		if e.PinA == e.PinB {
			return input.ConfigError(src, "rotary.encoders[%d]: pin_a and pin_b must differ", i)
		}
		for _, p := range []int{e.PinA, e.PinB} {
			if seen[p] {
				return input.ConfigError(src, "rotary.encoders[%d]: pin %d used twice", i, p)
			}
			seen[p] = true
		}
	}
	return nil
}

func (c *Config) validateIR() error {
	if !c.IR.Enabled {
		return nil
	}
	const src = input.SourceIR
	switch c.IR.Backend {
	case IRBackendLIRC:
		if c.IR.Device == "" {
			return input.ConfigError(src, "ir.device must not be empty")
		}
	case IRBackendGPIO:
		if c.GPIO.Backend == BackendRPIO {
			return input.ConfigError(src, "ir.backend gpio needs edge detection; gpio.backend rpio only polls")
		}
		if err := c.validateGPIOBackend(src); err != nil {
			return err
		}
		if c.IR.Pin < 0 {
			return input.ConfigError(src, "ir.pin must be >= 0")
		}
	default:
		return input.ConfigError(src, "ir.backend must be %q or %q", IRBackendLIRC, IRBackendGPIO)
	}
	if c.IR.DebounceUS < 0 {
		return input.ConfigError(src, "ir.debounce_us must be >= 0")
	}

	t := c.IR.Timing
	for _, d := range []struct {
		name string
		v    int
	}{
		{"leader_mark_us", t.LeaderMarkUS},
		{"leader_space_us", t.LeaderSpaceUS},
		{"repeat_space_us", t.RepeatSpaceUS},
		{"bit_mark_us", t.BitMarkUS},
		{"zero_space_us", t.ZeroSpaceUS},
		{"one_space_us", t.OneSpaceUS},
		{"repeat_timeout_ms", t.RepeatTimeoutMS},
		{"frame_timeout_ms", t.FrameTimeoutMS},
	} {
		if d.v <= 0 {
			return input.ConfigError(src, "ir.timing.%s must be > 0", d.name)
		}
	}
	if t.Bits < 1 || t.Bits > 32 {
		return input.ConfigError(src, "ir.timing.bits must be between 1 and 32")
	}
	if t.TolerancePct < 1 || t.TolerancePct >= 100 {
		return input.ConfigError(src, "ir.timing.tolerance_pct must be between 1 and 99")
	}
	if t.CheckInverse && t.Bits < 16 {
		return input.ConfigError(src, "ir.timing.check_inverse needs at least 16 bits")
	}
	if t.ZeroSpaceUS >= t.OneSpaceUS {
		return input.ConfigError(src, "ir.timing.zero_space_us must be < ir.timing.one_space_us")
	}
	// The decoder could not tell the spaces apart otherwise.
	if float64(t.ZeroSpaceUS)*(1+float64(t.TolerancePct)/100) >= float64(t.OneSpaceUS)*(1-float64(t.TolerancePct)/100) {
		return input.ConfigError(src, "ir.timing zero and one spaces overlap at %d%% tolerance", t.TolerancePct)
	}
	if frameUS := t.FrameTimeoutMS * 1000; frameUS <= t.LeaderMarkUS || frameUS <= t.LeaderSpaceUS {
		return input.ConfigError(src, "ir.timing.frame_timeout_ms must exceed the longest mark or space")
	}

	for code, name := range c.IR.Keymap {
		if _, err := ParseIRCode(code); err != nil {
			return input.ConfigError(src, "ir.keymap: %v", err)
		}
		if name == "" {
			return input.ConfigError(src, "ir.keymap.%s has an empty key name", code)
		}
	}
	for from, to := range c.IR.Remap {
		if from == "" || to == "" {
			return input.ConfigError(src, "ir.remap entries must not be empty")
		}
	}
	return nil
}

func (c *Config) validateTouch() error {
	if !c.Touch.Enabled {
		return nil
	}
	const src = input.SourceTouch
	if c.Touch.I2CAddress < 0x03 || c.Touch.I2CAddress > 0x77 {
		return input.ConfigError(src, "touch.i2c_address 0x%02X is not a 7-bit device address", c.Touch.I2CAddress)
	}
	if c.Touch.ScanIntervalMS <= 0 {
		return input.ConfigError(src, "touch.scan_interval_ms must be > 0")
	}
	if c.Touch.DebounceMS < 0 {
		return input.ConfigError(src, "touch.debounce_ms must be >= 0")
	}
	if err := validThresholds("touch", c.Touch.TouchThreshold, c.Touch.ReleaseThreshold); err != nil {
		return err
	}
	if c.Touch.HoldMS <= 0 {
		return input.ConfigError(src, "touch.hold_ms must be > 0")
	}
	if c.Touch.HoldRepeatMS <= 0 {
		return input.ConfigError(src, "touch.hold_repeat_ms must be > 0")
	}
	if c.Touch.SwipeWindowMS <= 0 {
		return input.ConfigError(src, "touch.swipe_window_ms must be > 0")
	}
	if c.Touch.Distance <= 0 {
		return input.ConfigError(src, "touch.distance must be > 0")
	}
	if len(c.Touch.Pads) == 0 {
		return input.ConfigError(src, "touch.pads must not be empty")
	}
	seen := make(map[int]bool)
	for i, p := range c.Touch.Pads {
		if p.Electrode < 0 || p.Electrode >= sampler.MPR121Electrodes {
			return input.ConfigError(src, "touch.pads[%d].electrode must be between 0 and %d", i, sampler.MPR121Electrodes-1)
		}
		if seen[p.Electrode] {
			return input.ConfigError(src, "touch.pads[%d]: electrode %d used twice", i, p.Electrode)
		}
		seen[p.Electrode] = true
		if p.Key == "" {
			return input.ConfigError(src, "touch.pads[%d].key must not be empty", i)
		}
		if (p.X == nil) != (p.Y == nil) {
			return input.ConfigError(src, "touch.pads[%d]: x and y must be set together", i)
		}
		touch, release := p.Touch, p.Release
		if touch == 0 {
			touch = c.Touch.TouchThreshold
		}
		if release == 0 {
			release = c.Touch.ReleaseThreshold
		}
		if err := validThresholds(fmt.Sprintf("touch.pads[%d]", i), touch, release); err != nil {
			return err
		}
	}
	return nil
}

func validThresholds(field string, touch, release int) error {
	if touch < 1 || touch > 255 || release < 1 || release > 255 {
		return input.ConfigError(input.SourceTouch, "%s thresholds must be between 1 and 255", field)
	}
	if release >= touch {
		return input.ConfigError(input.SourceTouch, "%s release threshold must be below the touch threshold", field)
	}
	return nil
}

// ParseIRCode parses a keymap code such as "0x00FF18E7" or "16718055".
func ParseIRCode(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid IR code %q", s)
	}
	return uint32(v), nil
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
