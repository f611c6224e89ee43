package sampler

import (
	"errors"
	"fmt"
	"io"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"

	"olinput/internal/input"
)

// MPR121 registers.
const (
	mprTouchStatus  = 0x00
	mprFilteredData = 0x04
	mprBaseline     = 0x1E
	mprMHDR         = 0x2B
	mprTouchThresh0 = 0x41
	mprDebounce     = 0x5B
	mprConfig1      = 0x5C
	mprConfig2      = 0x5D
	mprECR          = 0x5E
	mprSoftReset    = 0x80

	mprResetValue   = 0x63
	mprConfig2Reset = 0x24
	mprOverCurrent  = 0x80

	// MPR121Electrodes is the number of sensing electrodes on the chip.
	MPR121Electrodes = 12

	// MPR121Address is the chip's default I²C address (ADDR to ground).
	MPR121Address = 0x5A
)

// Baseline filter settings for rising, falling and touched data, written
// from MHDR (0x2B) onwards.
var mprFilter = []byte{
	0x01, 0x01, 0x0E, 0x00, // rising: MHD, NHD, NCL, FDL
	0x01, 0x05, 0x01, 0x00, // falling
	0x00, 0x00, 0x00, // touched: NHD, NCL, FDL
}

// Tx is the register transport of an I²C device; *i2c.Dev implements it.
type Tx interface {
	Tx(w, r []byte) error
}

// MPR121Electrode overrides the thresholds of one electrode. Zero values
// keep the chip-wide thresholds.
type MPR121Electrode struct {
	Electrode int
	Touch     uint8
	Release   uint8
}

// MPR121Config is the chip setup.
type MPR121Config struct {
	// Touch and Release are the default electrode thresholds. The chip
	// reports a touch when baseline - filtered exceeds Touch and a release
	// when it falls below Release.
	Touch   uint8
	Release uint8

	Electrodes []MPR121Electrode
}

// MPR121 polls a capacitive touch controller. Poll reports one sample per
// configured electrode with Level = touched and Value = baseline - filtered.
type MPR121 struct {
	dev        Tx
	electrodes []int
	enabled    int
}

// NewMPR121 resets and configures the chip behind dev.
func NewMPR121(dev Tx, cfg MPR121Config) (*MPR121, error) {
	if len(cfg.Electrodes) == 0 {
		return nil, errors.New("mpr121: no electrodes configured")
	}
	m := &MPR121{dev: dev}
	thresholds := make([][2]uint8, MPR121Electrodes)
	for i := range thresholds {
		thresholds[i] = [2]uint8{cfg.Touch, cfg.Release}
	}
	for _, e := range cfg.Electrodes {
		if e.Electrode < 0 || e.Electrode >= MPR121Electrodes {
			return nil, fmt.Errorf("mpr121: electrode %d out of range 0..%d", e.Electrode, MPR121Electrodes-1)
		}
		if e.Touch != 0 {
			thresholds[e.Electrode][0] = e.Touch
		}
		if e.Release != 0 {
			thresholds[e.Electrode][1] = e.Release
		}
		m.electrodes = append(m.electrodes, e.Electrode)
		if e.Electrode+1 > m.enabled {
			m.enabled = e.Electrode + 1
		}
	}

	if err := m.write(mprSoftReset, mprResetValue); err != nil {
		return nil, fmt.Errorf("mpr121: reset: %w", err)
	}
	// Configuration registers are only writable in stop mode.
	if err := m.write(mprECR, 0x00); err != nil {
		return nil, fmt.Errorf("mpr121: stop: %w", err)
	}
	var c2 [1]byte
	if err := m.dev.Tx([]byte{mprConfig2}, c2[:]); err != nil {
		return nil, fmt.Errorf("mpr121: detect: %w", err)
	}
	if c2[0] != mprConfig2Reset {
		return nil, fmt.Errorf("mpr121: unexpected CONFIG2 0x%02X after reset (want 0x%02X)", c2[0], mprConfig2Reset)
	}

	thr := make([]byte, 0, 2*MPR121Electrodes)
	for _, t := range thresholds {
		thr = append(thr, t[0], t[1])
	}
	if err := m.writeBlock(mprTouchThresh0, thr); err != nil {
		return nil, fmt.Errorf("mpr121: thresholds: %w", err)
	}
	if err := m.writeBlock(mprMHDR, mprFilter); err != nil {
		return nil, fmt.Errorf("mpr121: filter: %w", err)
	}
	for _, reg := range [][2]byte{
		{mprDebounce, 0x00},
		{mprConfig1, 0x10}, // 16µA charge current
		{mprConfig2, 0x20}, // 0.5µs charge time, 1ms period
		{mprECR, 0x80 | byte(m.enabled)},
	} {
		if err := m.write(reg[0], reg[1]); err != nil {
			return nil, fmt.Errorf("mpr121: configure 0x%02X: %w", reg[0], err)
		}
	}
	return m, nil
}

// OpenMPR121 opens the I²C bus by name ("" for the first bus) and
// configures the chip at addr. Closing the returned closer releases the bus.
func OpenMPR121(bus string, addr uint16, cfg MPR121Config) (*MPR121, io.Closer, error) {
	if err := initPeriph(); err != nil {
		return nil, nil, input.Unavailable(input.SourceTouch, "init host", err)
	}
	b, err := i2creg.Open(bus)
	if err != nil {
		return nil, nil, input.Unavailable(input.SourceTouch, "open i2c bus", err)
	}
	m, err := NewMPR121(&i2c.Dev{Bus: b, Addr: addr}, cfg)
	if err != nil {
		b.Close()
		return nil, nil, input.Unavailable(input.SourceTouch, "init mpr121", err)
	}
	return m, b, nil
}

func (m *MPR121) write(reg, val byte) error {
	return m.dev.Tx([]byte{reg, val}, nil)
}

func (m *MPR121) writeBlock(reg byte, vals []byte) error {
	for i, v := range vals {
		if err := m.write(reg+byte(i), v); err != nil {
			return err
		}
	}
	return nil
}

// Poll reads touch status, filtered data and baselines.
func (m *MPR121) Poll() ([]input.RawSample, error) {
	var status [2]byte
	if err := m.dev.Tx([]byte{mprTouchStatus}, status[:]); err != nil {
		return nil, input.Unavailable(input.SourceTouch, "read status", err)
	}
	if status[1]&mprOverCurrent != 0 {
		return nil, input.Unavailable(input.SourceTouch, "read status", errors.New("mpr121 over-current flag set"))
	}
	filtered := make([]byte, 2*m.enabled)
	if err := m.dev.Tx([]byte{mprFilteredData}, filtered); err != nil {
		return nil, input.Unavailable(input.SourceTouch, "read filtered data", err)
	}
	baseline := make([]byte, m.enabled)
	if err := m.dev.Tx([]byte{mprBaseline}, baseline); err != nil {
		return nil, input.Unavailable(input.SourceTouch, "read baseline", err)
	}

	touched := uint16(status[0]) | uint16(status[1]&0x0F)<<8
	out := make([]input.RawSample, 0, len(m.electrodes))
	for _, e := range m.electrodes {
		f := int(filtered[2*e]) | int(filtered[2*e+1]&0x03)<<8
		delta := int(baseline[e])<<2 - f
		if delta < 0 {
			delta = 0
		}
		lvl := input.Low
		if touched&(1<<e) != 0 {
			lvl = input.High
		}
		out = append(out, input.RawSample{Source: input.SourceTouch, Channel: e, Level: lvl, Value: delta})
	}
	return out, nil
}
