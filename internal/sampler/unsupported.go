//go:build !linux

package sampler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"olinput/internal/input"
)

var errUnsupported = errors.New("not supported on this platform")

type unsupported struct{ src input.Source }

func (u unsupported) Run(context.Context) error {
	return input.Unavailable(u.src, "open", errUnsupported)
}

type GPIOCdev struct{ unsupported }

func NewGPIOCdev(cfg GPIOConfig, _ *Queue, _ *slog.Logger) *GPIOCdev {
	return &GPIOCdev{unsupported{cfg.Source()}}
}

type RPIO struct{ unsupported }

func NewRPIO(cfg GPIOConfig, _ *Queue, _ *input.Stats, _ *slog.Logger) *RPIO {
	return &RPIO{unsupported{cfg.Source()}}
}

type LIRC struct{ unsupported }

func NewLIRC(string, int, *Queue, *slog.Logger) *LIRC {
	return &LIRC{unsupported{input.SourceIR}}
}

type Terminal struct{ unsupported }

func NewTerminal(string, map[byte]int, time.Duration, *Queue, *slog.Logger) *Terminal {
	return &Terminal{unsupported{input.SourceButton}}
}
