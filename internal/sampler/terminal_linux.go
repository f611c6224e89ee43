//go:build linux

package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/pkg/term/termios"
	"golang.org/x/sys/unix"

	"olinput/internal/input"
)

// Terminal turns keystrokes on a tty into button samples, for running the
// daemon on a bench without hardware. A terminal only reports key presses,
// so a key counts as held until no auto-repeat byte has arrived for
// Release.
type Terminal struct {
	device  string
	keys    map[byte]int
	release time.Duration
	q       *Queue
	logger  *slog.Logger

	mu     sync.Mutex
	timers map[byte]*time.Timer
}

// NewTerminal creates a terminal source. keys maps a typed byte to a button
// channel.
func NewTerminal(device string, keys map[byte]int, release time.Duration, q *Queue, logger *slog.Logger) *Terminal {
	if device == "" {
		device = "/dev/tty"
	}
	if release <= 0 {
		release = 150 * time.Millisecond
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Terminal{
		device:  device,
		keys:    keys,
		release: release,
		q:       q,
		logger:  logger,
		timers:  make(map[byte]*time.Timer),
	}
}

func (t *Terminal) key(b byte) {
	ch, ok := t.keys[b]
	if !ok {
		t.logger.Debug("unmapped terminal key", "key", fmt.Sprintf("%q", b))
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, held := t.timers[b]; held {
		timer.Reset(t.release)
		return
	}
	t.q.Push(input.RawSample{Source: input.SourceButton, Channel: ch, Level: input.High})
	t.timers[b] = time.AfterFunc(t.release, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.timers, b)
		t.q.Push(input.RawSample{Source: input.SourceButton, Channel: ch, Level: input.Low})
	})
}

// releaseAll reports every held key as released.
func (t *Terminal) releaseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for b, timer := range t.timers {
		if timer.Stop() {
			t.q.Push(input.RawSample{Source: input.SourceButton, Channel: t.keys[b], Level: input.Low})
		}
		delete(t.timers, b)
	}
}

// cbreakMode returns attr with line buffering and echo turned off.
func cbreakMode(attr unix.Termios) unix.Termios {
	termios.Cfmakecbreak(&attr)
	return attr
}

// Run puts the terminal in cbreak mode and reads keys until ctx is
// canceled. The previous terminal mode is restored on return.
func (t *Terminal) Run(ctx context.Context) error {
	f, err := os.OpenFile(t.device, os.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return input.Unavailable(input.SourceButton, "open terminal", err)
	}
	defer f.Close()

	var saved unix.Termios
	if err := termios.Tcgetattr(f.Fd(), &saved); err != nil {
		return input.Unavailable(input.SourceButton, "get terminal mode", fmt.Errorf("%s: %w", t.device, err))
	}
	cbreak := cbreakMode(saved)
	if err := termios.Tcsetattr(f.Fd(), termios.TCSANOW, &cbreak); err != nil {
		return input.Unavailable(input.SourceButton, "set terminal mode", fmt.Errorf("%s: %w", t.device, err))
	}
	defer termios.Tcsetattr(f.Fd(), termios.TCSANOW, &saved)
	defer t.releaseAll()

	t.logger.Info("terminal keys enabled", "device", t.device, "keys", len(t.keys))
	fd := int(f.Fd())
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	buf := make([]byte, 32)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := unix.Poll(fds, 100)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return input.Unavailable(input.SourceButton, "poll terminal", err)
		}
		if n == 0 {
			continue
		}
		n, err = unix.Read(fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return input.Unavailable(input.SourceButton, "read terminal", err)
		}
		if n == 0 {
			return nil
		}
		for _, b := range buf[:n] {
			t.key(b)
		}
	}
}
