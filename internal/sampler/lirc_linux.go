//go:build linux

package sampler

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"

	"olinput/internal/input"
)

// LIRC mode2 ABI (linux/lirc.h).
const (
	lircSetRecMode = 0x40046912 // _IOW('i', 0x12, __u32)
	lircModeMode2  = 0x00000004

	lircModeMask  = 0xFF000000
	lircValueMask = 0x00FFFFFF
	lircSpace     = 0x00000000
	lircPulse     = 0x01000000
	lircFrequency = 0x02000000
	lircTimeout   = 0x03000000
	lircOverflow  = 0x04000000
)

// LIRC reads pulse/space durations from a /dev/lircN device in mode2 and
// replays them as IR line levels on a reconstructed timeline: each pulse
// becomes a High sample followed by a Low sample one pulse width later.
type LIRC struct {
	device  string
	channel int
	q       *Queue
	logger  *slog.Logger

	// cursor is the reconstructed time of the end of the last duration.
	cursor time.Time
	now    func() time.Time
}

// NewLIRC creates a reader for device, reporting on IR channel.
func NewLIRC(device string, channel int, q *Queue, logger *slog.Logger) *LIRC {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LIRC{device: device, channel: channel, q: q, logger: logger, now: time.Now}
}

// lircGap is the silence after which the timeline is re-anchored on the
// wall clock.
const lircGap = 200 * time.Millisecond

// feed consumes one mode2 packet.
func (l *LIRC) feed(pkt uint32) {
	d := time.Duration(pkt&lircValueMask) * time.Microsecond
	switch pkt & lircModeMask {
	case lircPulse:
		now := l.now()
		if l.cursor.IsZero() || now.Sub(l.cursor) > lircGap+d {
			l.cursor = now.Add(-d)
		}
		l.q.Push(input.RawSample{Source: input.SourceIR, Channel: l.channel, Level: input.High, At: l.cursor})
		l.cursor = l.cursor.Add(d)
		l.q.Push(input.RawSample{Source: input.SourceIR, Channel: l.channel, Level: input.Low, At: l.cursor})
	case lircSpace:
		if !l.cursor.IsZero() {
			l.cursor = l.cursor.Add(d)
		}
	case lircTimeout, lircOverflow:
		l.cursor = time.Time{}
	case lircFrequency:
	default:
		l.logger.Debug("unknown lirc packet", "packet", fmt.Sprintf("0x%08X", pkt))
	}
}

// Run opens the device and reads until ctx is canceled.
func (l *LIRC) Run(ctx context.Context) error {
	fd, err := unix.Open(l.device, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return input.Unavailable(input.SourceIR, "open", fmt.Errorf("%s: %w", l.device, err))
	}
	defer unix.Close(fd)

	if err := unix.IoctlSetPointerInt(fd, lircSetRecMode, lircModeMode2); err != nil {
		return input.Unavailable(input.SourceIR, "set mode2", fmt.Errorf("%s: %w", l.device, err))
	}
	l.logger.Info("lirc reader started", "device", l.device)

	buf := make([]byte, 4*64)
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := unix.Poll(fds, 100)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return input.Unavailable(input.SourceIR, "poll", err)
		}
		if n == 0 {
			continue
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			return input.Unavailable(input.SourceIR, "poll", fmt.Errorf("%s: device gone", l.device))
		}
		n, err = unix.Read(fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return input.Unavailable(input.SourceIR, "read", err)
		}
		for i := 0; i+4 <= n; i += 4 {
			l.feed(binary.LittleEndian.Uint32(buf[i:]))
		}
	}
}
