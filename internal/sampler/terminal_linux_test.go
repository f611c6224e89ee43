//go:build linux

package sampler

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/term/termios"
	"golang.org/x/sys/unix"

	"olinput/internal/input"
)

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestTerminal_AutoRepeatHoldsKey(t *testing.T) {
	q := NewQueue(16, nil)
	term := NewTerminal("", map[byte]int{'w': 7}, 40*time.Millisecond, q, nil)

	term.key('w')
	term.key('w')
	term.key('x')
	if got := drain(q); len(got) != 1 || got[0].Channel != 7 || got[0].Level != input.High {
		t.Fatalf("expected one press of channel 7, got %v", got)
	}

	var got []input.RawSample
	waitUntil(t, time.Second, func() bool {
		got = append(got, drain(q)...)
		return len(got) > 0
	})
	if got[0].Level != input.Low || got[0].Source != input.SourceButton {
		t.Errorf("expected release after the repeat gap, got %+v", got[0])
	}
}

func TestTerminal_ReleaseAllOnStop(t *testing.T) {
	q := NewQueue(16, nil)
	term := NewTerminal("", map[byte]int{'a': 1}, time.Hour, q, nil)

	term.key('a')
	term.releaseAll()
	got := drain(q)
	if len(got) != 2 || got[1].Level != input.Low {
		t.Errorf("expected press then release, got %v", got)
	}
}

func TestCbreakMode_ClearsCanonAndEcho(t *testing.T) {
	var attr unix.Termios
	attr.Lflag = unix.ICANON | unix.ECHO | unix.ISIG
	attr.Cc[unix.VMIN] = 0

	got := cbreakMode(attr)
	if got.Lflag&(unix.ICANON|unix.ECHO) != 0 {
		t.Errorf("expected ICANON and ECHO cleared, got lflag %#x", got.Lflag)
	}
	if got.Lflag&unix.ISIG == 0 {
		t.Errorf("expected ISIG kept so Ctrl+C still stops the daemon")
	}
	if got.Cc[unix.VMIN] != 1 {
		t.Errorf("expected VMIN 1, got %d", got.Cc[unix.VMIN])
	}
	if attr.Lflag&unix.ICANON == 0 {
		t.Errorf("input attributes were modified")
	}
}

func lflag(t *testing.T, fd uintptr) uint32 {
	t.Helper()
	var attr unix.Termios
	if err := termios.Tcgetattr(fd, &attr); err != nil {
		t.Fatalf("tcgetattr: %v", err)
	}
	return attr.Lflag
}

func TestTerminal_RunSwitchesModeAndRestores(t *testing.T) {
	ptm, pts, err := termios.Pty()
	if err != nil {
		t.Skipf("no pty available: %v", err)
	}
	defer ptm.Close()
	defer pts.Close()
	if lflag(t, pts.Fd())&unix.ICANON == 0 {
		t.Skip("pty does not start in canonical mode")
	}

	q := NewQueue(16, nil)
	term := NewTerminal(pts.Name(), map[byte]int{'a': 3}, time.Hour, q, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- term.Run(ctx) }()

	waitUntil(t, time.Second, func() bool {
		select {
		case err := <-done:
			t.Fatalf("run returned early: %v", err)
		default:
		}
		return lflag(t, pts.Fd())&unix.ICANON == 0
	})

	if _, err := ptm.Write([]byte("a")); err != nil {
		t.Fatalf("write: %v", err)
	}
	var got []input.RawSample
	waitUntil(t, time.Second, func() bool {
		got = append(got, drain(q)...)
		return len(got) > 0
	})
	if got[0].Channel != 3 || got[0].Level != input.High {
		t.Errorf("expected press of channel 3, got %+v", got[0])
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("run did not stop")
	}
	if lflag(t, pts.Fd())&unix.ICANON == 0 {
		t.Errorf("terminal mode not restored")
	}
}
