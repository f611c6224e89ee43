package main

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"olinput/internal/input"
	"olinput/internal/router"
)

func newTestIPC() (*ipcHandler, *recordingPublisher) {
	pub := &recordingPublisher{}
	return &ipcHandler{
		stats: new(input.Stats),
		store: router.NewContextStore(""),
		pub:   pub,
		log:   discardLogger(),
	}, pub
}

func TestIPC_Requests(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		status  string
		errText string
	}{
		{"get_stats", `{"type":"get_stats"}`, "ok", ""},
		{"get_mode", `{"type":"get_mode"}`, "ok", ""},
		{"set_mode", `{"type":"set_mode","data":{"mode":"player"}}`, "ok", ""},
		{"set_mode without data", `{"type":"set_mode"}`, "error", "set_mode: missing data"},
		{"missing type", `{}`, "error", "missing request type"},
		{"unknown type", `{"type":"press"}`, "error", "unknown request type: press"},
		{"bad json", `{`, "error", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestIPC()
			resp := h.handle([]byte(tt.line))
			if resp.Status != tt.status {
				t.Fatalf("expected status %q, got %q (%s)", tt.status, resp.Status, resp.Error)
			}
			if tt.errText != "" && resp.Error != tt.errText {
				t.Errorf("expected error %q, got %q", tt.errText, resp.Error)
			}
		})
	}
}

func TestIPC_SetModeUpdatesStoreAndPublishes(t *testing.T) {
	h, pub := newTestIPC()

	resp := h.handle([]byte(`{"type":"set_mode","data":{"mode":" player "}}`))
	if resp.Status != "ok" {
		t.Fatalf("expected ok, got %+v", resp)
	}
	if got := h.store.Get().Mode; got != "player" {
		t.Errorf("expected mode player, got %q", got)
	}
	if len(pub.modes) != 1 || pub.modes[0] != "player" {
		t.Errorf("expected one mode broadcast, got %v", pub.modes)
	}

	// An empty mode returns to the default table.
	h.handle([]byte(`{"type":"set_mode","data":{"mode":""}}`))
	if got := h.store.Get().Mode; got != router.DefaultMode {
		t.Errorf("expected %q, got %q", router.DefaultMode, got)
	}
}

func TestIPC_GetStatsReturnsCounters(t *testing.T) {
	h, _ := newTestIPC()
	h.stats.SampleDrops.Add(3)
	h.stats.SourceUnavailable(input.SourceTouch)

	resp := h.handle([]byte(`{"type":"get_stats"}`))
	snap, ok := resp.Data.(input.StatsSnapshot)
	if !ok {
		t.Fatalf("expected StatsSnapshot data, got %T", resp.Data)
	}
	if snap.SampleDrops != 3 || snap.SourceUnavailable["touch"] != 1 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestIPC_ServerRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	socket := filepath.Join(t.TempDir(), "olinput.sock")
	h, _ := newTestIPC()
	done := make(chan error, 1)
	go func() { done <- runIPCServer(ctx, socket, h, discardLogger()) }()

	var conn net.Conn
	waitUntil(t, time.Second, func() bool {
		c, err := net.Dial("unix", socket)
		if err != nil {
			return false
		}
		conn = c
		return true
	}, "IPC server not listening")
	defer conn.Close()

	dec := json.NewDecoder(bufio.NewReader(conn))
	send := func(line string) map[string]any {
		t.Helper()
		if _, err := conn.Write([]byte(line + "\n")); err != nil {
			t.Fatalf("write: %v", err)
		}
		var resp map[string]any
		if err := dec.Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return resp
	}

	if resp := send(`{"type":"set_mode","data":{"mode":"menu"}}`); resp["status"] != "ok" {
		t.Fatalf("expected ok, got %v", resp)
	}
	resp := send(`{"type":"get_mode"}`)
	data, _ := resp["data"].(map[string]any)
	if data["mode"] != "menu" {
		t.Errorf("expected mode menu, got %v", resp)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("IPC server did not stop")
	}
}
