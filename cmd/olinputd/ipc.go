package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"

	"olinput/internal/input"
	"olinput/internal/router"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// Lets olinput-ctl and UI processes query counters and switch the UI mode.
//
// Protocol: Line-delimited JSON
//   - Client sends: {"type": "get_stats"} | {"type": "get_mode"} |
//     {"type": "set_mode", "data": {"mode": "menu"}}
//   - Server responds: {"status": "ok", "data": ...} or
//     {"status": "error", "error": "msg"}
//
// There is no request for injecting input: events only come from hardware.
// ============================================================================

// IPCRequest is one line sent by a client.
type IPCRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IPCResponse represents the response sent back to IPC clients
type IPCResponse struct {
	Status string `json:"status"`          // "ok" or "error"
	Error  string `json:"error,omitempty"` // error message if status == "error"
	Data   any    `json:"data,omitempty"`
}

type setModeData struct {
	Mode string `json:"mode"`
}

// ipcHandler answers requests against the daemon's shared state.
type ipcHandler struct {
	stats *input.Stats
	store *router.ContextStore
	pub   publisher
	log   *slog.Logger
}

func errorResponse(format string, args ...any) IPCResponse {
	return IPCResponse{Status: "error", Error: fmt.Sprintf(format, args...)}
}

func (h *ipcHandler) handle(line []byte) IPCResponse {
	var req IPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return errorResponse("parse request: %v", err)
	}

	switch req.Type {
	case "get_stats":
		return IPCResponse{Status: "ok", Data: h.stats.Snapshot()}

	case "get_mode":
		return IPCResponse{Status: "ok", Data: h.store.Get()}

	case "set_mode":
		var d setModeData
		if len(req.Data) == 0 {
			return errorResponse("set_mode: missing data")
		}
		if err := json.Unmarshal(req.Data, &d); err != nil {
			return errorResponse("set_mode: %v", err)
		}
		mode := strings.TrimSpace(d.Mode)
		h.store.SetMode(mode)
		ctx := h.store.Get()
		h.log.Info("ui mode changed", "mode", ctx.Mode)
		h.pub.Mode(ctx.Mode)
		return IPCResponse{Status: "ok", Data: ctx}

	case "":
		return errorResponse("missing request type")

	default:
		return errorResponse("unknown request type: %s", req.Type)
	}
}

// runIPCServer starts the Unix domain socket server.
// It runs until ctx is canceled, at which point it closes the listener and exits.
func runIPCServer(ctx context.Context, socketPath string, h *ipcHandler, logger *slog.Logger) error {
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.Chmod(socketPath, 0666); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Close the listener on shutdown. This unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("IPC listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				logger.Debug("IPC listener closed")
				return nil
			}
			logger.Error("IPC accept error", "error", err)
			continue
		}

		go handleIPCConnection(conn, h, logger)
	}
}

// handleIPCConnection answers requests on one connection until the client
// hangs up.
func handleIPCConnection(conn net.Conn, h *ipcHandler, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		logger.Debug("IPC received", "line", string(line))

		if err := encoder.Encode(h.handle(line)); err != nil {
			logger.Error("IPC failed to send response", "error", err)
			return
		}
	}

	logger.Debug("IPC connection closed")
}
