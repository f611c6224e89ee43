package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"olinput/internal/input"
	"olinput/internal/router"
)

// ============================================================================
// Action stream WebSocket: hub + per-client pumps + publisher
// ============================================================================
//
// Every message is a JSON text frame with the envelope {type, ts, data}:
//   - "init"         on connect: current mode and counters
//   - "input_event"  every event leaving the dispatcher
//   - "action"       every routed action
//   - "mode"         after the UI mode changes
//   - "stats"        periodic counter snapshot
//
// Slow clients are disconnected when their send buffer fills; publishing
// never blocks the consumer loop.
// ============================================================================

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

type wsInitData struct {
	Mode  string              `json:"mode"`
	Stats input.StatsSnapshot `json:"stats"`
}

type wsModeData struct {
	Mode string `json:"mode"`
}

func marshalEnvelope(typ string, at time.Time, data any) ([]byte, error) {
	if at.IsZero() {
		at = time.Now()
	}
	ts := at.UTC()
	return json.Marshal(envelope{Type: typ, Ts: &ts, Data: data})
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Buffered broadcast channel for already-serialized JSON frames.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size. Zero means 32.
	SendBuf int

	// BroadcastBuf is the hub inbound broadcast queue size. Zero means 128.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled.
// It disconnects all clients on shutdown.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect slow clients first, then remove them after we unlock.
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// Len returns the number of registered clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		safeCloseChan(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		// Closing send signals writePump to exit.
		safeCloseChan(c.send)

		h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

func safeCloseChan(ch chan []byte) {
	defer func() {
		_ = recover() // ignore "close of closed channel"
	}()
	close(ch)
}

// BroadcastBytes enqueues a pre-serialized JSON WS frame for broadcast.
// It never blocks; if the hub queue is full it drops the message.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// closeStatus extracts a human-readable websocket close code / text when possible.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump, what string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("ws "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Info("ws "+pump+" exiting ("+what+" error)", "remote_addr", c.remoteAddr, "error", err)
}

// writePump writes messages from the send queue to the websocket.
// It exits on write error or when send is closed.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed: hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", "write", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", "ping", err)
				return
			}
		}
	}
}

// readPump discards incoming messages to detect disconnects and handle
// control frames. It exits on read error, then unregisters the client.
func (c *Client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", "read", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

// ============================================================================
// Stream: HTTP handler + publisher
// ============================================================================

// Stream serves the action stream and implements publisher.
type Stream struct {
	logger *slog.Logger
	hub    *Hub
	stats  *input.Stats
	store  *router.ContextStore
}

// NewStream constructs the hub and handler. Call Register on a mux and
// start Hub().Run(ctx).
func NewStream(logger *slog.Logger, stats *input.Stats, store *router.ContextStore, cfg HubConfig) *Stream {
	return &Stream{
		logger: logger,
		hub:    NewHub(logger, cfg),
		stats:  stats,
		store:  store,
	}
}

func (s *Stream) Hub() *Hub { return s.hub }

// Register registers the WS handler on the provided mux.
func (s *Stream) Register(mux *http.ServeMux, path string) {
	if mux == nil {
		return
	}
	mux.HandleFunc(path, s.handleWS)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS upgrades and registers a client, then queues the init message.
func (s *Stream) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)

	// The init message goes ahead of any broadcast the hub may deliver
	// once the client is registered.
	if msg, err := s.initMessage(); err == nil {
		client.send <- msg
	} else {
		s.logger.Warn("ws init marshal failed", "error", err)
	}

	s.hub.register <- client

	// The pumps outlive the HTTP handler; the hub and socket errors end them.
	go client.writePump()
	go client.readPump()
}

func (s *Stream) initMessage() ([]byte, error) {
	return marshalEnvelope("init", time.Time{}, wsInitData{
		Mode:  s.store.Get().Mode,
		Stats: s.stats.Snapshot(),
	})
}

func (s *Stream) publish(typ string, at time.Time, data any) {
	msg, err := marshalEnvelope(typ, at, data)
	if err != nil {
		s.logger.Warn("ws marshal failed", "error", err, "type", typ)
		return
	}
	s.hub.BroadcastBytes(msg)
}

func (s *Stream) Event(ev input.InputEvent) { s.publish("input_event", ev.At, ev) }
func (s *Stream) Action(a router.Action)    { s.publish("action", a.At, a) }
func (s *Stream) Mode(mode string)          { s.publish("mode", time.Time{}, wsModeData{Mode: mode}) }

// RunStats publishes a counter snapshot every interval until ctx ends.
func (s *Stream) RunStats(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publish("stats", time.Time{}, s.stats.Snapshot())
		}
	}
}

// runHTTPServer serves mux on addr until ctx ends.
func runHTTPServer(ctx context.Context, addr string, mux *http.ServeMux, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("action stream listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
