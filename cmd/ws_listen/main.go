package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// message is the olinputd stream envelope.
type message struct {
	Type string          `json:"type"`
	Ts   time.Time       `json:"ts"`
	Data json.RawMessage `json:"data"`
}

type actionData struct {
	Name   string `json:"name"`
	Key    string `json:"key"`
	Source string `json:"source"`
	Mode   string `json:"mode"`
	Repeat int    `json:"repeat"`
	Long   bool   `json:"long"`
}

type eventData struct {
	Seq    uint64 `json:"seq"`
	Source string `json:"source"`
	Kind   string `json:"kind"`
	Key    string `json:"key"`
	Repeat int    `json:"repeat"`
}

func main() {
	var (
		wsURL     = flag.String("url", "ws://127.0.0.1:8787/actions", "olinputd action stream URL")
		showEvent = flag.Bool("events", false, "Also print input events")
		showStats = flag.Bool("stats", false, "Also print periodic stats")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// Mutex to protect concurrent writes to websocket
	var writeMu sync.Mutex

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, raw, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if messageType == websocket.TextMessage {
				handleTextMessage(raw, *showEvent, *showStats)
			}
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// handleTextMessage prints one stream message.
func handleTextMessage(raw []byte, showEvents, showStats bool) {
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		fmt.Printf("[TEXT] %s\n", string(raw))
		return
	}
	ts := msg.Ts.Local().Format("15:04:05.000")

	switch msg.Type {
	case "action":
		var a actionData
		if err := json.Unmarshal(msg.Data, &a); err != nil {
			break
		}
		suffix := ""
		if a.Long {
			suffix = " (long)"
		}
		if a.Repeat > 0 {
			suffix += fmt.Sprintf(" #%d", a.Repeat)
		}
		fmt.Printf("%s [ACTION] %-14s %s/%s mode=%s%s\n", ts, a.Name, a.Source, a.Key, a.Mode, suffix)
		return

	case "input_event":
		if !showEvents {
			return
		}
		var e eventData
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			break
		}
		fmt.Printf("%s [EVENT]  #%-6d %-7s %-8s %s\n", ts, e.Seq, e.Source, e.Kind, e.Key)
		return

	case "stats":
		if !showStats {
			return
		}

	case "init", "mode":
	}

	var pretty any
	if err := json.Unmarshal(msg.Data, &pretty); err != nil {
		fmt.Printf("%s [%s] %s\n", ts, msg.Type, string(msg.Data))
		return
	}
	b, _ := json.Marshal(pretty)
	fmt.Printf("%s [%s] %s\n", ts, msg.Type, string(b))
}
