package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"sort"
	"time"
)

// Request is the line-delimited JSON request understood by olinputd.
type Request struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Response mirrors the daemon's IPC response.
type Response struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type modeData struct {
	Mode string `json:"mode"`
}

type statsData struct {
	SampleDrops       uint64            `json:"sample_drops"`
	OutOfOrder        uint64            `json:"out_of_order"`
	MalformedFrames   uint64            `json:"malformed_frames"`
	RotaryMisses      uint64            `json:"rotary_misses"`
	TouchUnclassified uint64            `json:"touch_unclassified"`
	LateEvents        uint64            `json:"late_events"`
	QueueOverflows    uint64            `json:"queue_overflows"`
	Unmapped          uint64            `json:"unmapped"`
	SourceUnavailable map[string]uint64 `json:"source_unavailable"`
}

func main() {
	socketPath := flag.String("socket", "/tmp/olinput.sock", "Unix domain socket path")
	jsonOut := flag.Bool("json", false, "Print the raw JSON response")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	var req Request
	switch cmd := args[0]; cmd {
	case "stats":
		req.Type = "get_stats"

	case "mode", "get-mode":
		req.Type = "get_mode"

	case "set-mode":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: set-mode requires a mode name\n")
			os.Exit(1)
		}
		req = Request{Type: "set_mode", Data: modeData{Mode: args[1]}}

	case "help", "-h", "--help":
		printUsage()
		return

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	resp, err := send(*socketPath, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *jsonOut {
		fmt.Println(string(resp.Data))
		return
	}
	if err := printResponse(req.Type, resp); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func send(socketPath string, req Request) (Response, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return Response{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	data, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status == "error" {
		return resp, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return resp, nil
}

func printResponse(reqType string, resp Response) error {
	switch reqType {
	case "get_mode", "set_mode":
		var m modeData
		if err := json.Unmarshal(resp.Data, &m); err != nil {
			return fmt.Errorf("decode mode: %w", err)
		}
		fmt.Println(m.Mode)

	case "get_stats":
		var s statsData
		if err := json.Unmarshal(resp.Data, &s); err != nil {
			return fmt.Errorf("decode stats: %w", err)
		}
		fmt.Printf("sample_drops        %d\n", s.SampleDrops)
		fmt.Printf("out_of_order        %d\n", s.OutOfOrder)
		fmt.Printf("malformed_frames    %d\n", s.MalformedFrames)
		fmt.Printf("rotary_misses       %d\n", s.RotaryMisses)
		fmt.Printf("touch_unclassified  %d\n", s.TouchUnclassified)
		fmt.Printf("late_events         %d\n", s.LateEvents)
		fmt.Printf("queue_overflows     %d\n", s.QueueOverflows)
		fmt.Printf("unmapped            %d\n", s.Unmapped)

		srcs := make([]string, 0, len(s.SourceUnavailable))
		for src := range s.SourceUnavailable {
			srcs = append(srcs, src)
		}
		sort.Strings(srcs)
		for _, src := range srcs {
			fmt.Printf("unavailable/%-8s %d\n", src, s.SourceUnavailable[src])
		}

	default:
		fmt.Println("ok")
	}
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `olinput-ctl - Query and control the olinputd daemon via IPC

Usage:
  olinput-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/olinput.sock)
  -json           Print the raw JSON response data

Commands:
  stats                   Print the pipeline's diagnostic counters
  mode, get-mode          Print the current UI mode
  set-mode <mode>         Switch the UI mode ("" or default for the base table)
  help, -h, --help        Show this help message

Examples:
  olinput-ctl stats
  olinput-ctl set-mode player
  olinput-ctl -socket /run/olinput.sock mode
`)
}
