// Package main — cmd/coordinator/main.go
//
// coordinator entrypoint: an operator-facing CLI that dials a
// supervisor's Coordinator service (spec.md §6 "COORD_CMD (mode,
// targets, limits, ack)") and issues a single command per invocation,
// one COORD_CMD request packet out and one COORD_CMD response packet
// back over a plain TCP connection.
//
// Usage:
//
//	coordinator -addr HOST:PORT mode <INACTIVE|SIMPLE|BURN_RATE|CHARGE|GEN_RATE>
//	coordinator -addr HOST:PORT target <value>
//	coordinator -addr HOST:PORT limit <unit-id> <lim_br10>
//	coordinator -addr HOST:PORT status
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/reactorctl/reactorctl/internal/wire"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:26800", "Supervisor Coordinator service address")
	timeout := flag.Duration("timeout", 5*time.Second, "Request timeout")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: coordinator -addr HOST:PORT <mode|target|limit|status> [args...]")
		os.Exit(2)
	}

	var payload map[string]any
	switch args[0] {
	case "mode":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: coordinator mode <INACTIVE|SIMPLE|BURN_RATE|CHARGE|GEN_RATE>")
			os.Exit(2)
		}
		payload = map[string]any{"cmd": "set_mode", "mode": args[1]}
	case "target":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: coordinator target <value>")
			os.Exit(2)
		}
		v, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid target %q: %v\n", args[1], err)
			os.Exit(2)
		}
		payload = map[string]any{"cmd": "set_target", "target": v}
	case "limit":
		if len(args) != 3 {
			fmt.Fprintln(os.Stderr, "usage: coordinator limit <unit-id> <lim_br10>")
			os.Exit(2)
		}
		unitID, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid unit-id %q: %v\n", args[1], err)
			os.Exit(2)
		}
		limit, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid lim_br10 %q: %v\n", args[2], err)
			os.Exit(2)
		}
		payload = map[string]any{"cmd": "set_unit_limit", "unit_id": unitID, "lim_br10": limit}
	case "status":
		payload = map[string]any{"cmd": "get_status"}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		os.Exit(2)
	}

	resp, err := sendRequest(*addr, *timeout, payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	if args[0] == "status" {
		printStatus(resp)
		return
	}
	printAck(resp)
}

// sendRequest dials addr, sends one COORD_CMD packet carrying payload,
// and returns the response packet's payload table.
func sendRequest(addr string, timeout time.Duration, payload map[string]any) (map[string]any, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	req := wire.New("coordinator", 1, wire.ClassCoordCmd, payload)
	if err := wire.Encode(conn, req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	resp, err := wire.Decode(bufio.NewReader(conn))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return resp.Payload, nil
}

func printAck(resp map[string]any) {
	accepted, _ := resp["accepted"].(bool)
	if accepted {
		fmt.Println("ok")
		return
	}
	reason, _ := resp["rejection_reason"].(string)
	fmt.Fprintf(os.Stderr, "rejected: %s\n", reason)
	os.Exit(1)
}

func printStatus(resp map[string]any) {
	accepted, _ := resp["accepted"].(bool)
	if !accepted {
		reason, _ := resp["rejection_reason"].(string)
		fmt.Fprintf(os.Stderr, "rejected: %s\n", reason)
		os.Exit(1)
	}

	mode, _ := resp["mode"].(string)
	autoScram, _ := resp["auto_scram"].(bool)
	fmt.Printf("mode: %s  auto_scram: %v", mode, autoScram)
	if autoScram {
		reason, _ := resp["auto_scram_reason"].(string)
		fmt.Printf(" (%s)", reason)
	}
	fmt.Println()

	units, _ := resp["units"].([]map[string]any)
	for _, u := range units {
		unitID, _ := u["unit_id"].(int)
		br10, _ := u["br10"].(int64)
		limBR10, _ := u["lim_br10"].(int64)
		tripped, _ := u["rps_tripped"].(bool)
		firstTrip, _ := u["first_trip"].(string)
		fmt.Printf("  unit %d  br10=%d  lim_br10=%d  rps_tripped=%v  first_trip=%s\n",
			unitID, br10, limBR10, tripped, firstTrip)
	}
}
