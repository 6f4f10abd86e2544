package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"breathpacer/internal/ipc"
)

// beat-ctl sends beats to a running breathpacer over its control socket.
// Useful for tapping along by hand or for scripted tests without a sensor.
//
// Usage:
//   beat-ctl beat
//   beat-ctl beat 12 0.9     (12 beats, 0.9 s apart)
//   beat-ctl ping
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/breathpacer.sock)

const requestTimeout = 2 * time.Second

func main() {
	socketPath := ipc.DefaultSocketPath

	args := os.Args[1:]
	if len(args) > 0 && (args[0] == "-socket" || args[0] == "--socket") {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch args[0] {
	case "beat", "b":
		err = sendBeats(socketPath, args[1:])

	case "ping":
		err = ipc.Send(socketPath, ipc.Request{Type: ipc.TypePing}, requestTimeout)

	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("ok")
}

// sendBeats sends count beats spaced interval seconds apart. The daemon
// timestamps each beat on arrival.
func sendBeats(socketPath string, args []string) error {
	count := 1
	interval := 1.0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid beat count %q", args[0])
		}
		count = n
	}
	if len(args) > 1 {
		s, err := strconv.ParseFloat(args[1], 64)
		if err != nil || s <= 0 {
			return fmt.Errorf("invalid interval %q", args[1])
		}
		interval = s
	}

	for i := 0; i < count; i++ {
		if i > 0 {
			time.Sleep(time.Duration(interval * float64(time.Second)))
		}
		if err := ipc.Send(socketPath, ipc.Request{Type: ipc.TypeBeat}, requestTimeout); err != nil {
			return fmt.Errorf("beat %d: %w", i+1, err)
		}
	}
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `beat-ctl - Send beats to breathpacer via IPC

Usage:
  beat-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: %s)

Commands:
  beat [count] [interval_s]   Send one or more beats (default 1 beat, 1.0 s apart)
  ping                        Check the daemon is listening
  help                        Show this help

Examples:
  beat-ctl beat
  beat-ctl beat 18 0.95
  beat-ctl -socket /run/breathpacer.sock ping
`, ipc.DefaultSocketPath)
}
