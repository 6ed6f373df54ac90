package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

const (
	ModeService = "geofence-service"
	ModeReplay  = "batch-replay"
)

// isKnownMode checks if the provided mode name is known.
func isKnownMode(s string) (string, bool) {
	switch s {
	case ModeService, "service", "geofence", "g":
		return ModeService, true
	case ModeReplay, "replay", "r":
		return ModeReplay, true
	default:
		return "", false
	}
}

// ParseMode supports:
//
//	--mode=<value>
//	<value> (subcommand shorthand), e.g., `geofence-service --max-concurrent=100`
func ParseMode(args []string) (string, []string, error) {
	var mode string
	var out []string

	for i := range args {
		arg := args[i]
		if after, ok := strings.CutPrefix(arg, "--mode="); ok {
			mode = after
			continue
		}

		if mode == "" {
			if m, ok := isKnownMode(arg); ok {
				mode = m
				continue
			}
		}
		out = append(out, arg)
	}

	if mode == "" {
		return "", out, errors.New("no mode specified: use --mode=<service>")
	}

	m, ok := isKnownMode(mode)
	if !ok {
		return "", out, fmt.Errorf("unknown mode %q", mode)
	}

	return m, out, nil
}

// PrintUsage prints the usage information with examples.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, "\033[36m") // cyan

	fmt.Fprintln(w, `Usage:
  ./geofence-events --mode=<mode> [flags]

Modes:
  geofence-service   Membership tracking, rule engine, notification hub and admin API
  batch-replay       Replay a recorded position file and report the events it produces

Examples:
  ./geofence-events --mode=geofence-service --max-concurrent=100 --prefetch=32
  ./geofence-events --mode=batch-replay --file=positions.json --rules
  cat positions.json | ./geofence-events replay --file=-`)

	fmt.Fprint(w, "\033[0m") // reset
}

// AttachUsage wires a concise per-mode usage to a FlagSet.
func AttachUsage(fs *flag.FlagSet, mode string) {
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: ./geofence-events --mode=%s [flags]\n", mode)
		fs.PrintDefaults()
	}
}
