package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	batchreplay "geofence-events/cmd/batch_replay"
	geofenceservice "geofence-events/cmd/geofence_service"
	"geofence-events/internal/cli"
)

func main() {
	// quick path for global help
	if len(os.Args) == 2 && (os.Args[1] == "--help" || os.Args[1] == "-h") {
		cli.PrintUsage(os.Stdout)
		os.Exit(0)
	}

	// parse mode and collect the remaining args for that mode
	mode, modeArgs, err := cli.ParseMode(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cli.PrintUsage(os.Stderr)
		os.Exit(2)
	}

	// context cancelled on SIGINT/SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch mode {

	case cli.ModeService:
		fs := flag.NewFlagSet(cli.ModeService, flag.ContinueOnError)
		configPath := fs.String("config", "config/config.yaml", "Path to the configuration file")
		maxConc := fs.Int("max-concurrent", 100, "Maximum number of concurrent HTTP requests to process")
		prefetch := fs.Int("prefetch", 0, "RabbitMQ prefetch for the position queue (0 uses rabbitmq.prefetch)")
		cli.AttachUsage(fs, cli.ModeService)

		if err := fs.Parse(modeArgs); err != nil {
			if err == flag.ErrHelp {
				os.Exit(0)
			}
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(2)
		}
		if *maxConc < 1 {
			fmt.Fprintln(os.Stderr, "Error: --max-concurrent must be >= 1")
			fs.Usage()
			os.Exit(2)
		}
		if *prefetch < 0 {
			fmt.Fprintln(os.Stderr, "Error: --prefetch must be >= 0")
			fs.Usage()
			os.Exit(2)
		}
		if err := geofenceservice.Run(ctx, *configPath, *maxConc, *prefetch); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}

	case cli.ModeReplay:
		fs := flag.NewFlagSet(cli.ModeReplay, flag.ContinueOnError)
		configPath := fs.String("config", "config/config.yaml", "Path to the configuration file")
		file := fs.String("file", "", "JSON file with one position or an array of positions (- for stdin)")
		persist := fs.Bool("persist", false, "Store emitted events in geofence_events")
		rules := fs.Bool("rules", false, "Evaluate rules against the emitted events")
		cli.AttachUsage(fs, cli.ModeReplay)

		if err := fs.Parse(modeArgs); err != nil {
			if err == flag.ErrHelp {
				os.Exit(0)
			}
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(2)
		}
		if *file == "" {
			fmt.Fprintln(os.Stderr, "Error: --file is required")
			fs.Usage()
			os.Exit(2)
		}
		opts := batchreplay.Options{ConfigPath: *configPath, File: *file, Persist: *persist, Rules: *rules}
		if err := batchreplay.Run(ctx, opts, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}

	default:
		// should not happen because ParseMode validates known modes
		fmt.Fprintln(os.Stderr, "Error: unknown mode")
		os.Exit(2)
	}

	// tiny delay to let deferred logs flush on very fast exits
	select {
	case <-ctx.Done():
	case <-time.After(10 * time.Millisecond):
	}
}
