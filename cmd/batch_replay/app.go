package batchreplay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"geofence-events/internal/domain/geofence"
	"geofence-events/internal/general/config"
	"geofence-events/internal/general/logger"
	"geofence-events/internal/general/postgres"
	"geofence-events/internal/ports"
	ingestsvc "geofence-events/internal/software/ingest/service"
	rulessvc "geofence-events/internal/software/rules/service"
	trackingsvc "geofence-events/internal/software/tracking/service"
)

// Options selects what a replay touches besides the geometry tables.
type Options struct {
	ConfigPath string
	File       string // "-" reads stdin
	Persist    bool   // write emitted events to geofence_events
	Rules      bool   // evaluate rules; actions run without hub and channel adapters
}

// summary is printed to stdout when the replay finishes.
type summary struct {
	Accepted int            `json:"accepted"`
	Rejected map[int]string `json:"rejected,omitempty"`
	Events   int            `json:"events"`
	Enter    int            `json:"enter"`
	Exit     int            `json:"exit"`
	Vehicles int            `json:"vehicles"`
}

// Run replays a recorded position file through a fresh membership tracker and reports
// the events it produces. Positions are processed in file order.
func Run(ctx context.Context, opts Options, out io.Writer) error {
	logger := logger.New("batch-replay")
	ctx = logger.WithRequestID(ctx, "replay-001")

	cfg, err := config.LoadFromFile(opts.ConfigPath)
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err, map[string]any{"path": opts.ConfigPath})
		return err
	}

	body, err := readInput(opts.File)
	if err != nil {
		logger.Error(ctx, "replay_input_failed", "Failed to read replay file", err, map[string]any{"file": opts.File})
		return err
	}

	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	uow := postgres.NewUnitOfWork(pool)

	var events ports.EventStore
	if opts.Persist {
		events = postgres.NewEventRepo(uow)
	}

	tracker := trackingsvc.NewTracker(logger, postgres.NewGeometryRepo(uow), events, nil, trackingsvc.Options{
		OracleTimeout: cfg.Tracker.OracleTimeout,
		StoreTimeout:  cfg.Tracker.StoreTimeout,
	})

	if opts.Rules {
		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		engine := rulessvc.NewEngine(logger, postgres.NewRuleRepo(uow), nil, nil, postgres.NewVehicleRepo(uow), nil, rulessvc.Options{
			CacheTTL:     cfg.Engine.CacheTTL,
			MinRetrigger: cfg.Engine.MinRetrigger,
			Parallelism:  cfg.Engine.Parallelism,
			Location:     loc,
		})
		defer engine.Close()
		if err := engine.Reload(ctx); err != nil {
			logger.Error(ctx, "rules_load_failed", "Failed to load rules", err, nil)
			return err
		}
		tracker.AddListener(engine)
	}

	res, err := ingestsvc.NewIngestor(logger, tracker).Ingest(ctx, body, "")
	if err != nil {
		logger.Error(ctx, "replay_decode_failed", "Replay file is not a position or a list of positions", err, nil)
		return err
	}

	sum := summary{Accepted: res.Accepted, Events: len(res.Events)}
	vehicles := make(map[string]struct{})
	for _, ev := range res.Events {
		if ev.Type == geofence.EventEnter {
			sum.Enter++
		} else {
			sum.Exit++
		}
		vehicles[ev.VehicleID] = struct{}{}
		logger.Info(ctx, "replay_event", fmt.Sprintf("%s %s %s", ev.VehicleID, ev.Type, ev.RegionID()), map[string]any{
			"vehicle_id": ev.VehicleID,
			"type":       ev.Type,
			"region_id":  ev.RegionID(),
			"timestamp":  ev.Timestamp,
		})
	}
	sum.Vehicles = len(vehicles)

	if len(res.Rejected) > 0 {
		sum.Rejected = make(map[int]string, len(res.Rejected))
		idx := make([]int, 0, len(res.Rejected))
		for i := range res.Rejected {
			idx = append(idx, i)
		}
		sort.Ints(idx)
		for _, i := range idx {
			sum.Rejected[i] = res.Rejected[i].Error()
			logger.Warn(ctx, "replay_position_rejected", "position skipped", res.Rejected[i], map[string]any{"index": i})
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
