package geofenceservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"geofence-events/internal/general/channels"
	"geofence-events/internal/general/config"
	"geofence-events/internal/general/jwt"
	"geofence-events/internal/general/logger"
	"geofence-events/internal/general/mqtt"
	"geofence-events/internal/general/postgres"
	"geofence-events/internal/general/rabbitmq"
	"geofence-events/internal/general/redis"
	"geofence-events/internal/general/websocket"
	"geofence-events/internal/ports"
	"geofence-events/internal/software/adminboard/handler"
	adminsvc "geofence-events/internal/software/adminboard/service"
	ingestsvc "geofence-events/internal/software/ingest/service"
	rulessvc "geofence-events/internal/software/rules/service"
	trackingsvc "geofence-events/internal/software/tracking/service"

	"golang.org/x/sync/errgroup"
)

// Run wires the geofence pipeline (tracker, rule engine, notification hub and the
// admin HTTP surface) and blocks until ctx is cancelled.
func Run(ctx context.Context, configPath string, maxConcurrent, prefetch int) error {
	// set up a new logger with a static request ID for startup logs
	logger := logger.New("geofence-service")
	ctx = logger.WithRequestID(ctx, "startup-001")

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err, map[string]any{"path": configPath})
		return err
	}
	if prefetch <= 0 {
		prefetch = cfg.RabbitMQ.Prefetch
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to resolve engine timezone", err, nil)
		return err
	}

	// set up a Postgres connection pool
	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	// set up the repos
	uow := postgres.NewUnitOfWork(pool)
	geometry := postgres.NewGeometryRepo(uow)
	eventRepo := postgres.NewEventRepo(uow)
	ruleRepo := postgres.NewRuleRepo(uow)
	vehicleRepo := postgres.NewVehicleRepo(uow)

	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, cfg.JWT.TTL)

	hub := websocket.NewHub(logger, jwtManager, websocket.Options{
		PingInterval:  cfg.Hub.PingInterval,
		SweepInterval: cfg.Hub.SweepInterval,
		WriteTimeout:  cfg.Hub.WriteTimeout,
		SendQueue:     cfg.Hub.SendQueue,
	})

	// rule state lives in Redis when enabled so cooldowns survive restarts
	var ruleStates ports.RuleStateStore
	if cfg.Redis.Enabled {
		rdb, err := redis.NewClient(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			logger.Error(ctx, "redis_connection_failed", "Failed to connect to Redis", err, map[string]any{"addr": cfg.Redis.Addr})
			return err
		}
		defer rdb.Close()
		ruleStates = redis.NewRuleStateStore(rdb, cfg.Engine.StateIdle)
		logger.Info(ctx, "redis_connected", "Rule state stored in Redis", map[string]any{"addr": cfg.Redis.Addr})
	}

	// RabbitMQ carries position intake, event fan-out and email/sms jobs
	var (
		mq          *rabbitmq.Client
		mqPublisher *rabbitmq.MQPublisher
		jobs        *channels.JobPublisher
	)
	if cfg.RabbitMQ.Enabled {
		mq, err = rabbitmq.ConnectRabbitMQ(ctx, cfg, logger)
		if err != nil {
			logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
			return err
		}
		defer mq.Close()
		mqPublisher = rabbitmq.NewMQPublisher(mq)
		jobs = channels.NewJobPublisher(mqPublisher)
	}

	webhook := channels.NewWebhookSender(channels.WebhookOptions{
		Timeout:    cfg.Webhook.Timeout,
		RetryCount: cfg.Webhook.RetryCount,
	})
	adapters := channels.NewAdapters(logger, webhook, jobs)

	engine := rulessvc.NewEngine(logger, ruleRepo, hub, adapters, vehicleRepo, ruleStates, rulessvc.Options{
		CacheTTL:        cfg.Engine.CacheTTL,
		CacheMaxAge:     cfg.Engine.CacheMaxAge,
		StateIdle:       cfg.Engine.StateIdle,
		MinRetrigger:    cfg.Engine.MinRetrigger,
		CleanupInterval: cfg.Engine.CleanupInterval,
		RefreshInterval: cfg.Engine.RefreshInterval,
		Parallelism:     cfg.Engine.Parallelism,
		Location:        loc,
	})
	defer engine.Close()
	if err := engine.Reload(ctx); err != nil {
		// the periodic refresh retries; start with an empty rule set
		logger.Warn(ctx, "rules_load_failed", "Initial rule load failed", err, nil)
	}

	tracker := trackingsvc.NewTracker(logger, geometry, eventRepo, nil, trackingsvc.Options{
		OracleTimeout:   cfg.Tracker.OracleTimeout,
		StoreTimeout:    cfg.Tracker.StoreTimeout,
		IdleThreshold:   cfg.Tracker.IdleThreshold,
		CleanupInterval: cfg.Tracker.CleanupInterval,
	})
	tracker.AddListener(engine)
	tracker.AddListener(hub)
	if mqPublisher != nil {
		tracker.AddListener(rabbitmq.NewEventPublisher(mqPublisher, logger))
	}

	ingestor := ingestsvc.NewIngestor(logger, tracker)

	if cfg.MQTT.Enabled {
		mqttClient, err := mqtt.Connect(ctx, cfg, logger)
		if err != nil {
			logger.Error(ctx, "mqtt_connection_failed", "Failed to connect to MQTT broker", err, map[string]any{"broker": cfg.MQTT.Broker})
			return err
		}
		defer mqttClient.Disconnect()
		if err := ingestor.SubscribeTopic(ctx, mqttClient, cfg.MQTT.Topic, byte(cfg.MQTT.QoS)); err != nil {
			logger.Error(ctx, "mqtt_subscribe_failed", "Failed to subscribe to position topic", err, map[string]any{"topic": cfg.MQTT.Topic})
			return err
		}
	}

	svc := adminsvc.NewAdminService(logger, tracker, engine, geometry, hub)
	mux := http.NewServeMux()
	httpHandler := handler.NewAdminHTTPHandler(svc, ingestor, hub.Connect, logger, jwtManager)
	httpHandler.RegisterRoutes(mux)

	// websocket sessions are long-lived and must not hold a limiter slot
	limitedHandler := withConcurrencyLimit(maxConcurrent, mux, "/ws/")

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Services.GeofenceServicePort),
		Handler:           limitedHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return tracker.Run(gctx) })
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error { return hub.Run(gctx) })

	if mq != nil {
		g.Go(func() error {
			return ingestor.RunQueue(gctx, mq, mq.PositionQueue(), prefetch)
		})
	}

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.Services.GeofenceServicePort})
			return err
		}
		return nil
	})

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Geofence service started on port %d", cfg.Services.GeofenceServicePort),
		map[string]any{
			"port":           cfg.Services.GeofenceServicePort,
			"max_concurrent": maxConcurrent,
			"rabbitmq":       cfg.RabbitMQ.Enabled,
			"mqtt":           cfg.MQTT.Enabled,
			"redis":          cfg.Redis.Enabled,
		},
	)

	// shut down when the parent context ends or any component fails
	g.Go(func() error {
		<-gctx.Done()
		hub.Close()
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
		return nil
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info(ctx, "service_stopped", "Geofence service stopped", nil)
	return nil
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// Requests whose path starts with one of the exempt prefixes bypass it.
func withConcurrencyLimit(n int, next http.Handler, exempt ...string) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range exempt {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}
		select {
		case sem <- struct{}{}: // acquire
			defer func() { <-sem }() // release
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			// client canceled or server is shutting down
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
