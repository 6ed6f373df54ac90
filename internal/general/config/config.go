package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Name     string // YAML key: "database"
		MaxConns int
	}
	RabbitMQ struct {
		Enabled       bool
		Host          string
		Port          int
		User          string
		Password      string
		PositionQueue string
		Prefetch      int
	}
	MQTT struct {
		Enabled  bool
		Broker   string // e.g. tcp://localhost:1883
		ClientID string
		Topic    string
		QoS      int
	}
	Redis struct {
		Enabled  bool
		Addr     string
		Password string
		DB       int
	}
	Services struct {
		GeofenceServicePort int
	}
	JWT struct {
		SecretKey string `yaml:"secret_key"`
		TTL       time.Duration
	}
	Tracker struct {
		OracleTimeout   time.Duration
		StoreTimeout    time.Duration
		IdleThreshold   time.Duration
		CleanupInterval time.Duration
	}
	Engine struct {
		CacheTTL        time.Duration
		CacheMaxAge     time.Duration
		StateIdle       time.Duration
		CleanupInterval time.Duration
		MinRetrigger    time.Duration
		RefreshInterval time.Duration
		Parallelism     int
		Timezone        string
	}
	Hub struct {
		PingInterval  time.Duration
		SweepInterval time.Duration
		WriteTimeout  time.Duration
		SendQueue     int
	}
	Webhook struct {
		Timeout    time.Duration
		RetryCount int
	}
}

// LoadFromFile loads config from a YAML file to a Config struct, applies defaults, and validates required fields.
func LoadFromFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := parseYAML(file, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets safe defaults for some fields.
func applyDefaults(cfg *Config) {
	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}
	if cfg.RabbitMQ.PositionQueue == "" {
		cfg.RabbitMQ.PositionQueue = "vehicle_positions"
	}
	if cfg.RabbitMQ.Prefetch == 0 {
		cfg.RabbitMQ.Prefetch = 32
	}

	// MQTT
	if cfg.MQTT.Broker == "" {
		cfg.MQTT.Broker = "tcp://localhost:1883"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "geofence-service"
	}
	if cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = "/fleet/vehicle/+/location"
	}

	// Redis
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}

	// Services
	if cfg.Services.GeofenceServicePort == 0 {
		cfg.Services.GeofenceServicePort = 3010
	}

	// JWT
	if cfg.JWT.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// fallback: time-based bytes
			key = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		cfg.JWT.SecretKey = base64.StdEncoding.EncodeToString(key)
	}
	if cfg.JWT.TTL == 0 {
		cfg.JWT.TTL = 24 * time.Hour
	}

	// Tracker
	setDuration(&cfg.Tracker.OracleTimeout, 2*time.Second)
	setDuration(&cfg.Tracker.StoreTimeout, 2*time.Second)
	setDuration(&cfg.Tracker.IdleThreshold, 30*time.Minute)
	setDuration(&cfg.Tracker.CleanupInterval, 5*time.Minute)

	// Engine
	setDuration(&cfg.Engine.CacheTTL, 5*time.Second)
	setDuration(&cfg.Engine.CacheMaxAge, 5*time.Minute)
	setDuration(&cfg.Engine.StateIdle, 30*time.Minute)
	setDuration(&cfg.Engine.CleanupInterval, 5*time.Minute)
	setDuration(&cfg.Engine.RefreshInterval, time.Minute)
	if cfg.Engine.Parallelism == 0 {
		cfg.Engine.Parallelism = 1
	}
	if cfg.Engine.Timezone == "" {
		cfg.Engine.Timezone = "Local"
	}

	// Hub
	setDuration(&cfg.Hub.PingInterval, 30*time.Second)
	setDuration(&cfg.Hub.SweepInterval, 60*time.Second)
	setDuration(&cfg.Hub.WriteTimeout, 5*time.Second)
	if cfg.Hub.SendQueue == 0 {
		cfg.Hub.SendQueue = 64
	}

	// Webhook
	setDuration(&cfg.Webhook.Timeout, 5*time.Second)
	if cfg.Webhook.RetryCount == 0 {
		cfg.Webhook.RetryCount = 2
	}
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d == 0 {
		*d = def
	}
}

// Location resolves Engine.Timezone for TIME_WINDOW evaluation.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Engine.Timezone)
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	checkPort := func(name string, p int) {
		if p <= 0 || p > 65535 {
			problems = append(problems, name+" must be in 1..65535")
		}
	}

	// DB
	checkPort("database.port", c.Database.Port)
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "database.password is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.name is required")
	}

	// RabbitMQ
	if c.RabbitMQ.Enabled {
		checkPort("rabbitmq.port", c.RabbitMQ.Port)
		if c.RabbitMQ.User == "" {
			problems = append(problems, "rabbitmq.user is required")
		}
		if c.RabbitMQ.Password == "" {
			problems = append(problems, "rabbitmq.password is required")
		}
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		problems = append(problems, "mqtt.qos must be 0, 1 or 2")
	}

	// Services
	checkPort("services.geofence_service", c.Services.GeofenceServicePort)

	// Engine
	if c.Engine.Parallelism < 1 {
		problems = append(problems, "engine.parallelism must be >= 1")
	}
	if _, err := c.Location(); err != nil {
		problems = append(problems, fmt.Sprintf("engine.timezone: %v", err))
	}

	// Hub
	if c.Hub.SweepInterval < c.Hub.PingInterval {
		problems = append(problems, "hub.sweep_interval must be >= hub.ping_interval")
	}
	if c.Hub.SendQueue < 1 {
		problems = append(problems, "hub.send_queue must be >= 1")
	}

	if c.Webhook.RetryCount < 0 {
		problems = append(problems, "webhook.retry_count must be >= 0")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
