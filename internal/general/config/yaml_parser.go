package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

type section string

const (
	secNone     section = ""
	secDatabase section = "database"
	secRabbitMQ section = "rabbitmq"
	secMQTT     section = "mqtt"
	secRedis    section = "redis"
	secServices section = "services"
	secJWT      section = "jwt"
	secTracker  section = "tracker"
	secEngine   section = "engine"
	secHub      section = "hub"
	secWebhook  section = "webhook"
)

var knownSections = map[string]section{
	"database": secDatabase,
	"rabbitmq": secRabbitMQ,
	"mqtt":     secMQTT,
	"redis":    secRedis,
	"services": secServices,
	"jwt":      secJWT,
	"tracker":  secTracker,
	"engine":   secEngine,
	"hub":      secHub,
	"webhook":  secWebhook,
}

// parseYAML parses the two-level mapping used by config.yaml
func parseYAML(r io.Reader, cfg *Config) error {
	scanner := bufio.NewScanner(r)
	cur := secNone

	lineNo := 0
	seenTop := map[section]bool{}

	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()

		// strip comments (not inside quotes)
		raw = stripComment(raw)

		line := strings.TrimRight(raw, " \t\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}

		// top-level section? (no leading spaces)
		if line[0] != ' ' && line[0] != '\t' {
			name := strings.TrimSuffix(strings.TrimSpace(line), ":")
			sec, ok := knownSections[name]
			if !ok || !strings.HasSuffix(strings.TrimSpace(line), ":") {
				return fmt.Errorf("line %d: unknown top-level key %q", lineNo, name)
			}
			if seenTop[sec] {
				return fmt.Errorf("line %d: duplicate '%s' section", lineNo, name)
			}
			seenTop[sec] = true
			cur = sec
			continue
		}

		// expect indented "key: value"
		if cur == secNone {
			return fmt.Errorf("line %d: key without a section", lineNo)
		}
		trim := strings.TrimSpace(line)
		colon := strings.IndexByte(trim, ':')
		if colon <= 0 {
			return fmt.Errorf("line %d: expected 'key: value'", lineNo)
		}
		key := strings.TrimSpace(trim[:colon])
		val := resolveScalar(trim[colon+1:])

		if err := assign(cfg, cur, key, val); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}

	return scanner.Err()
}

func assign(cfg *Config, sec section, key, val string) error {
	p := fieldParser{sec: sec, key: key, val: val}

	switch sec {
	case secDatabase:
		switch key {
		case "host":
			cfg.Database.Host = val
		case "port":
			return p.int(&cfg.Database.Port)
		case "user":
			cfg.Database.User = val
		case "password":
			cfg.Database.Password = val
		case "database":
			cfg.Database.Name = val
		case "max_conns":
			return p.int(&cfg.Database.MaxConns)
		default:
			return p.unknown()
		}
	case secRabbitMQ:
		switch key {
		case "enabled":
			return p.bool(&cfg.RabbitMQ.Enabled)
		case "host":
			cfg.RabbitMQ.Host = val
		case "port":
			return p.int(&cfg.RabbitMQ.Port)
		case "user":
			cfg.RabbitMQ.User = val
		case "password":
			cfg.RabbitMQ.Password = val
		case "position_queue":
			cfg.RabbitMQ.PositionQueue = val
		case "prefetch":
			return p.int(&cfg.RabbitMQ.Prefetch)
		default:
			return p.unknown()
		}
	case secMQTT:
		switch key {
		case "enabled":
			return p.bool(&cfg.MQTT.Enabled)
		case "broker":
			cfg.MQTT.Broker = val
		case "client_id":
			cfg.MQTT.ClientID = val
		case "topic":
			cfg.MQTT.Topic = val
		case "qos":
			return p.int(&cfg.MQTT.QoS)
		default:
			return p.unknown()
		}
	case secRedis:
		switch key {
		case "enabled":
			return p.bool(&cfg.Redis.Enabled)
		case "addr":
			cfg.Redis.Addr = val
		case "password":
			cfg.Redis.Password = val
		case "db":
			return p.int(&cfg.Redis.DB)
		default:
			return p.unknown()
		}
	case secServices:
		switch key {
		case "geofence_service":
			return p.int(&cfg.Services.GeofenceServicePort)
		default:
			return p.unknown()
		}
	case secJWT:
		switch key {
		case "secret_key":
			cfg.JWT.SecretKey = val
		case "ttl":
			return p.duration(&cfg.JWT.TTL)
		default:
			return p.unknown()
		}
	case secTracker:
		switch key {
		case "oracle_timeout":
			return p.duration(&cfg.Tracker.OracleTimeout)
		case "store_timeout":
			return p.duration(&cfg.Tracker.StoreTimeout)
		case "idle_threshold":
			return p.duration(&cfg.Tracker.IdleThreshold)
		case "cleanup_interval":
			return p.duration(&cfg.Tracker.CleanupInterval)
		default:
			return p.unknown()
		}
	case secEngine:
		switch key {
		case "cache_ttl":
			return p.duration(&cfg.Engine.CacheTTL)
		case "cache_max_age":
			return p.duration(&cfg.Engine.CacheMaxAge)
		case "state_idle":
			return p.duration(&cfg.Engine.StateIdle)
		case "cleanup_interval":
			return p.duration(&cfg.Engine.CleanupInterval)
		case "min_retrigger":
			return p.duration(&cfg.Engine.MinRetrigger)
		case "refresh_interval":
			return p.duration(&cfg.Engine.RefreshInterval)
		case "parallelism":
			return p.int(&cfg.Engine.Parallelism)
		case "timezone":
			cfg.Engine.Timezone = val
		default:
			return p.unknown()
		}
	case secHub:
		switch key {
		case "ping_interval":
			return p.duration(&cfg.Hub.PingInterval)
		case "sweep_interval":
			return p.duration(&cfg.Hub.SweepInterval)
		case "write_timeout":
			return p.duration(&cfg.Hub.WriteTimeout)
		case "send_queue":
			return p.int(&cfg.Hub.SendQueue)
		default:
			return p.unknown()
		}
	case secWebhook:
		switch key {
		case "timeout":
			return p.duration(&cfg.Webhook.Timeout)
		case "retry_count":
			return p.int(&cfg.Webhook.RetryCount)
		default:
			return p.unknown()
		}
	}
	return nil
}

// fieldParser converts one scalar and formats errors as "<section>.<key> ...".
type fieldParser struct {
	sec section
	key string
	val string
}

func (p fieldParser) int(dst *int) error {
	n, err := strconv.Atoi(p.val)
	if err != nil {
		return fmt.Errorf("%s.%s must be int: %v", p.sec, p.key, err)
	}
	*dst = n
	return nil
}

func (p fieldParser) bool(dst *bool) error {
	b, err := strconv.ParseBool(p.val)
	if err != nil {
		return fmt.Errorf("%s.%s must be bool: %v", p.sec, p.key, err)
	}
	*dst = b
	return nil
}

func (p fieldParser) duration(dst *time.Duration) error {
	d, err := time.ParseDuration(p.val)
	if err != nil {
		return fmt.Errorf("%s.%s must be a duration like 30s: %v", p.sec, p.key, err)
	}
	if d < 0 {
		return fmt.Errorf("%s.%s cannot be negative", p.sec, p.key)
	}
	*dst = d
	return nil
}

func (p fieldParser) unknown() error {
	return fmt.Errorf("unknown key in %s: %q", p.sec, p.key)
}

// stripComment drops a trailing "# ..." unless the hash sits inside quotes.
func stripComment(s string) string {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '#':
			return s[:i]
		}
	}
	return s
}

// resolveScalar trims whitespace and removes surrounding quotes from YAML-like scalars.
//
//	"localhost"  -> localhost
//	'password123' -> password123
//	localhost     -> localhost
func resolveScalar(s string) string {
	s = strings.TrimSpace(s)

	n := len(s)
	if n >= 2 {
		if (s[0] == '"' && s[n-1] == '"') || (s[0] == '\'' && s[n-1] == '\'') {
			if unq, err := strconv.Unquote(s); err == nil {
				return unq
			}
			return s[1 : n-1]
		}
	}

	return s
}
