package rabbitmq

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"geofence-events/internal/general/config"
	"geofence-events/internal/general/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	heartbeat        = 10 * time.Second
	dialTimeout      = 30 * time.Second
	reconnectMinWait = time.Second
	reconnectMaxWait = 30 * time.Second
)

// Client owns one AMQP connection plus a confirm-mode publishing channel.
// It re-dials in the background whenever either of them closes and re-declares
// the geofence topology on every successful dial.
type Client struct {
	url           string
	positionQueue string
	logger        *logger.Logger
	logCtx        context.Context

	mu      sync.RWMutex
	conn    *amqp.Connection
	pubChan *amqp.Channel

	pubMu       sync.Mutex
	pubConfirms chan amqp.Confirmation

	closeOnce sync.Once
	closed    chan struct{}
	reconnect chan struct{}
}

// ConnectRabbitMQ dials the broker once, declares the topology and starts the reconnect watcher.
func ConnectRabbitMQ(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*Client, error) {
	client := &Client{
		url:           brokerURL(cfg),
		positionQueue: cfg.RabbitMQ.PositionQueue,
		logger:        logger,
		logCtx:        context.WithoutCancel(ctx),
		closed:        make(chan struct{}),
		reconnect:     make(chan struct{}, 1),
	}

	if err := client.connectOnce(); err != nil {
		return nil, err
	}
	go client.watch()

	return client, nil
}

func brokerURL(cfg *config.Config) string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(cfg.RabbitMQ.User, cfg.RabbitMQ.Password),
		Host:   cfg.RabbitMQ.Host + ":" + strconv.Itoa(cfg.RabbitMQ.Port),
		Path:   "/",
	}
	return u.String()
}

// Close stops the watcher and releases the connection. Safe to call more than once.
func (client *Client) Close() {
	client.closeOnce.Do(func() { close(client.closed) })

	client.mu.Lock()
	if client.pubChan != nil {
		_ = client.pubChan.Close()
		client.pubChan = nil
	}
	if client.conn != nil {
		_ = client.conn.Close()
		client.conn = nil
	}
	client.mu.Unlock()

	// unblock publishers waiting on a confirmation
	client.pubMu.Lock()
	if client.pubConfirms != nil {
		close(client.pubConfirms)
		client.pubConfirms = nil
	}
	client.pubMu.Unlock()
}

// PositionQueue returns the queue positions are consumed from.
func (client *Client) PositionQueue() string {
	return client.positionQueue
}

func (client *Client) isClosed() bool {
	select {
	case <-client.closed:
		return true
	default:
		return false
	}
}

// connectOnce dials, prepares the publishing channel and swaps it in.
func (client *Client) connectOnce() error {
	conn, ch, err := client.dial()
	if err != nil {
		return err
	}

	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	go client.logReturns(ch.NotifyReturn(make(chan amqp.Return, 1)))

	client.pubMu.Lock()
	stale := client.pubConfirms
	client.pubConfirms = confirms
	client.pubMu.Unlock()
	if stale != nil {
		close(stale)
	}

	client.mu.Lock()
	if client.pubChan != nil && !client.pubChan.IsClosed() {
		_ = client.pubChan.Close()
	}
	client.conn = conn
	client.pubChan = ch
	client.mu.Unlock()

	go client.awaitClose(conn, ch)

	client.logger.Info(client.logCtx, "rabbitmq_connected", "RabbitMQ connection established", map[string]any{
		"position_queue": client.positionQueue,
	})
	return nil
}

// dial opens a connection and a confirm-mode channel with the topology declared.
// Nothing is left open on error.
func (client *Client) dial() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(client.url, amqp.Config{
		Heartbeat: heartbeat,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		client.logger.Error(client.logCtx, "rabbitmq_dial_failed", "Failed to dial RabbitMQ", err, nil)
		return nil, nil, fmt.Errorf("rabbitmq dial failed: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		client.logger.Error(client.logCtx, "rabbitmq_open_channel_failed", "Failed to open RabbitMQ channel", err, nil)
		return nil, nil, fmt.Errorf("rabbitmq: failed to open channel: %w", err)
	}

	fail := func(action, msg string, err error) (*amqp.Connection, *amqp.Channel, error) {
		_ = ch.Close()
		_ = conn.Close()
		client.logger.Error(client.logCtx, action, msg, err, nil)
		return nil, nil, fmt.Errorf("rabbitmq: %s: %w", msg, err)
	}

	if err := declareTopology(ch, client.positionQueue); err != nil {
		return fail("rabbitmq_declare_topology_failed", "failed to declare topology", err)
	}
	if err := ch.Confirm(false); err != nil {
		return fail("rabbitmq_enable_confirms_failed", "failed to enable publisher confirms", err)
	}
	return conn, ch, nil
}

// logReturns reports unroutable mandatory publishes until the channel goes away.
func (client *Client) logReturns(returns <-chan amqp.Return) {
	for r := range returns {
		client.logger.Warn(client.logCtx, "rabbitmq_returned", "Message was returned as unroutable",
			fmt.Errorf("code=%d text=%s", r.ReplyCode, r.ReplyText),
			map[string]any{
				"exchange":    r.Exchange,
				"routing_key": r.RoutingKey,
				"size":        len(r.Body),
			},
		)
	}
}

// awaitClose signals the watcher once conn or ch closes.
func (client *Client) awaitClose(conn *amqp.Connection, ch *amqp.Channel) {
	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
	select {
	case <-client.closed:
		return
	case <-connClosed:
	case <-chClosed:
	}

	select {
	case client.reconnect <- struct{}{}:
	default:
	}
}

// watch re-dials with exponential backoff after every close signal.
func (client *Client) watch() {
	for {
		select {
		case <-client.closed:
			return
		case <-client.reconnect:
		}

		wait := reconnectMinWait
		for !client.isClosed() {
			err := client.connectOnce()
			if err == nil {
				client.logger.Info(client.logCtx, "rabbitmq_reconnected", "Reconnected to RabbitMQ", nil)
				break
			}
			client.logger.Warn(client.logCtx, "rabbitmq_reconnect_failed", "Failed to reconnect to RabbitMQ", err, map[string]any{
				"retry_in": wait.String(),
			})

			select {
			case <-client.closed:
				return
			case <-time.After(wait):
			}
			if wait *= 2; wait > reconnectMaxWait {
				wait = reconnectMaxWait
			}
		}
	}
}
