package mqtt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"geofence-events/internal/general/config"
	"geofence-events/internal/general/logger"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const disconnectQuiesceMs = 250

// MessageHandler handles one MQTT message. Errors are logged, never retried.
type MessageHandler func(ctx context.Context, topic string, payload []byte) error

// Client wraps a paho client with the service logger.
type Client struct {
	client paho.Client
	logger *logger.Logger
	logCtx context.Context
}

// Connect dials the broker from cfg.MQTT and waits for the CONNACK.
func Connect(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*Client, error) {
	c := &Client{logger: logger, logCtx: context.WithoutCancel(ctx)}

	opts := paho.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn(c.logCtx, "mqtt_connection_lost", "MQTT connection lost; reconnecting", err, nil)
		}).
		SetOnConnectHandler(func(paho.Client) {
			logger.Info(c.logCtx, "mqtt_connected", "Connected to MQTT broker", map[string]any{"broker": cfg.MQTT.Broker})
		})

	c.client = paho.NewClient(opts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return c, nil
}

// Subscribe registers handler for topic. Each message gets its own context derived from ctx.
func (c *Client) Subscribe(ctx context.Context, topic string, qos byte, handler MessageHandler) error {
	callback := func(_ paho.Client, msg paho.Message) {
		hCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		defer func() {
			if p := recover(); p != nil {
				c.logger.Error(c.logCtx, "mqtt_handler_panic", "MQTT handler panicked", fmt.Errorf("%v", p), map[string]any{"topic": msg.Topic()})
			}
		}()
		if err := handler(hCtx, msg.Topic(), msg.Payload()); err != nil {
			c.logger.Warn(c.logCtx, "mqtt_message_rejected", "MQTT message rejected", err, map[string]any{
				"topic": msg.Topic(),
				"size":  len(msg.Payload()),
			})
		}
	}

	if token := c.client.Subscribe(topic, qos, callback); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, token.Error())
	}
	c.logger.Info(c.logCtx, "mqtt_subscribed", "Subscribed to MQTT topic", map[string]any{"topic": topic, "qos": qos})
	return nil
}

// Disconnect closes the session after a short quiesce.
func (c *Client) Disconnect() {
	c.client.Disconnect(disconnectQuiesceMs)
}

// IsConnected reports the paho connection state.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// TopicSegment returns the segment of topic matched by the single-level
// wildcard "+" at the same position in pattern, or "" if topic does not match.
//
//	TopicSegment("/fleet/vehicle/+/location", "/fleet/vehicle/V1/location") == "V1"
func TopicSegment(pattern, topic string) string {
	ps := strings.Split(pattern, "/")
	ts := strings.Split(topic, "/")
	if len(ps) != len(ts) {
		return ""
	}
	segment := ""
	for i := range ps {
		switch ps[i] {
		case "+":
			if segment == "" {
				segment = ts[i]
			}
		case ts[i]:
		default:
			return ""
		}
	}
	return segment
}
