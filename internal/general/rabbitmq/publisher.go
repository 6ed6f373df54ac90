package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"geofence-events/internal/general/contracts"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher publishes JSON bodies. *MQPublisher implements it.
type Publisher interface {
	PublishJSON(ctx context.Context, exchange, routingKey string, v any) error
}

// MQPublisher publishes through a Client's confirm channel.
type MQPublisher struct {
	client *Client
}

// NewMQPublisher wraps client.
func NewMQPublisher(client *Client) *MQPublisher {
	return &MQPublisher{client: client}
}

// Publish sends a raw body to exchange with routingKey.
func (publisher *MQPublisher) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	return publisher.client.PublishMessage(ctx, exchange, routingKey, body)
}

// PublishJSON marshals v and publishes it.
func (publisher *MQPublisher) PublishJSON(ctx context.Context, exchange, routingKey string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal %s message: %w", routingKey, err)
	}
	return publisher.Publish(ctx, exchange, routingKey, body)
}

const (
	publishTimeout    = 5 * time.Second
	lateConfirmWindow = 2 * time.Second
)

var (
	errConnClosed    = errors.New("rabbitmq: connection is not open")
	errPubChanClosed = errors.New("rabbitmq: publish channel is not open")
	errConfirmClosed = errors.New("rabbitmq: confirm stream closed")
	errNacked        = errors.New("rabbitmq: publish not acknowledged")
)

// PublishMessage publishes a persistent mandatory JSON message and waits for the broker confirm.
// Publishes are serialized so each confirmation lines up with its message.
func (client *Client) PublishMessage(ctx context.Context, exchange, routingKey string, body []byte) error {
	client.mu.RLock()
	ch := client.pubChan
	conn := client.conn
	client.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return errConnClosed
	}
	if ch == nil || ch.IsClosed() {
		return errPubChanClosed
	}

	client.pubMu.Lock()
	defer client.pubMu.Unlock()
	confirms := client.pubConfirms

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	msg := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    uuid.NewString(),
		AppId:        contracts.Producer,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, exchange, routingKey, true, false, msg); err != nil {
		return fmt.Errorf("rabbitmq: publish %s/%s: %w", exchange, routingKey, err)
	}

	select {
	case c, ok := <-confirms:
		if !ok {
			return errConfirmClosed
		}
		if !c.Ack {
			return errNacked
		}
		return nil
	case <-ctx.Done():
		// drain the late confirm so the next publish reads its own
		select {
		case <-confirms:
		case <-time.After(lateConfirmWindow):
		}
		return ctx.Err()
	}
}
