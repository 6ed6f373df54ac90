package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const handlerTimeout = 30 * time.Second

var (
	// ErrRequeue marks a handler failure as transient: the delivery is nacked with requeue
	// once. Any other handler error drops the delivery.
	ErrRequeue = errors.New("rabbitmq: requeue delivery")

	errNotReady = errors.New("rabbitmq: connection is not ready")
)

// DeliveryHandler processes one delivery. Returning nil acks it.
type DeliveryHandler func(ctx context.Context, d amqp.Delivery) error

// consumerChannel opens a dedicated channel for one consumer with prefetch applied.
func (client *Client) consumerChannel(prefetch int) (*amqp.Channel, error) {
	client.mu.RLock()
	conn := client.conn
	client.mu.RUnlock()
	if conn == nil || conn.IsClosed() {
		return nil, errNotReady
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	if prefetch < 1 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("rabbitmq: set QoS (prefetch=%d): %w", prefetch, err)
	}
	return ch, nil
}

// Consume reads queue with manual acks until ctx is done or the channel closes.
// A nil return means a clean stop; callers resubscribe on error.
func (client *Client) Consume(
	ctx context.Context,
	queue string,
	consumerTag string,
	prefetch int,
	handler func(context.Context, amqp.Delivery) error,
) error {
	ch, err := client.consumerChannel(prefetch)
	if err != nil {
		return err
	}
	defer ch.Close()

	deliveries, err := ch.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: consume(%s): %w", queue, err)
	}
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			if consumerTag != "" {
				_ = ch.Cancel(consumerTag, false)
			}
			return nil

		case cerr := <-chClosed:
			if cerr != nil {
				return fmt.Errorf("rabbitmq: channel closed while consuming %s: %w", queue, cerr)
			}
			return nil

		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			client.settle(queue, d, client.handle(ctx, handler, d))
		}
	}
}

// settle acks, requeues or drops d according to the handler result.
func (client *Client) settle(queue string, d amqp.Delivery, err error) {
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, ErrRequeue) && !d.Redelivered:
		_ = d.Nack(false, true)
	default:
		client.logger.Warn(client.logCtx, "rabbitmq_delivery_dropped", "Dropping delivery after handler failure", err, map[string]any{
			"queue":       queue,
			"redelivered": d.Redelivered,
			"size":        len(d.Body),
		})
		_ = d.Nack(false, false)
	}
}

// handle runs one delivery under handlerTimeout; a panicking handler counts as a failure.
func (client *Client) handle(ctx context.Context, handler DeliveryHandler, d amqp.Delivery) (err error) {
	hCtx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("rabbitmq: handler panic: %v", p)
		}
	}()
	return handler(hCtx, d)
}
