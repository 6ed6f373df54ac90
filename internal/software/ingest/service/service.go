package service

import (
	"context"
	"errors"
	"time"

	"geofence-events/internal/domain/geofence"
	"geofence-events/internal/general/logger"
	"geofence-events/internal/general/mqtt"
	"geofence-events/internal/ports"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	consumerTag         = "geofence-position-ingest"
	resubscribeMinDelay = time.Second
	resubscribeMaxDelay = 30 * time.Second
)

// QueueConsumer is the subset of *rabbitmq.Client used by the ingestor.
type QueueConsumer interface {
	Consume(ctx context.Context, queue, consumerTag string, prefetch int, handler func(context.Context, amqp.Delivery) error) error
}

// TopicSubscriber is the subset of *mqtt.Client used by the ingestor.
type TopicSubscriber interface {
	Subscribe(ctx context.Context, topic string, qos byte, handler mqtt.MessageHandler) error
}

// Ingestor decodes position messages from RabbitMQ, MQTT and HTTP and feeds
// them to the membership tracker.
type Ingestor struct {
	logger  *logger.Logger
	tracker ports.MembershipTracker
}

// NewIngestor constructs the ingestor.
func NewIngestor(logger *logger.Logger, tracker ports.MembershipTracker) *Ingestor {
	return &Ingestor{logger: logger, tracker: tracker}
}

// HandleDelivery processes one AMQP delivery. Decode and validation failures are
// returned so the consumer drops the message.
func (in *Ingestor) HandleDelivery(ctx context.Context, d amqp.Delivery) error {
	position, err := decodePosition(d.Body, "")
	if err != nil {
		return err
	}
	if d.CorrelationId != "" {
		ctx = in.logger.WithRequestID(ctx, d.CorrelationId)
	}
	_, err = in.tracker.ProcessPosition(ctx, position)
	return err
}

// HandleMQTT returns a handler for topicPattern; the vehicle id comes from the "+" segment.
func (in *Ingestor) HandleMQTT(topicPattern string) mqtt.MessageHandler {
	return func(ctx context.Context, topic string, payload []byte) error {
		position, err := decodePosition(payload, mqtt.TopicSegment(topicPattern, topic))
		if err != nil {
			return err
		}
		_, err = in.tracker.ProcessPosition(ctx, position)
		return err
	}
}

// Result is the outcome of one Ingest call.
type Result struct {
	Accepted int
	Rejected map[int]error // by position index in the request
	Events   []geofence.Event
}

// Ingest processes a single position or a JSON array of positions in order.
// A non-empty orgID rejects positions of any other organization.
func (in *Ingestor) Ingest(ctx context.Context, body []byte, orgID string) (Result, error) {
	positions, rejected, err := decodeBatch(body, orgID)
	if err != nil {
		return Result{}, err
	}
	if len(rejected) > 0 {
		in.logger.Warn(ctx, "positions_rejected", "Some positions failed validation", nil, map[string]any{
			"rejected": len(rejected),
			"accepted": len(positions),
		})
	}

	res := Result{Accepted: len(positions), Rejected: rejected}
	if len(positions) == 1 && len(rejected) == 0 {
		res.Events, err = in.tracker.ProcessPosition(ctx, positions[0])
		return res, err
	}
	res.Events = in.tracker.ProcessBatch(ctx, positions)
	return res, nil
}

// RunQueue consumes queue until ctx is done, resubscribing with backoff whenever
// the channel drops. The client reconnects on its own.
func (in *Ingestor) RunQueue(ctx context.Context, consumer QueueConsumer, queue string, prefetch int) error {
	delay := resubscribeMinDelay
	for {
		err := consumer.Consume(ctx, queue, consumerTag, prefetch, in.HandleDelivery)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			in.logger.Warn(ctx, "position_consumer_stopped", "Position consumer stopped; resubscribing", err, map[string]any{
				"queue":    queue,
				"retry_in": delay.String(),
			})
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		if err == nil {
			delay = resubscribeMinDelay
		} else if delay *= 2; delay > resubscribeMaxDelay {
			delay = resubscribeMaxDelay
		}
	}
}

// SubscribeTopic registers the MQTT handler for topic.
func (in *Ingestor) SubscribeTopic(ctx context.Context, subscriber TopicSubscriber, topic string, qos byte) error {
	return subscriber.Subscribe(ctx, topic, qos, in.HandleMQTT(topic))
}
