package rabbitmq

import (
	"context"
	"time"

	"geofence-events/internal/domain/geofence"
	"geofence-events/internal/general/contracts"
	"geofence-events/internal/general/logger"
)

// EventPublisher forwards tracker events to ExchangeGeofenceTopic so other services
// can follow ENTER/EXIT without a websocket.
type EventPublisher struct {
	publisher Publisher
	logger    *logger.Logger
	now       func() time.Time
}

// NewEventPublisher builds the listener.
func NewEventPublisher(publisher Publisher, logger *logger.Logger) *EventPublisher {
	return &EventPublisher{publisher: publisher, logger: logger, now: time.Now}
}

// OnEvent publishes one event. Errors are returned to the tracker, which logs them.
func (p *EventPublisher) OnEvent(ctx context.Context, event geofence.Event) error {
	msg := contracts.NewGeofenceEventMessage(event, p.now())
	key := contracts.GeofenceEventRoutingKey(event)
	if err := p.publisher.PublishJSON(ctx, contracts.ExchangeGeofenceTopic, key, msg); err != nil {
		return err
	}
	p.logger.Debug(ctx, "geofence_event_published", "Geofence event published", map[string]any{
		"event_id":    event.ID,
		"routing_key": key,
	})
	return nil
}
