package rabbitmq

import (
	"fmt"

	"geofence-events/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

// declareTopology declares exchanges, queues and bindings. positionQueue is the
// configured ingest queue name.
func declareTopology(ch *amqp.Channel, positionQueue string) error {
	// 1. Exchanges
	exchanges := []struct {
		name string
		kind string
	}{
		{contracts.ExchangePositionTopic, "topic"},
		{contracts.ExchangeGeofenceTopic, "topic"},
		{contracts.ExchangeNotifyDirect, "direct"},
	}

	for _, ex := range exchanges {
		if err := ch.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	// 2. Queues
	queues := []string{
		positionQueue,
		contracts.QueueNotifyEmail,
		contracts.QueueNotifySMS,
	}

	for _, q := range queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	// 3. Bindings
	bindings := []struct {
		queue      string
		exchange   string
		routingKey string
	}{
		{positionQueue, contracts.ExchangePositionTopic, contracts.RoutePositionPrefix + "*"},
		{contracts.QueueNotifyEmail, contracts.ExchangeNotifyDirect, contracts.RouteNotifyEmail},
		{contracts.QueueNotifySMS, contracts.ExchangeNotifyDirect, contracts.RouteNotifySMS},
	}

	for _, b := range bindings {
		if err := ch.QueueBind(b.queue, b.routingKey, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}
