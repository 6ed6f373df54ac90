package websocket

import (
	"context"
	"encoding/json"

	"geofence-events/internal/domain/geofence"

	"github.com/gorilla/websocket"
)

// Broadcast delivers payload to clients of orgID subscribed to eventType:targetID or
// eventType:*. Returns the number of clients the frame was queued for.
func (h *Hub) Broadcast(orgID, eventType, targetID string, payload any) int {
	return h.deliver(orgID, eventType, []string{targetID}, payload)
}

// OnEvent fans a membership event out to subscribers of its region and of its vehicle.
func (h *Hub) OnEvent(_ context.Context, event geofence.Event) error {
	h.deliver(event.OrganizationID, event.Type.String(), []string{event.RegionID(), event.VehicleID}, event)
	return nil
}

// deliver queues the frame at most once per client even when several target keys
// match. It never waits on a socket.
func (h *Hub) deliver(orgID, eventType string, targetIDs []string, payload any) int {
	env, err := h.envelope(eventType, payload)
	if err != nil {
		h.logger.Error(context.Background(), "ws_broadcast_encode_failed", "Failed to encode broadcast", err, map[string]any{
			"event_type": eventType,
		})
		return 0
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return 0
	}

	delivered := 0
	for _, c := range h.snapshot() {
		if c.State() != StateActive || c.OrganizationID != orgID || !c.matches(eventType, targetIDs) {
			continue
		}
		if !c.enqueue(frame) {
			if c.State() == StateClosed {
				continue
			}
			h.logger.Warn(context.Background(), "ws_subscriber_lagging", "Dropping subscriber with a full send queue", errSendQueueFull, map[string]any{
				"client_id":  c.ID,
				"event_type": eventType,
			})
			h.evict(c, websocket.CloseTryAgainLater, "subscriber too slow")
			continue
		}
		delivered++
	}
	return delivered
}
