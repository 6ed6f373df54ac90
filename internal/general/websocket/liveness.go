package websocket

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// Run pings every client each PingInterval and sweeps dead ones each SweepInterval
// until ctx is done or the hub is closed. A client must answer at least one ping
// between two sweeps or it is evicted.
func (h *Hub) Run(ctx context.Context) error {
	ping := time.NewTicker(h.opts.PingInterval)
	defer ping.Stop()
	sweep := time.NewTicker(h.opts.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.ctx.Done():
			return nil
		case <-ping.C:
			h.pingAll()
		case <-sweep.C:
			h.sweep()
		}
	}
}

func (h *Hub) pingAll() {
	for _, c := range h.snapshot() {
		if err := c.ping(h.opts.WriteTimeout); err != nil {
			h.logger.Warn(context.Background(), "ws_ping_failed", "Failed to send ping", err, map[string]any{"client_id": c.ID})
			h.evict(c, websocket.CloseGoingAway, "ping failed")
		}
	}
}

// sweep evicts clients that missed every ping since the last sweep and re-arms the rest.
func (h *Hub) sweep() int {
	evicted := 0
	for _, c := range h.snapshot() {
		if !c.alive.Load() {
			h.evict(c, websocket.CloseGoingAway, "liveness check failed")
			evicted++
			continue
		}
		c.alive.Store(false)
	}
	if evicted > 0 {
		h.logger.Info(context.Background(), "ws_clients_evicted", "Evicted unresponsive subscribers", map[string]any{
			"evicted":   evicted,
			"remaining": h.ClientCount(),
		})
	}
	return evicted
}
