package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"geofence-events/internal/general/jwt"
	"geofence-events/internal/general/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsCloseAckWindow = 2 * time.Second
	wsReadLimit      = 64 << 10

	defaultPingInterval  = 30 * time.Second
	defaultSweepInterval = 60 * time.Second

	// Frames are written by one goroutine per client, so a slow socket holds up only
	// its own queue, for at most defaultWriteTimeout per frame. Fan-out never blocks:
	// a client whose queue is full is evicted.
	defaultWriteTimeout = 5 * time.Second
	defaultSendQueue    = 64
)

var errSendQueueFull = errors.New("websocket: subscriber send queue is full")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Options tunes liveness and write behavior.
type Options struct {
	PingInterval  time.Duration
	SweepInterval time.Duration
	WriteTimeout  time.Duration
	SendQueue     int // frames buffered per client
	Now           func() time.Time
}

func (o *Options) applyDefaults() {
	if o.PingInterval <= 0 {
		o.PingInterval = defaultPingInterval
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = defaultSweepInterval
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.SendQueue <= 0 {
		o.SendQueue = defaultSendQueue
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Hub authenticates subscriber connections, keeps the subscription registry and
// fans out membership and rule-action messages.
type Hub struct {
	logger *logger.Logger
	jwtMgr *jwt.Manager
	opts   Options

	mu      sync.RWMutex
	clients map[string]*Client

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

// NewHub creates a notification hub.
func NewHub(logger *logger.Logger, jwtMgr *jwt.Manager, opts Options) *Hub {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		logger:  logger,
		jwtMgr:  jwtMgr,
		opts:    opts,
		clients: make(map[string]*Client),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Connect upgrades the request and serves one subscriber until it disconnects.
func (h *Hub) Connect(w http.ResponseWriter, r *http.Request) {
	if h.closed.Load() {
		http.Error(w, "notification hub is shutting down", http.StatusServiceUnavailable)
		return
	}

	// 1) Upgrade HTTP -> WS (CONNECTING)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}

	// 2) Authenticate; failure closes this connection only
	claims, err := jwt.AuthenticateRequest(r, h.jwtMgr)
	if err != nil {
		h.logger.Warn(r.Context(), "ws_auth_failed", "WebSocket authentication failed", err, map[string]any{
			"remote_addr": r.RemoteAddr,
		})
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"),
			time.Now().Add(wsCloseAckWindow),
		)
		_ = conn.Close()
		return
	}

	// 3) AUTHENTICATED -> register -> ACTIVE
	client := newClient(uuid.NewString(), claims.OrganizationID, claims.UserID(), conn, h.opts.SendQueue)
	ctx := h.logger.WithOrganizationID(r.Context(), client.OrganizationID)

	// liveness is enforced by ping/sweep; drop deadlines inherited from the HTTP server
	_ = conn.SetReadDeadline(time.Time{})
	conn.SetReadLimit(wsReadLimit)
	conn.SetPongHandler(func(string) error {
		client.alive.Store(true)
		return nil
	})

	if !h.register(client) {
		// Close ran between the upgrade and registration
		client.close(websocket.CloseGoingAway, "server shutdown")
		return
	}
	defer h.evict(client, websocket.CloseNormalClosure, "bye")
	go h.pump(ctx, client)

	if err := h.send(client, MsgConnectionEstablished, map[string]string{
		"clientId":       client.ID,
		"organizationId": client.OrganizationID,
		"userId":         client.UserID,
	}); err != nil {
		h.logger.Error(ctx, "ws_ack_failed", "Failed to send connection ack", err, map[string]any{"client_id": client.ID})
		return
	}
	client.setState(StateActive)

	h.logger.Info(ctx, "ws_connected", "Subscriber connected", map[string]any{
		"client_id": client.ID,
		"user_id":   client.UserID,
	})

	// 4) Read loop
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && client.State() != StateClosed {
				h.logger.Warn(ctx, "ws_unexpected_close", "Subscriber connection closed unexpectedly", err, map[string]any{
					"client_id": client.ID,
				})
			} else {
				h.logger.Info(ctx, "ws_connection_closed", "Subscriber connection closed", map[string]any{
					"client_id": client.ID,
				})
			}
			return
		}
		h.handleMessage(ctx, client, payload)
	}
}

// handleMessage routes one inbound frame.
func (h *Hub) handleMessage(ctx context.Context, client *Client, payload []byte) {
	var msg inbound
	if err := json.Unmarshal(payload, &msg); err != nil {
		h.sendError(client, "bad json")
		return
	}

	switch msg.Type {
	case MsgSubscribe:
		req, err := msg.subscription()
		if err != nil {
			h.sendError(client, err.Error())
			return
		}
		client.subscribe(SubscriptionKey(req.EventType, req.TargetID))
		_ = h.send(client, MsgSubscribed, req)

	case MsgUnsubscribe:
		req, err := msg.subscription()
		if err != nil {
			h.sendError(client, err.Error())
			return
		}
		client.unsubscribe(SubscriptionKey(req.EventType, req.TargetID))
		_ = h.send(client, MsgUnsubscribed, req)

	case MsgPing:
		_ = h.send(client, MsgPong, map[string]any{"serverTime": h.opts.Now().UTC()})

	default:
		h.logger.Debug(ctx, "ws_unknown_message", "Ignoring unknown message type", map[string]any{
			"client_id": client.ID,
			"type":      msg.Type,
		})
	}
}

// pump runs the client's writer and evicts the client when a write fails.
func (h *Hub) pump(ctx context.Context, c *Client) {
	if err := c.writePump(h.opts.WriteTimeout); err != nil {
		h.logger.Warn(ctx, "ws_write_failed", "Dropping subscriber after failed write", err, map[string]any{
			"client_id": c.ID,
		})
		h.evict(c, websocket.CloseInternalServerErr, "write failed")
	}
}

// register adds c unless the hub is closed. The check and the insert share h.mu,
// so a client is either refused here or seen by Close's snapshot.
func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed.Load() {
		return false
	}
	h.clients[c.ID] = c
	return true
}

// evict removes the client from the table and closes its socket. Idempotent.
func (h *Hub) evict(c *Client, code int, reason string) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()
	c.close(code, reason)
}

func (h *Hub) snapshot() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

// ClientCount reports how many clients are registered.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops the liveness loops and force-closes every connection.
// The HTTP listener is shut down by the owning server.
func (h *Hub) Close() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}
	h.cancel()
	for _, c := range h.snapshot() {
		h.evict(c, websocket.CloseGoingAway, "server shutdown")
	}
	h.logger.Info(context.Background(), "ws_hub_closed", "Notification hub closed", nil)
}
