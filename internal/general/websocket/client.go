package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ClientState is the lifecycle of one subscriber connection.
type ClientState int32

const (
	StateConnecting ClientState = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s ClientState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateActive:
		return "ACTIVE"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Client is one live subscriber connection.
type Client struct {
	ID             string
	OrganizationID string
	UserID         string

	conn    *websocket.Conn
	writeMu sync.Mutex
	queue   chan []byte   // frames waiting for the writer goroutine
	done    chan struct{} // closed by close

	subsMu        sync.RWMutex
	subscriptions map[string]struct{}

	alive     atomic.Bool
	state     atomic.Int32
	closeOnce sync.Once
}

func newClient(id, orgID, userID string, conn *websocket.Conn, queueSize int) *Client {
	c := &Client{
		ID:             id,
		OrganizationID: orgID,
		UserID:         userID,
		conn:           conn,
		queue:          make(chan []byte, queueSize),
		done:           make(chan struct{}),
		subscriptions:  make(map[string]struct{}),
	}
	c.alive.Store(true)
	c.setState(StateAuthenticated)
	return c
}

func (c *Client) State() ClientState { return ClientState(c.state.Load()) }

func (c *Client) setState(s ClientState) { c.state.Store(int32(s)) }

// SubscriptionKey builds the "eventType:targetId" registry key.
func SubscriptionKey(eventType, targetID string) string {
	return eventType + ":" + targetID
}

func (c *Client) subscribe(key string) {
	c.subsMu.Lock()
	c.subscriptions[key] = struct{}{}
	c.subsMu.Unlock()
}

func (c *Client) unsubscribe(key string) {
	c.subsMu.Lock()
	delete(c.subscriptions, key)
	c.subsMu.Unlock()
}

// matches reports whether any exact "type:target" or the "type:*" wildcard is subscribed.
func (c *Client) matches(eventType string, targetIDs []string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	if _, ok := c.subscriptions[SubscriptionKey(eventType, "*")]; ok {
		return true
	}
	for _, id := range targetIDs {
		if _, ok := c.subscriptions[SubscriptionKey(eventType, id)]; ok {
			return true
		}
	}
	return false
}

// Subscriptions returns the client's subscription keys.
func (c *Client) Subscriptions() []string {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	out := make([]string, 0, len(c.subscriptions))
	for k := range c.subscriptions {
		out = append(out, k)
	}
	return out
}

// enqueue hands frame to the writer without blocking. It reports false when the
// queue is full or the client is closed.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.queue <- frame:
		return true
	default:
		return false
	}
}

// writePump drains the queue in order until the client closes or a write fails.
func (c *Client) writePump(timeout time.Duration) error {
	for {
		select {
		case <-c.done:
			return nil
		case frame := <-c.queue:
			if err := c.writeRaw(frame, timeout); err != nil {
				return err
			}
		}
	}
}

// writeRaw writes one text frame under the client's write lock.
func (c *Client) writeRaw(payload []byte, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Client) ping(timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
}

// close sends a close frame (best effort) and tears the socket down once.
func (c *Client) close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		close(c.done)
		if c.conn == nil {
			return
		}
		c.writeMu.Lock()
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(wsCloseAckWindow),
		)
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
}
