package websocket

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Inbound message types.
const (
	MsgSubscribe   = "SUBSCRIBE"
	MsgUnsubscribe = "UNSUBSCRIBE"
	MsgPing        = "PING"
)

// Outbound message types.
const (
	MsgConnectionEstablished = "CONNECTION_ESTABLISHED"
	MsgSubscribed            = "SUBSCRIBED"
	MsgUnsubscribed          = "UNSUBSCRIBED"
	MsgPong                  = "PONG"
	MsgError                 = "ERROR"
)

// Envelope is the frame shape in both directions.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// SubscriptionRequest is the SUBSCRIBE / UNSUBSCRIBE payload.
type SubscriptionRequest struct {
	EventType string `json:"eventType"`
	TargetID  string `json:"targetId"`
}

var ErrBadSubscription = errors.New("eventType and targetId are required")

// inbound accepts the payload either under "data" or flattened next to "type".
type inbound struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	EventType string          `json:"eventType"`
	TargetID  string          `json:"targetId"`
}

func (m inbound) subscription() (SubscriptionRequest, error) {
	req := SubscriptionRequest{EventType: m.EventType, TargetID: m.TargetID}
	if len(m.Data) > 0 && string(m.Data) != "null" {
		if err := json.Unmarshal(m.Data, &req); err != nil {
			return SubscriptionRequest{}, ErrBadSubscription
		}
	}
	req.EventType = strings.TrimSpace(req.EventType)
	req.TargetID = strings.TrimSpace(req.TargetID)
	if req.EventType == "" || req.TargetID == "" {
		return SubscriptionRequest{}, ErrBadSubscription
	}
	return req, nil
}

func (h *Hub) envelope(msgType string, data any) (Envelope, error) {
	env := Envelope{Type: msgType, Timestamp: h.opts.Now().UTC()}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	env.Data = raw
	return env, nil
}

func (h *Hub) send(c *Client, msgType string, data any) error {
	env, err := h.envelope(msgType, data)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if !c.enqueue(frame) {
		return errSendQueueFull
	}
	return nil
}

func (h *Hub) sendError(c *Client, message string) {
	_ = h.send(c, MsgError, map[string]string{"error": message})
}
