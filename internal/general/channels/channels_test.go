package channels

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"geofence-events/internal/general/contracts"
	"geofence-events/internal/general/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastWebhook(retries int) *WebhookSender {
	return NewWebhookSender(WebhookOptions{Timeout: time.Second, RetryCount: retries, RetryWait: time.Millisecond})
}

func TestWebhookPostsJSON(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := fastWebhook(0).Send(context.Background(), srv.URL, map[string]any{"ruleId": "r1"})
	require.NoError(t, err)
	assert.Equal(t, "r1", got["ruleId"])
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, fastWebhook(2).Send(context.Background(), srv.URL, map[string]any{}))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := fastWebhook(3).Send(context.Background(), srv.URL, map[string]any{})
	require.ErrorIs(t, err, ErrWebhookStatus)
	assert.Equal(t, int32(1), calls.Load())
}

type publishCall struct {
	exchange, routingKey string
	body                 any
}

type mockPublisher struct {
	calls []publishCall
}

func (m *mockPublisher) PublishJSON(_ context.Context, exchange, routingKey string, v any) error {
	m.calls = append(m.calls, publishCall{exchange: exchange, routingKey: routingKey, body: v})
	return nil
}

func TestAdaptersEnqueueJobs(t *testing.T) {
	pub := &mockPublisher{}
	a := NewAdapters(logger.Discard(), fastWebhook(0), NewJobPublisher(pub))

	require.NoError(t, a.SendEmail(context.Background(), "ops@example.com", "Zone alert", "V1 entered Z1"))
	require.NoError(t, a.SendSMS(context.Background(), "+15550100", "V1 entered Z1"))

	require.Len(t, pub.calls, 2)
	assert.Equal(t, contracts.ExchangeNotifyDirect, pub.calls[0].exchange)
	assert.Equal(t, contracts.RouteNotifyEmail, pub.calls[0].routingKey)
	email := pub.calls[0].body.(contracts.EmailJob)
	assert.Equal(t, "Zone alert", email.Subject)
	assert.Equal(t, contracts.Producer, email.Producer)

	assert.Equal(t, contracts.RouteNotifySMS, pub.calls[1].routingKey)
	assert.Equal(t, "+15550100", pub.calls[1].body.(contracts.SMSJob).To)
}

func TestAdaptersWithoutQueueOnlyLog(t *testing.T) {
	a := NewAdapters(logger.Discard(), fastWebhook(0), nil)
	assert.NoError(t, a.SendEmail(context.Background(), "ops@example.com", "s", "b"))
	assert.NoError(t, a.SendSMS(context.Background(), "+15550100", "m"))
}
