package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

var ErrWebhookStatus = errors.New("webhook responded with non-2xx status")

// WebhookOptions tunes the HTTP client used for WEBHOOK actions.
type WebhookOptions struct {
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
}

// WebhookSender POSTs JSON payloads. 5xx and transport errors are retried.
type WebhookSender struct {
	http *resty.Client
}

// NewWebhookSender builds a resty client from opts.
func NewWebhookSender(opts WebhookOptions) *WebhookSender {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 200 * time.Millisecond
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(10*opts.RetryWait).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "geofence-service").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || resp.StatusCode() >= http.StatusInternalServerError
		})

	return &WebhookSender{http: client}
}

// Send POSTs payload to url.
func (s *WebhookSender) Send(ctx context.Context, url string, payload any) error {
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(payload).
		Post(url)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", url, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: %s returned %d", ErrWebhookStatus, url, resp.StatusCode())
	}
	return nil
}
