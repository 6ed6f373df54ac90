package channels

import (
	"context"

	"geofence-events/internal/general/logger"
	"geofence-events/internal/ports"
)

// adapters routes rule actions to their delivery channel.
type adapters struct {
	logger  *logger.Logger
	webhook *WebhookSender
	jobs    *JobPublisher
}

// NewAdapters composes the channel adapters. jobs may be nil when RabbitMQ is disabled;
// email and SMS are then only logged.
func NewAdapters(logger *logger.Logger, webhook *WebhookSender, jobs *JobPublisher) ports.ChannelAdapters {
	return &adapters{logger: logger, webhook: webhook, jobs: jobs}
}

func (a *adapters) SendWebhook(ctx context.Context, url string, payload any) error {
	if err := a.webhook.Send(ctx, url, payload); err != nil {
		return err
	}
	a.logger.Debug(ctx, "webhook_sent", "Webhook delivered", map[string]any{"url": url})
	return nil
}

func (a *adapters) SendEmail(ctx context.Context, to, subject, body string) error {
	if a.jobs == nil {
		a.logger.Info(ctx, "email_skipped", "No job queue configured; email not enqueued", map[string]any{
			"to":      to,
			"subject": subject,
		})
		return nil
	}
	return a.jobs.PublishEmail(ctx, to, subject, body)
}

func (a *adapters) SendSMS(ctx context.Context, to, message string) error {
	if a.jobs == nil {
		a.logger.Info(ctx, "sms_skipped", "No job queue configured; SMS not enqueued", map[string]any{"to": to})
		return nil
	}
	return a.jobs.PublishSMS(ctx, to, message)
}
