package channels

import (
	"context"
	"time"

	"geofence-events/internal/general/contracts"
	"geofence-events/internal/general/rabbitmq"
)

// JobPublisher hands email and SMS jobs to downstream workers over RabbitMQ.
type JobPublisher struct {
	publisher rabbitmq.Publisher
	now       func() time.Time
}

// NewJobPublisher wraps a RabbitMQ publisher.
func NewJobPublisher(publisher rabbitmq.Publisher) *JobPublisher {
	return &JobPublisher{publisher: publisher, now: time.Now}
}

func (p *JobPublisher) envelope() contracts.Envelope {
	return contracts.Envelope{Producer: contracts.Producer, SentAt: p.now().UTC()}
}

// PublishEmail enqueues an EmailJob.
func (p *JobPublisher) PublishEmail(ctx context.Context, to, subject, body string) error {
	job := contracts.EmailJob{To: to, Subject: subject, Body: body, Envelope: p.envelope()}
	return p.publisher.PublishJSON(ctx, contracts.ExchangeNotifyDirect, contracts.RouteNotifyEmail, job)
}

// PublishSMS enqueues an SMSJob.
func (p *JobPublisher) PublishSMS(ctx context.Context, to, message string) error {
	job := contracts.SMSJob{To: to, Message: message, Envelope: p.envelope()}
	return p.publisher.PublishJSON(ctx, contracts.ExchangeNotifyDirect, contracts.RouteNotifySMS, job)
}
