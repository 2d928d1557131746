package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/fleet-inventory/internal/queue"
)

// MailPublisher hands outgoing mail to the mailer.
type MailPublisher interface {
	PublishPasswordReset(ctx context.Context, ev queue.PasswordResetRequested) error
}

// RabbitPublisher publishes mail events to RabbitMQ.  It dials per message;
// reset requests are rare enough that a pooled connection is not worth
// the reconnect handling.
type RabbitPublisher struct {
	url string
}

func NewRabbitPublisher(url string) *RabbitPublisher { return &RabbitPublisher{url: url} }

// PublishPasswordReset publishes ev as a persistent message on the
// password reset queue.
func (p *RabbitPublisher) PublishPasswordReset(ctx context.Context, ev queue.PasswordResetRequested) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queue.PasswordResetQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq queue declare: %w", err)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return ch.PublishWithContext(ctx, "", queue.PasswordResetQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         queue.PasswordResetRequestedType,
		Body:         body,
	})
}
