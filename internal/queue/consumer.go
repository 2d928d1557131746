package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// MailConsumer drains the password reset queue and appends each mail to a
// mailbox file.  There is no SMTP integration; the file is the outbox an
// operator or a relay picks up.
type MailConsumer struct {
	url     string
	mailbox string
	log     *zap.Logger
}

// NewMailConsumer writes delivered mails to dir/mail.log.
func NewMailConsumer(amqpURL, dir string, log *zap.Logger) *MailConsumer {
	return &MailConsumer{url: amqpURL, mailbox: filepath.Join(dir, "mail.log"), log: log}
}

// Run connects with exponential backoff and consumes until ctx is cancelled.
// A dropped connection is re-dialled.
func (m *MailConsumer) Run(ctx context.Context) error {
	for {
		conn, err := m.dial(ctx)
		if err != nil {
			return err
		}
		err = m.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		m.log.Warn("mail consumer: consume loop ended, reconnecting", zap.Error(err))
	}
}

func (m *MailConsumer) dial(ctx context.Context) (*amqp.Connection, error) {
	var conn *amqp.Connection
	backoff := retry.WithCappedDuration(30*time.Second, retry.NewExponential(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, err := amqp.Dial(m.url)
		if err != nil {
			m.log.Warn("mail consumer: dial failed", zap.String("broker", redact(m.url)), zap.Error(err))
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	return conn, err
}

func (m *MailConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		m.log.Warn("mail consumer: set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(PasswordResetQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(PasswordResetQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := m.Deliver(d.Body); err != nil {
				m.log.Error("mail consumer: deliver failed", zap.Error(err))
				_ = d.Nack(false, false) // do not requeue a poison message
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Deliver appends one reset mail to the mailbox.
func (m *MailConsumer) Deliver(body []byte) error {
	var ev PasswordResetRequested
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Email == "" || ev.Token == "" {
		return errors.New("reset mail without recipient or token")
	}
	if err := os.MkdirAll(filepath.Dir(m.mailbox), 0o755); err != nil {
		return fmt.Errorf("mkdir mailbox: %w", err)
	}
	f, err := os.OpenFile(m.mailbox, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open mailbox: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] To: %q <%s> | Subject: Reset your password | token=%s | expires=%s\n",
		ev.RequestedAt, ev.Name, ev.Email, url.QueryEscape(ev.Token), ev.ExpiresAt)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write mailbox: %w", err)
	}
	m.log.Info("mail consumer: reset mail delivered", zap.String("user_id", ev.UserID))
	return nil
}

// redact strips credentials from an AMQP URL before it is logged.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid url"
	}
	return u.Redacted()
}
