package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/school-admin/internal/metrics"
)

// ResetMailer delivers a password reset message.
type ResetMailer interface {
	SendPasswordReset(ctx context.Context, ev PasswordResetRequested) error
}

// MailConsumer drains the password reset queue into a ResetMailer.
type MailConsumer struct {
	URL    string
	Mailer ResetMailer
	Log    *zap.Logger
}

// Run connects to RabbitMQ and consumes until ctx is cancelled. Broker
// failures are retried with exponential backoff capped at 30s.
func (c *MailConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.Warn("mail consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.Warn("mail consumer: consume loop ended, reconnecting", zap.Error(err))
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *MailConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		c.Log.Warn("mail consumer: set QoS failed", zap.Error(err))
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
			if err := c.Handle(ctx, d.Body); err != nil {
				c.Log.Error("mail consumer: handle message failed", zap.Error(err))
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes one message body and hands it to the mailer.
func (c *MailConsumer) Handle(ctx context.Context, body []byte) error {
	var ev PasswordResetRequested
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Email == "" || ev.ResetURL == "" {
		return errors.New("incomplete password reset event")
	}
	if !ev.ExpiresAt.IsZero() && time.Now().After(ev.ExpiresAt) {
		c.Log.Info("mail consumer: dropping expired reset event", zap.Uint64("user_id", ev.UserID))
		return nil
	}
	if err := c.Mailer.SendPasswordReset(ctx, ev); err != nil {
		metrics.ObserveMail("send_failed")
		return fmt.Errorf("send mail: %w", err)
	}
	metrics.ObserveMail("sent")
	c.Log.Info("password reset mail sent", zap.Uint64("user_id", ev.UserID))
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
