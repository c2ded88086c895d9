package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingMailer struct {
	sent []PasswordResetRequested
	err  error
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, ev PasswordResetRequested) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, ev)
	return nil
}

func TestHandle_SendsMail(t *testing.T) {
	m := &recordingMailer{}
	c := &MailConsumer{Mailer: m, Log: zap.NewNop()}
	body, err := json.Marshal(PasswordResetRequested{
		UserID: 3, Email: "t@school.test", ResetURL: "https://x/reset?token=abc",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	require.NoError(t, c.Handle(context.Background(), body))

	require.Len(t, m.sent, 1)
	assert.Equal(t, "t@school.test", m.sent[0].Email)
}

func TestHandle_Rejections(t *testing.T) {
	c := &MailConsumer{Mailer: &recordingMailer{err: errors.New("smtp down")}, Log: zap.NewNop()}

	assert.Error(t, c.Handle(context.Background(), []byte("{not json")))
	assert.Error(t, c.Handle(context.Background(), []byte(`{"email":""}`)))

	body, _ := json.Marshal(PasswordResetRequested{Email: "a@b.c", ResetURL: "u", ExpiresAt: time.Now().Add(time.Hour)})
	assert.Error(t, c.Handle(context.Background(), body), "mailer failure surfaces")
}

func TestHandle_DropsExpired(t *testing.T) {
	m := &recordingMailer{}
	c := &MailConsumer{Mailer: m, Log: zap.NewNop()}
	body, _ := json.Marshal(PasswordResetRequested{Email: "a@b.c", ResetURL: "u", ExpiresAt: time.Now().Add(-time.Minute)})

	assert.NoError(t, c.Handle(context.Background(), body))
	assert.Empty(t, m.sent)
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &MailConsumer{URL: "amqp://127.0.0.1:1/", Mailer: &recordingMailer{}, Log: zap.NewNop()}

	assert.ErrorIs(t, c.Run(ctx), context.Canceled)
}
