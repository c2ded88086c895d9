package mailer

import (
	"context"
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/school-admin/internal/config"
	"github.com/iliyamo/school-admin/internal/queue"
)

func TestSendPasswordReset(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
		gotAuth smtp.Auth
	)
	m := NewSMTPMailer(config.SMTPConfig{Host: "mail.local", Port: 2525, From: "no-reply@school.test"}).
		WithSendFunc(func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotAuth, gotTo, gotMsg = addr, a, to, string(msg)
			return nil
		})

	err := m.SendPasswordReset(context.Background(), queue.PasswordResetRequested{
		Email:     "t@school.test",
		FullName:  "Tina",
		ResetURL:  "https://school.test/reset-password?token=abc",
		ExpiresAt: time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC),
	})

	require.NoError(t, err)
	assert.Equal(t, "mail.local:2525", gotAddr)
	assert.Nil(t, gotAuth)
	assert.Equal(t, []string{"t@school.test"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Reset your password\r\n")
	assert.Contains(t, gotMsg, "Hello Tina,")
	assert.Contains(t, gotMsg, "https://school.test/reset-password?token=abc")
	assert.Contains(t, gotMsg, "2026-01-02 03:04 UTC")
}

func TestSendRejectsHeaderInjection(t *testing.T) {
	m := NewSMTPMailer(config.SMTPConfig{Host: "h", Port: 25}).
		WithSendFunc(func(string, smtp.Auth, string, []string, []byte) error {
			t.Fatal("must not send")
			return nil
		})

	assert.Error(t, m.Send(context.Background(), "a@b.c\r\nBcc: x@y.z", "s", "b"))
}
