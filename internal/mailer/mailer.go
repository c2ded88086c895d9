// Package mailer renders and delivers outbound email over SMTP.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/iliyamo/school-admin/internal/config"
	"github.com/iliyamo/school-admin/internal/queue"
)

var resetTmpl = template.Must(template.New("reset").Parse(`Hello{{if .FullName}} {{.FullName}}{{end}},

Someone asked to reset the password of your school administration account.
Open the link below to choose a new password. It expires at {{.ExpiresAt.Format "2006-01-02 15:04 MST"}}.

{{.ResetURL}}

If you did not ask for this, ignore this message; your password stays unchanged.
`))

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends mail through a relay.
type SMTPMailer struct {
	cfg  config.SMTPConfig
	send SendFunc
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

// WithSendFunc replaces the transport.
func (m *SMTPMailer) WithSendFunc(fn SendFunc) *SMTPMailer {
	m.send = fn
	return m
}

// SendPasswordReset implements queue.ResetMailer.
func (m *SMTPMailer) SendPasswordReset(ctx context.Context, ev queue.PasswordResetRequested) error {
	var body bytes.Buffer
	if err := resetTmpl.Execute(&body, ev); err != nil {
		return fmt.Errorf("render reset mail: %w", err)
	}
	return m.Send(ctx, ev.Email, "Reset your password", body.String())
}

// Send delivers a plain-text message. smtp.SendMail has no context, so ctx
// is only checked before dialing.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return fmt.Errorf("invalid header value")
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Pass, m.cfg.Host)
	}
	return m.send(addr, auth, m.cfg.From, []string{to}, buildMessage(m.cfg.From, to, subject, body))
}

func buildMessage(from, to, subject, body string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return b.Bytes()
}
