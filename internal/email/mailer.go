package email

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"github.com/dukerupert/accounts/internal/metrics"
)

// Sender delivers a single HTML message.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// LogSender writes messages to the log instead of delivering them. It is
// used when no Postmark token is configured so links stay reachable in
// development.
type LogSender struct {
	Logger *slog.Logger
}

func (l LogSender) Send(_ context.Context, to, subject, body string) error {
	l.Logger.Info("email not configured, logging message", "to", to, "subject", subject, "body", body)
	return nil
}

// Mailer renders the account e-mails and hands them to a Sender.
type Mailer struct {
	sender  Sender
	baseURL string
	metrics *metrics.Metrics
}

func NewMailer(sender Sender, baseURL string, m *metrics.Metrics) *Mailer {
	if m == nil {
		m = metrics.New()
	}
	return &Mailer{sender: sender, baseURL: baseURL, metrics: m}
}

func (m *Mailer) SendAccountActivation(ctx context.Context, to, token string) error {
	link := fmt.Sprintf("%s/activate/%s", m.baseURL, token)
	body := fmt.Sprintf(
		`<h1>You have created an account</h1><p>Please click the link below to activate your account.</p><p><a href="%s">Activate</a></p><p>Token is %s</p>`,
		html.EscapeString(link), html.EscapeString(token),
	)
	return m.send(ctx, "activation", to, "Account activation", body)
}

func (m *Mailer) SendPasswordReset(ctx context.Context, to, token string) error {
	link := fmt.Sprintf("%s/password-reset?reset=%s", m.baseURL, token)
	body := fmt.Sprintf(
		`<h1>Password reset</h1><p>Please click the link below to reset your password.</p><p><a href="%s">Reset</a></p>`,
		html.EscapeString(link),
	)
	return m.send(ctx, "password_reset", to, "Password Reset", body)
}

func (m *Mailer) send(ctx context.Context, kind, to, subject, body string) error {
	if err := m.sender.Send(ctx, to, subject, body); err != nil {
		m.metrics.EmailsTotal.WithLabelValues(kind, "failed").Inc()
		return err
	}
	m.metrics.EmailsTotal.WithLabelValues(kind, "sent").Inc()
	return nil
}
