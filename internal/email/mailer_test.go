package email

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/accounts/internal/metrics"
)

type recordingSender struct {
	to, subject, html string
	err               error
}

func (r *recordingSender) Send(_ context.Context, to, subject, html string) error {
	r.to, r.subject, r.html = to, subject, html
	return r.err
}

func TestSendAccountActivation(t *testing.T) {
	rec := &recordingSender{}
	m := metrics.New()
	mailer := NewMailer(rec, "http://localhost:3000", m)

	require.NoError(t, mailer.SendAccountActivation(context.Background(), "user1@mail.com", "abc123"))

	assert.Equal(t, "user1@mail.com", rec.to)
	assert.Equal(t, "Account activation", rec.subject)
	assert.Contains(t, rec.html, "http://localhost:3000/activate/abc123")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailsTotal.WithLabelValues("activation", "sent")))
}

func TestSendPasswordReset(t *testing.T) {
	rec := &recordingSender{}
	mailer := NewMailer(rec, "http://localhost:3000", nil)

	require.NoError(t, mailer.SendPasswordReset(context.Background(), "user1@mail.com", "r3s3t"))

	assert.Equal(t, "Password Reset", rec.subject)
	assert.Contains(t, rec.html, "http://localhost:3000/password-reset?reset=r3s3t")
}

func TestMailerCountsFailures(t *testing.T) {
	rec := &recordingSender{err: errors.New("smtp down")}
	m := metrics.New()
	mailer := NewMailer(rec, "http://localhost:3000", m)

	err := mailer.SendPasswordReset(context.Background(), "user1@mail.com", "r3s3t")
	assert.ErrorIs(t, err, rec.err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailsTotal.WithLabelValues("password_reset", "failed")))
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := LogSender{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	require.NoError(t, s.Send(context.Background(), "user1@mail.com", "Account activation", "Token is abc"))
	assert.Contains(t, buf.String(), "to=user1@mail.com")
	assert.Contains(t, buf.String(), "Token is abc")
}
