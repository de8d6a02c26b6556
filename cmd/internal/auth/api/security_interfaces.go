package authapi

import (
	"context"
	"log/slog"
)

// EmailSender delivers password reset tokens out-of-band. The API layer
// never puts a reset token in a response body.
type EmailSender interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// NoopEmailSender logs instead of sending. Default in dev.
type NoopEmailSender struct {
	Log *slog.Logger
}

func (s NoopEmailSender) SendPasswordReset(ctx context.Context, email, token string) error {
	if s.Log != nil {
		// The token itself is deliberately not logged.
		s.Log.InfoContext(ctx, "auth.reset.email_noop", slog.String("email", email))
	}
	return nil
}
