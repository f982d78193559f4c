package auth

import (
	"context"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Mailer delivers confirmation tokens.
type Mailer interface {
	SendConfirmation(ctx context.Context, email, token string) error
}

// LogMailer writes the confirmation token to the log instead of sending mail.
type LogMailer struct {
	logg *logger.Logger
}

func NewLogMailer(logg *logger.Logger) *LogMailer {
	if logg == nil {
		logg = logger.Nop()
	}
	return &LogMailer{logg: logg}
}

func (m *LogMailer) SendConfirmation(ctx context.Context, email, token string) error {
	m.logg.Info(m.logg.WithFields(ctx, map[string]any{
		"email": email,
		"token": token,
	}), "confirmation email queued")
	return nil
}
