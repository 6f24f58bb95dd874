package mailer

import (
	"context"

	"github.com/rs/zerolog"

	"fx-digest/internal/domain"
)

var _ domain.Transport = (*Log)(nil)

// Log пишет письма в лог вместо отправки. Используется при MAIL_DRIVER=log.
type Log struct {
	log zerolog.Logger
}

// NewLog создаёт транспорт-заглушку.
func NewLog(logger zerolog.Logger) *Log {
	return &Log{log: logger}
}

// Deliver логирует письмо.
func (l *Log) Deliver(ctx context.Context, recipient, subject string, body domain.Document) error {
	if err := ctx.Err(); err != nil {
		return &domain.DeliveryError{Recipient: recipient, Err: err}
	}
	l.log.Info().Str("to", recipient).Str("subject", subject).Msg("mail: письмо (не отправлено)")
	l.log.Debug().Str("to", recipient).Str("text", body.Text).Msg("mail: содержимое")
	return nil
}
