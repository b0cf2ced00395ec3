package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/homespot/identity-service/internal/core/ports"
)

// LogSender writes notifications to the structured log instead of a mail
// gateway. Used in development and as the default until a mail collaborator
// is wired in.
type LogSender struct {
	log zerolog.Logger
}

func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, n ports.Notification) error {
	s.log.Info().
		Str("recipient", n.Recipient).
		Str("subject", n.Subject).
		Str("link", n.Link).
		Msg("notification dispatched")
	return nil
}
