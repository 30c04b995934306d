package services

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Notifier delivers a report or an alert. Delivery itself (mail, webhook)
// lives outside this module.
type Notifier interface {
	Send(ctx context.Context, subject, content string) error
}

// LogNotifier writes notifications to the log.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, subject, content string) error {
	log.Info().Str("subject", subject).Msg(content)
	return nil
}
