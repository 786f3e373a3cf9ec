package services

import (
	"context"

	"github.com/shelfmark/authd/internal/logging"
)

// Notifier delivers a rendered message to a destination. Implementations
// are expected to honor ctx deadlines; callers always bound the wait. Retry
// policy belongs to the caller, never to this core.
type Notifier interface {
	Send(ctx context.Context, destination, subject, body string) error
}

// LogNotifier is a development stand-in that writes messages to the log
// instead of delivering them.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("module", "log_notifier")}
}

func (n *LogNotifier) Send(ctx context.Context, destination, subject, body string) error {
	n.logger.Info(ctx, "notification (not delivered)", "destination", destination, "subject", subject)
	// The body carries the one-time code; keep it out of Info-level logs.
	n.logger.Debug(ctx, "notification body", "body", body)
	return nil
}
