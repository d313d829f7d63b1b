// Package notify delivers outbound email for the identity subsystem.
// Delivery is best-effort by contract: a failed or dropped notification must
// never fail or roll back the state transition that triggered it.
package notify

import (
	"context"
	"log/slog"
)

// Message is one outbound notification.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Notifier sends a message. Implementations must be safe for concurrent use.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier writes notifications to the log instead of sending them.
// Used in dev environments without an SMTP host configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	n.Logger.Info("notification (not sent, no SMTP configured)",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}
