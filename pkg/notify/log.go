package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes events to structured logs. It is the always-on
// baseline notifier; real delivery channels are layered on top via Multi.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier writing to the given logger.
// A nil logger falls back to slog.Default.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	n.logger.InfoContext(ctx, "vault notification",
		"owner", event.OwnerID,
		"kind", string(event.Kind),
		"message", event.Message,
		"channel", event.Channel,
	)
	return nil
}
