package notify

import (
	"context"
	"log/slog"
)

// Multi fans an event out to several notifiers. Individual failures are
// logged and swallowed: one dead channel must not silence the others, and
// no notifier failure may surface to the state machine.
type Multi struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewMulti creates a fan-out notifier. Nil entries are skipped.
func NewMulti(logger *slog.Logger, notifiers ...Notifier) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	out := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return &Multi{notifiers: out, logger: logger}
}

func (m *Multi) Notify(ctx context.Context, event Event) error {
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, event); err != nil {
			m.logger.WarnContext(ctx, "notification delivery failed",
				"owner", event.OwnerID, "kind", string(event.Kind), "error", err)
		}
	}
	return nil
}
