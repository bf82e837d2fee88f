// Package notify delivers vault events to subscribers. Delivery is
// fire-and-forget: a failed notification is logged and dropped, never
// blocking or rolling back the transition that produced it.
package notify

import (
	"context"
	"time"
)

// EventKind classifies a vault notification.
type EventKind string

const (
	EventWarning      EventKind = "warning"
	EventEarlyWarning EventKind = "early_warning"
	EventAutoExtend   EventKind = "auto_extend"
	EventYieldStarted EventKind = "yield_started"
	EventResumed      EventKind = "resumed"
	EventTransfer     EventKind = "transfer"
)

// Event is a single notification about one vault.
type Event struct {
	OwnerID string    `json:"owner_id"`
	Kind    EventKind `json:"kind"`
	Message string    `json:"message"`

	// Channel is the vault's linked notification address, if any.
	Channel string    `json:"channel,omitempty"`
	At      time.Time `json:"at"`
}

// Notifier delivers events to subscribers of a vault. Implementations must
// be safe for concurrent use and should treat delivery as best-effort.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}
