package sender

import (
	"context"

	"github.com/notifykit/notifykit/pkg/notification"
)

// Sender is the per-channel delivery contract. Implementations handle
// transport only; all status bookkeeping stays with the caller.
type Sender interface {
	// Send delivers the notification and returns a receipt. Failures are
	// reported as *DeliveryError so the caller can decide retryability by
	// kind, not by message text.
	Send(ctx context.Context, record *notification.Record) (*Receipt, error)

	// TestConnection reports whether the underlying transport is usable.
	TestConnection(ctx context.Context) bool
}

// Receipt is the normalized result of a successful delivery.
type Receipt struct {
	ProviderMessageID string   `json:"provider_message_id,omitempty"`
	Accepted          []string `json:"accepted,omitempty"`
	Rejected          []string `json:"rejected,omitempty"`
	Detail            string   `json:"detail,omitempty"`
}
