package sms

import "context"

// Gateway abstracts an SMS delivery provider.
type Gateway interface {
	// Send submits a single message and returns the provider's receipt.
	Send(ctx context.Context, params SendParams) (*SendReceipt, error)

	// DeliveryStatus polls the provider for the delivery state of a
	// previously accepted message.
	DeliveryStatus(ctx context.Context, messageID string) (DeliveryState, error)
}

// SendParams carries a single outbound SMS.
type SendParams struct {
	To   string `json:"to"`   // recipient in E.164 format
	Body string `json:"body"` // message text, provider enforces segment limits
}

// SendReceipt is the provider's acknowledgement of an accepted message.
type SendReceipt struct {
	MessageID string `json:"message_id"`
	Segments  int    `json:"segments"`
}

// DeliveryState is the provider-reported lifecycle of an accepted message.
type DeliveryState string

const (
	DeliveryQueued    DeliveryState = "queued"
	DeliverySent      DeliveryState = "sent"
	DeliveryDelivered DeliveryState = "delivered"
	DeliveryFailed    DeliveryState = "failed"
	DeliveryUnknown   DeliveryState = "unknown"
)
