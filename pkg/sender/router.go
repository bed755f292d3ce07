package sender

import (
	"context"
	"fmt"

	"github.com/notifykit/notifykit/pkg/notification"
)

// Router dispatches a notification to the sender for its channel. The
// channel set is closed; routing holds no state beyond the three senders.
type Router struct {
	email Sender
	sms   Sender
	inApp Sender
}

// NewRouter creates a dispatch router over the fixed channel set. All three
// senders are required so misconfiguration fails at startup, not at delivery
// time.
func NewRouter(email, sms, inApp Sender) (*Router, error) {
	if email == nil || sms == nil || inApp == nil {
		return nil, fmt.Errorf("%w: all channel senders are required", ErrNoTransport)
	}
	return &Router{email: email, sms: sms, inApp: inApp}, nil
}

// Dispatch selects the sender for the record's channel and delegates the
// send. An unknown channel fails immediately with a non-retryable error.
func (r *Router) Dispatch(ctx context.Context, record *notification.Record) (*Receipt, error) {
	switch record.Channel {
	case notification.ChannelEmail:
		return r.email.Send(ctx, record)
	case notification.ChannelSMS:
		return r.sms.Send(ctx, record)
	case notification.ChannelInApp:
		return r.inApp.Send(ctx, record)
	default:
		return nil, Permanent(fmt.Errorf("%w: %q", ErrUnsupportedChannel, record.Channel))
	}
}
