package sms

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// DevGateway implements Gateway for local development and tests. Messages
// are kept in memory and reported as delivered immediately.
type DevGateway struct {
	mu       sync.RWMutex
	messages map[string]SendParams
}

// NewDevGateway creates an in-memory SMS gateway.
func NewDevGateway() *DevGateway {
	return &DevGateway{messages: make(map[string]SendParams)}
}

func (g *DevGateway) Send(ctx context.Context, params SendParams) (*SendReceipt, error) {
	if params.To == "" || params.Body == "" {
		return nil, fmt.Errorf("%w: recipient and body are required", ErrInvalidParams)
	}

	id := uuid.NewString()
	g.mu.Lock()
	g.messages[id] = params
	g.mu.Unlock()

	// One GSM-7 segment carries 160 chars; 153 once concatenated.
	segments := 1
	if n := len(params.Body); n > 160 {
		segments = (n + 152) / 153
	}
	return &SendReceipt{MessageID: id, Segments: segments}, nil
}

func (g *DevGateway) DeliveryStatus(ctx context.Context, messageID string) (DeliveryState, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.messages[messageID]; !ok {
		return DeliveryUnknown, nil
	}
	return DeliveryDelivered, nil
}

// Sent returns the message stored under the given id, for test assertions.
func (g *DevGateway) Sent(messageID string) (SendParams, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	params, ok := g.messages[messageID]
	return params, ok
}
