package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPGateway talks to a JSON-over-HTTP SMS provider. It targets the common
// aggregator shape: POST /messages to send, GET /messages/{id} to poll
// delivery state, bearer-token auth.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPGateway creates a gateway client from config.
func NewHTTPGateway(cfg Config) (*HTTPGateway, error) {
	if cfg.GatewayURL == "" {
		return nil, fmt.Errorf("%w: GatewayURL is required", ErrInvalidConfig)
	}
	if _, err := url.ParseRequestURI(cfg.GatewayURL); err != nil {
		return nil, fmt.Errorf("%w: GatewayURL must be a valid URL", ErrInvalidConfig)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: APIKey is required", ErrInvalidConfig)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPGateway{
		baseURL: cfg.GatewayURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type sendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Segments  int    `json:"segments"`
	Error     string `json:"error,omitempty"`
}

func (g *HTTPGateway) Send(ctx context.Context, params SendParams) (*SendReceipt, error) {
	if params.To == "" || params.Body == "" {
		return nil, fmt.Errorf("%w: recipient and body are required", ErrInvalidParams)
	}

	body, err := json.Marshal(sendRequest{To: params.To, Body: params.Body})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, errors.Join(ErrFailedToSend, err)
	}
	defer resp.Body.Close()

	var parsed sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.Join(ErrFailedToSend, fmt.Errorf("failed to decode gateway response: %w", err))
	}

	switch {
	case resp.StatusCode >= 500:
		// Retryable: provider-side trouble.
		return nil, errors.Join(ErrFailedToSend, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, parsed.Error))
	case resp.StatusCode >= 400:
		// Permanent: the gateway will reject the same request again.
		return nil, errors.Join(ErrGatewayRejected, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, parsed.Error))
	}

	if parsed.MessageID == "" {
		return nil, errors.Join(ErrFailedToSend, errors.New("gateway accepted the message without a message id"))
	}
	return &SendReceipt{MessageID: parsed.MessageID, Segments: parsed.Segments}, nil
}

type statusResponse struct {
	Status string `json:"status"`
}

func (g *HTTPGateway) DeliveryStatus(ctx context.Context, messageID string) (DeliveryState, error) {
	if messageID == "" {
		return DeliveryUnknown, fmt.Errorf("%w: messageID is required", ErrInvalidParams)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/messages/"+url.PathEscape(messageID), nil)
	if err != nil {
		return DeliveryUnknown, fmt.Errorf("failed to build status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return DeliveryUnknown, errors.Join(ErrFailedToSend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return DeliveryUnknown, errors.Join(ErrFailedToSend, fmt.Errorf("gateway returned %d", resp.StatusCode))
	}

	var parsed statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return DeliveryUnknown, errors.Join(ErrFailedToSend, err)
	}

	switch state := DeliveryState(parsed.Status); state {
	case DeliveryQueued, DeliverySent, DeliveryDelivered, DeliveryFailed:
		return state, nil
	default:
		return DeliveryUnknown, nil
	}
}
