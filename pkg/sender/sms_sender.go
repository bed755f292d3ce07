package sender

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/notifykit/notifykit/pkg/notification"
	"github.com/notifykit/notifykit/pkg/sms"
)

// Metadata keys the SMS sender understands.
const (
	metaSenderName = "sender_name"
	metaShortURL   = "short_url"
)

// maxSMSLength bounds the composed body, counted in characters; longer texts
// are truncated with an ellipsis marker. 1600 is the common aggregator limit
// (10 segments).
const maxSMSLength = 1600

// e164Regex: "+" followed by 1-15 digits, first digit nonzero.
var e164Regex = regexp.MustCompile(`^\+[1-9]\d{0,14}$`)

// SMSSender delivers notifications through an SMS gateway.
type SMSSender struct {
	gateway sms.Gateway
}

// NewSMSSender creates an SMS channel sender.
func NewSMSSender(gateway sms.Gateway) (*SMSSender, error) {
	if gateway == nil {
		return nil, fmt.Errorf("%w: sms gateway is required", ErrNoTransport)
	}
	return &SMSSender{gateway: gateway}, nil
}

// Send validates the recipient against E.164, composes the body with the
// optional sender-name prefix and short URL from metadata, and submits it.
// Gateway rejections are permanent; transport trouble is retryable.
func (s *SMSSender) Send(ctx context.Context, record *notification.Record) (*Receipt, error) {
	if !e164Regex.MatchString(record.Recipient) {
		return nil, Permanent(fmt.Errorf("%w: %q is not an E.164 phone number", ErrInvalidRecipient, record.Recipient))
	}

	receipt, err := s.gateway.Send(ctx, sms.SendParams{
		To:   record.Recipient,
		Body: composeSMSBody(record),
	})
	if err != nil {
		if errors.Is(err, sms.ErrGatewayRejected) || errors.Is(err, sms.ErrInvalidParams) {
			return nil, Permanent(err)
		}
		return nil, Transient(err)
	}

	return &Receipt{
		ProviderMessageID: receipt.MessageID,
		Accepted:          []string{record.Recipient},
		Detail:            fmt.Sprintf("%d segment(s)", receipt.Segments),
	}, nil
}

// TestConnection reports transport readiness.
func (s *SMSSender) TestConnection(ctx context.Context) bool {
	return s.gateway != nil
}

// DeliveryStatus polls the gateway for the delivery state of a previously
// accepted message. It never retries; callers poll again if needed.
func (s *SMSSender) DeliveryStatus(ctx context.Context, providerMessageID string) (sms.DeliveryState, error) {
	return s.gateway.DeliveryStatus(ctx, providerMessageID)
}

// composeSMSBody assembles "[sender] message url" and truncates to the
// gateway limit, marking truncation with an ellipsis.
func composeSMSBody(record *notification.Record) string {
	var b strings.Builder

	if name := record.Metadata[metaSenderName]; name != "" {
		b.WriteString(name)
		b.WriteString(": ")
	}
	b.WriteString(record.Message)
	if url := record.Metadata[metaShortURL]; url != "" {
		b.WriteString(" ")
		b.WriteString(url)
	}

	body := b.String()
	// Cut on rune boundaries; a byte slice could split a multi-byte character
	// and hand the gateway invalid UTF-8.
	if runes := []rune(body); len(runes) > maxSMSLength {
		body = string(runes[:maxSMSLength-3]) + "..."
	}
	return body
}
