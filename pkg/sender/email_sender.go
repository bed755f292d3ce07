package sender

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/notifykit/notifykit/pkg/email"
	"github.com/notifykit/notifykit/pkg/notification"
)

// Metadata keys the email sender understands.
const (
	metaActionURL      = "action_url"
	metaActionLabel    = "action_label"
	metaUnsubscribeURL = "unsubscribe_url"
)

// EmailSender delivers notifications over a transactional email provider.
type EmailSender struct {
	client email.EmailSender
}

// NewEmailSender creates an email channel sender.
func NewEmailSender(client email.EmailSender) (*EmailSender, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: email client is required", ErrNoTransport)
	}
	return &EmailSender{client: client}, nil
}

// Send builds an HTML body from the record and submits it through the
// provider. A malformed recipient is permanent; provider trouble is
// retryable.
func (s *EmailSender) Send(ctx context.Context, record *notification.Record) (*Receipt, error) {
	if !email.IsValidAddress(record.Recipient) {
		return nil, Permanent(fmt.Errorf("%w: %q is not a valid email address", ErrInvalidRecipient, record.Recipient))
	}

	receipt, err := s.client.SendEmail(ctx, email.SendEmailParams{
		SendTo:   record.Recipient,
		Subject:  record.Subject,
		BodyHTML: buildHTMLBody(record),
		Tag:      string(record.Channel),
	})
	if err != nil {
		return nil, Transient(err)
	}

	return &Receipt{
		ProviderMessageID: receipt.MessageID,
		Accepted:          []string{receipt.SubmittedTo},
	}, nil
}

// TestConnection reports transport readiness. The provider client validates
// its tokens at construction, so a non-nil client is considered usable.
func (s *EmailSender) TestConnection(ctx context.Context) bool {
	return s.client != nil
}

// buildHTMLBody renders a minimal HTML document: escaped subject as heading,
// newline-preserving message body, then optional call-to-action and
// unsubscribe links from metadata.
func buildHTMLBody(record *notification.Record) string {
	var b strings.Builder

	b.WriteString("<html><body>")
	b.WriteString("<h2>")
	b.WriteString(html.EscapeString(record.Subject))
	b.WriteString("</h2>")

	b.WriteString("<p>")
	for i, line := range strings.Split(record.Message, "\n") {
		if i > 0 {
			b.WriteString("<br>")
		}
		b.WriteString(html.EscapeString(line))
	}
	b.WriteString("</p>")

	if actionURL := record.Metadata[metaActionURL]; actionURL != "" {
		label := record.Metadata[metaActionLabel]
		if label == "" {
			label = "View details"
		}
		fmt.Fprintf(&b, `<p><a href="%s">%s</a></p>`,
			html.EscapeString(actionURL), html.EscapeString(label))
	}

	if unsubURL := record.Metadata[metaUnsubscribeURL]; unsubURL != "" {
		fmt.Fprintf(&b, `<p style="font-size:12px;color:#888"><a href="%s">Unsubscribe</a></p>`,
			html.EscapeString(unsubURL))
	}

	b.WriteString("</body></html>")
	return b.String()
}
