package email

import (
	"context"
	"fmt"
	"regexp"
)

// EmailSender abstracts a transactional email provider.
type EmailSender interface {
	SendEmail(ctx context.Context, params SendEmailParams) (*SendReceipt, error)
}

// SendEmailParams carries a single outbound email.
type SendEmailParams struct {
	SendTo   string `json:"send_to"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
	Tag      string `json:"tag,omitempty"` // optional, for provider-side analytics
}

// SendReceipt is the provider's acknowledgement of an accepted email.
type SendReceipt struct {
	MessageID   string `json:"message_id"`
	SubmittedTo string `json:"submitted_to"`
}

// emailRegex is a pragmatic format check; deliverability is the provider's
// problem.
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// IsValidAddress reports whether s looks like a deliverable email address.
func IsValidAddress(s string) bool {
	return emailRegex.MatchString(s)
}

// Validate checks the params before they reach a provider.
func (p SendEmailParams) Validate() error {
	if p.SendTo == "" {
		return fmt.Errorf("%w: SendTo is required", ErrInvalidParams)
	}
	if !emailRegex.MatchString(p.SendTo) {
		return fmt.Errorf("%w: SendTo must be a valid email address", ErrInvalidParams)
	}
	if p.Subject == "" {
		return fmt.Errorf("%w: Subject is required", ErrInvalidParams)
	}
	if p.BodyHTML == "" {
		return fmt.Errorf("%w: BodyHTML is required", ErrInvalidParams)
	}
	return nil
}
