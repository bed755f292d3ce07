// Package email provides a provider-agnostic interface for sending
// transactional email, with a Postmark implementation for production and a
// disk-writing DevSender for local development.
//
// All implementations validate parameters before sending and return a
// SendReceipt carrying the provider's message id, which delivery code stores
// on the notification record for support lookups.
//
//	client, err := email.NewPostmarkClient(cfg)
//	if err != nil { ... }
//
//	receipt, err := client.SendEmail(ctx, email.SendEmailParams{
//	    SendTo:   "user@example.com",
//	    Subject:  "Welcome!",
//	    BodyHTML: html,
//	    Tag:      "welcome",
//	})
//
// Errors are sentinel-based: ErrInvalidConfig, ErrInvalidParams, and
// ErrFailedToSendEmail, all checkable with errors.Is. A provider rejection
// wraps ErrFailedToSendEmail with the provider's message via errors.Join.
package email
