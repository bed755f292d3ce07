package sender_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifykit/notifykit/pkg/email"
	"github.com/notifykit/notifykit/pkg/notification"
	"github.com/notifykit/notifykit/pkg/sender"
)

type stubEmailClient struct {
	lastParams email.SendEmailParams
	receipt    *email.SendReceipt
	err        error
}

func (c *stubEmailClient) SendEmail(ctx context.Context, params email.SendEmailParams) (*email.SendReceipt, error) {
	c.lastParams = params
	return c.receipt, c.err
}

func TestEmailSender_Send(t *testing.T) {
	t.Parallel()

	t.Run("successful delivery", func(t *testing.T) {
		t.Parallel()

		client := &stubEmailClient{receipt: &email.SendReceipt{MessageID: "pm-1", SubmittedTo: "a@b.co"}}
		s, err := sender.NewEmailSender(client)
		require.NoError(t, err)

		record := newRecord(notification.ChannelEmail)
		record.Subject = "Hi"
		record.Recipient = "a@b.co"
		record.Message = "line one\nline two"
		record.Metadata = map[string]string{
			"action_url":      "https://app.example.com/orders/1",
			"action_label":    "View order",
			"unsubscribe_url": "https://app.example.com/unsubscribe",
		}

		receipt, err := s.Send(context.Background(), record)
		require.NoError(t, err)
		assert.Equal(t, "pm-1", receipt.ProviderMessageID)
		assert.Equal(t, []string{"a@b.co"}, receipt.Accepted)

		assert.Equal(t, "Hi", client.lastParams.Subject)
		assert.Contains(t, client.lastParams.BodyHTML, "line one<br>line two")
		assert.Contains(t, client.lastParams.BodyHTML, `href="https://app.example.com/orders/1"`)
		assert.Contains(t, client.lastParams.BodyHTML, "View order")
		assert.Contains(t, client.lastParams.BodyHTML, "Unsubscribe")
	})

	t.Run("escapes message content", func(t *testing.T) {
		t.Parallel()

		client := &stubEmailClient{receipt: &email.SendReceipt{MessageID: "pm-2"}}
		s, err := sender.NewEmailSender(client)
		require.NoError(t, err)

		record := newRecord(notification.ChannelEmail)
		record.Subject = "Hi"
		record.Recipient = "a@b.co"
		record.Message = "<script>alert(1)</script>"

		_, err = s.Send(context.Background(), record)
		require.NoError(t, err)
		assert.NotContains(t, client.lastParams.BodyHTML, "<script>")
		assert.Contains(t, client.lastParams.BodyHTML, "&lt;script&gt;")
	})

	t.Run("invalid recipient is permanent", func(t *testing.T) {
		t.Parallel()

		s, err := sender.NewEmailSender(&stubEmailClient{})
		require.NoError(t, err)

		record := newRecord(notification.ChannelEmail)
		record.Subject = "Hi"
		record.Recipient = "not-an-address"

		_, err = s.Send(context.Background(), record)
		require.Error(t, err)
		assert.ErrorIs(t, err, sender.ErrInvalidRecipient)
		assert.False(t, sender.IsRetryable(err))
	})

	t.Run("transport failure is retryable", func(t *testing.T) {
		t.Parallel()

		client := &stubEmailClient{err: errors.Join(email.ErrFailedToSendEmail, errors.New("timeout"))}
		s, err := sender.NewEmailSender(client)
		require.NoError(t, err)

		record := newRecord(notification.ChannelEmail)
		record.Subject = "Hi"
		record.Recipient = "a@b.co"

		_, err = s.Send(context.Background(), record)
		require.Error(t, err)
		assert.True(t, sender.IsRetryable(err))
	})
}

func TestNewEmailSender_RequiresClient(t *testing.T) {
	t.Parallel()

	_, err := sender.NewEmailSender(nil)
	assert.ErrorIs(t, err, sender.ErrNoTransport)
}
