package sender_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifykit/notifykit/pkg/notification"
	"github.com/notifykit/notifykit/pkg/sender"
)

type stubSender struct {
	receipt *sender.Receipt
	err     error
	calls   int
}

func (s *stubSender) Send(ctx context.Context, record *notification.Record) (*sender.Receipt, error) {
	s.calls++
	return s.receipt, s.err
}

func (s *stubSender) TestConnection(ctx context.Context) bool { return true }

func newRecord(channel notification.Channel) *notification.Record {
	return &notification.Record{
		ID:       uuid.New(),
		UserID:   "u1",
		Channel:  channel,
		Message:  "hello",
		Priority: notification.PriorityMedium,
	}
}

func TestNewRouter_RequiresAllSenders(t *testing.T) {
	t.Parallel()

	_, err := sender.NewRouter(&stubSender{}, &stubSender{}, nil)
	assert.ErrorIs(t, err, sender.ErrNoTransport)
}

func TestRouter_Dispatch(t *testing.T) {
	t.Parallel()

	emailS := &stubSender{receipt: &sender.Receipt{ProviderMessageID: "e1"}}
	smsS := &stubSender{receipt: &sender.Receipt{ProviderMessageID: "s1"}}
	inAppS := &stubSender{receipt: &sender.Receipt{ProviderMessageID: "i1"}}

	router, err := sender.NewRouter(emailS, smsS, inAppS)
	require.NoError(t, err)

	ctx := context.Background()

	receipt, err := router.Dispatch(ctx, newRecord(notification.ChannelEmail))
	require.NoError(t, err)
	assert.Equal(t, "e1", receipt.ProviderMessageID)

	receipt, err = router.Dispatch(ctx, newRecord(notification.ChannelSMS))
	require.NoError(t, err)
	assert.Equal(t, "s1", receipt.ProviderMessageID)

	receipt, err = router.Dispatch(ctx, newRecord(notification.ChannelInApp))
	require.NoError(t, err)
	assert.Equal(t, "i1", receipt.ProviderMessageID)

	assert.Equal(t, 1, emailS.calls)
	assert.Equal(t, 1, smsS.calls)
	assert.Equal(t, 1, inAppS.calls)
}

func TestRouter_UnknownChannelIsPermanent(t *testing.T) {
	t.Parallel()

	router, err := sender.NewRouter(&stubSender{}, &stubSender{}, &stubSender{})
	require.NoError(t, err)

	_, err = router.Dispatch(context.Background(), newRecord(notification.Channel("carrier-pigeon")))
	require.Error(t, err)
	assert.ErrorIs(t, err, sender.ErrUnsupportedChannel)
	assert.False(t, sender.IsRetryable(err))
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	assert.False(t, sender.IsRetryable(sender.Permanent(errors.New("bad recipient"))))
	assert.True(t, sender.IsRetryable(sender.Transient(errors.New("timeout"))))

	// Unclassified errors get the benefit of the attempt budget.
	assert.True(t, sender.IsRetryable(errors.New("who knows")))

	// Wrapped delivery errors keep their classification.
	wrapped := errors.Join(errors.New("context"), sender.Permanent(errors.New("rejected")))
	assert.False(t, sender.IsRetryable(wrapped))
}
