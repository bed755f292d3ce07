package sender_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifykit/notifykit/pkg/broadcast"
	"github.com/notifykit/notifykit/pkg/notification"
	"github.com/notifykit/notifykit/pkg/sender"
)

func TestInAppSender_Send(t *testing.T) {
	t.Parallel()

	t.Run("delivers without a live session", func(t *testing.T) {
		t.Parallel()

		s := sender.NewInAppSender(8)
		record := newRecord(notification.ChannelInApp)

		receipt, err := s.Send(context.Background(), record)
		require.NoError(t, err)
		assert.Equal(t, record.ID.String(), receipt.ProviderMessageID)
		assert.Equal(t, []string{"u1"}, receipt.Accepted)
	})

	t.Run("broadcasts to a live session", func(t *testing.T) {
		t.Parallel()

		s := sender.NewInAppSender(8)
		ctx := context.Background()

		sub := s.Subscribe(ctx, "u1")
		defer sub.Close()

		record := newRecord(notification.ChannelInApp)
		record.Message = "Your invoice is ready. Pay before Friday."
		record.Priority = notification.PriorityHigh
		record.Metadata = map[string]string{"category": "billing"}

		_, err := s.Send(ctx, record)
		require.NoError(t, err)

		select {
		case msg := <-sub.Receive(ctx):
			assert.Equal(t, "Billing", msg.Data.Title)
			assert.Equal(t, "credit-card", msg.Data.Icon)
			assert.Equal(t, "#dc2626", msg.Data.Color)
			assert.Equal(t, record.Message, msg.Data.Body)
		case <-time.After(time.Second):
			t.Fatal("display payload not broadcast")
		}
	})

	t.Run("real_time=false skips broadcast", func(t *testing.T) {
		t.Parallel()

		s := sender.NewInAppSender(8)
		ctx := context.Background()

		sub := s.Subscribe(ctx, "u1")
		defer sub.Close()

		record := newRecord(notification.ChannelInApp)
		record.Metadata = map[string]string{"real_time": "false"}

		_, err := s.Send(ctx, record)
		require.NoError(t, err)

		select {
		case msg := <-sub.Receive(ctx):
			t.Fatalf("unexpected broadcast: %+v", msg.Data)
		case <-time.After(50 * time.Millisecond):
		}
	})
}

func TestInAppSender_TitleDerivation(t *testing.T) {
	t.Parallel()

	s := sender.NewInAppSender(8)
	ctx := context.Background()

	cases := []struct {
		name     string
		message  string
		metadata map[string]string
		want     string
	}{
		{
			name:     "category wins",
			message:  "Suspicious login detected.",
			metadata: map[string]string{"category": "security"},
			want:     "Security",
		},
		{
			name:    "first sentence",
			message: "Build finished. See the logs for details.",
			want:    "Build finished",
		},
		{
			name:    "first clause",
			message: "Reminder, your trial expires soon and billing starts",
			want:    "Reminder",
		},
		{
			name:    "long message truncated",
			message: strings.Repeat("x", 120),
			want:    strings.Repeat("x", 47) + "...",
		},
		{
			name:     "multi-byte category capitalized whole rune",
			message:  "Neue Anmeldung erkannt",
			metadata: map[string]string{"category": "überwachung"},
			want:     "Überwachung",
		},
		{
			name:    "multi-byte message truncated on rune boundaries",
			message: strings.Repeat("ü", 120),
			want:    strings.Repeat("ü", 47) + "...",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			record := newRecord(notification.ChannelInApp)
			record.Message = tc.message
			record.Metadata = tc.metadata

			receipt, err := s.Send(ctx, record)
			require.NoError(t, err)
			assert.Equal(t, tc.want, receipt.Detail)
		})
	}
}

func TestInAppSender_ConcurrentSubscribersShareHub(t *testing.T) {
	t.Parallel()

	s := sender.NewInAppSender(8)
	ctx := context.Background()

	const subscribers = 8
	subs := make([]broadcast.Subscriber[sender.DisplayPayload], subscribers)

	var wg sync.WaitGroup
	for i := 0; i < subscribers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			subs[i] = s.Subscribe(ctx, "u1")
		}()
	}
	wg.Wait()

	record := newRecord(notification.ChannelInApp)
	_, err := s.Send(ctx, record)
	require.NoError(t, err)

	for i, sub := range subs {
		select {
		case msg := <-sub.Receive(ctx):
			assert.Equal(t, record.ID.String(), msg.Data.NotificationID)
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive the broadcast", i)
		}
		_ = sub.Close()
	}
}

func TestInAppSender_HubEvictionClosesSubscribers(t *testing.T) {
	t.Parallel()

	// Capacity 1: subscribing a second user evicts the first user's hub.
	s := sender.NewInAppSender(1)
	ctx := context.Background()

	first := s.Subscribe(ctx, "u1")
	_ = s.Subscribe(ctx, "u2")

	select {
	case _, ok := <-first.Receive(ctx):
		assert.False(t, ok, "evicted hub must close its subscribers")
	case <-time.After(time.Second):
		t.Fatal("subscriber channel not closed on eviction")
	}
}
