package sms_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifykit/notifykit/pkg/sms"
)

func newGateway(t *testing.T, handler http.HandlerFunc) *sms.HTTPGateway {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	gw, err := sms.NewHTTPGateway(sms.Config{
		GatewayURL: srv.URL,
		APIKey:     "test-key",
	})
	require.NoError(t, err)
	return gw
}

func TestNewHTTPGateway_ConfigValidation(t *testing.T) {
	t.Parallel()

	_, err := sms.NewHTTPGateway(sms.Config{APIKey: "k"})
	assert.ErrorIs(t, err, sms.ErrInvalidConfig)

	_, err = sms.NewHTTPGateway(sms.Config{GatewayURL: "https://sms.example.com"})
	assert.ErrorIs(t, err, sms.ErrInvalidConfig)

	_, err = sms.NewHTTPGateway(sms.Config{GatewayURL: "://bad", APIKey: "k"})
	assert.ErrorIs(t, err, sms.ErrInvalidConfig)
}

func TestHTTPGateway_Send(t *testing.T) {
	t.Parallel()

	t.Run("accepted", func(t *testing.T) {
		t.Parallel()

		gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/messages", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

			var req map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "+15550001111", req["to"])

			json.NewEncoder(w).Encode(map[string]any{"message_id": "msg-42", "segments": 1})
		})

		receipt, err := gw.Send(context.Background(), sms.SendParams{
			To:   "+15550001111",
			Body: "Your order shipped",
		})
		require.NoError(t, err)
		assert.Equal(t, "msg-42", receipt.MessageID)
		assert.Equal(t, 1, receipt.Segments)
	})

	t.Run("server error is retryable", func(t *testing.T) {
		t.Parallel()

		gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			json.NewEncoder(w).Encode(map[string]string{"error": "carrier unavailable"})
		})

		_, err := gw.Send(context.Background(), sms.SendParams{To: "+15550001111", Body: "hi"})
		assert.ErrorIs(t, err, sms.ErrFailedToSend)
		assert.NotErrorIs(t, err, sms.ErrGatewayRejected)
	})

	t.Run("client error is permanent", func(t *testing.T) {
		t.Parallel()

		gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(map[string]string{"error": "unroutable number"})
		})

		_, err := gw.Send(context.Background(), sms.SendParams{To: "+15550001111", Body: "hi"})
		assert.ErrorIs(t, err, sms.ErrGatewayRejected)
	})

	t.Run("rejects empty params", func(t *testing.T) {
		t.Parallel()

		gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("gateway must not be called")
		})

		_, err := gw.Send(context.Background(), sms.SendParams{})
		assert.ErrorIs(t, err, sms.ErrInvalidParams)
	})
}

func TestHTTPGateway_DeliveryStatus(t *testing.T) {
	t.Parallel()

	t.Run("known state", func(t *testing.T) {
		t.Parallel()

		gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/messages/msg-42", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]string{"status": "delivered"})
		})

		state, err := gw.DeliveryStatus(context.Background(), "msg-42")
		require.NoError(t, err)
		assert.Equal(t, sms.DeliveryDelivered, state)
	})

	t.Run("unrecognized state maps to unknown", func(t *testing.T) {
		t.Parallel()

		gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"status": "carrier_limbo"})
		})

		state, err := gw.DeliveryStatus(context.Background(), "msg-42")
		require.NoError(t, err)
		assert.Equal(t, sms.DeliveryUnknown, state)
	})
}

func TestDevGateway(t *testing.T) {
	t.Parallel()

	gw := sms.NewDevGateway()
	ctx := context.Background()

	receipt, err := gw.Send(ctx, sms.SendParams{To: "+15550001111", Body: "hello"})
	require.NoError(t, err)
	require.NotEmpty(t, receipt.MessageID)
	assert.Equal(t, 1, receipt.Segments)

	stored, ok := gw.Sent(receipt.MessageID)
	require.True(t, ok)
	assert.Equal(t, "hello", stored.Body)

	state, err := gw.DeliveryStatus(ctx, receipt.MessageID)
	require.NoError(t, err)
	assert.Equal(t, sms.DeliveryDelivered, state)

	state, err = gw.DeliveryStatus(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, sms.DeliveryUnknown, state)

	_, err = gw.Send(ctx, sms.SendParams{})
	assert.ErrorIs(t, err, sms.ErrInvalidParams)
}
