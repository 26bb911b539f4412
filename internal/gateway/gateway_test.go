package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

func quietLogger() *logging.Logger { return logging.NewWithWriter(io.Discard, "error") }

func TestStripeClientCreatePaymentIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		assert.Equal(t, "booking-1", r.Header.Get("Idempotency-Key"))
		assert.NotEmpty(t, r.Header.Get("Stripe-Version"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "10350", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.Equal(t, "b-1", r.PostForm.Get("metadata[booking_id]"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":            "pi_123",
			"client_secret": "pi_123_secret",
			"status":        "requires_payment_method",
		})
	}))
	defer srv.Close()

	client := NewStripeClient("sk_test_123", quietLogger()).WithBaseURL(srv.URL)
	intent, err := client.CreatePaymentIntent(context.Background(), IntentRequest{
		Amount:         10350,
		Metadata:       map[string]string{"booking_id": "b-1"},
		IdempotencyKey: "booking-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", intent.ID)
	assert.Equal(t, "pi_123_secret", intent.ClientSecret)
}

func TestStripeClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   apperr.Kind
	}{
		{"server error is retryable", http.StatusBadGateway, `oops`, apperr.KindGateway},
		{"rate limited is retryable", http.StatusTooManyRequests, `{}`, apperr.KindGateway},
		{"card declined is a validation failure", http.StatusPaymentRequired, `{"error":{"message":"card declined"}}`, apperr.KindValidation},
		{"missing id", http.StatusOK, `{}`, apperr.KindGateway},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewStripeClient("sk", quietLogger()).WithBaseURL(srv.URL).Confirm(context.Background(), "pi_1")
			require.Error(t, err)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
		})
	}
}

func TestStripeClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewStripeClient("sk", quietLogger()).WithBaseURL(url).Cancel(context.Background(), "pi_1")
	assert.ErrorIs(t, err, apperr.ErrGateway)
}

func TestFakeClient(t *testing.T) {
	ctx := context.Background()
	f := NewFakeClient(quietLogger())

	first, err := f.CreatePaymentIntent(ctx, IntentRequest{Amount: 500, IdempotencyKey: "k"})
	require.NoError(t, err)
	again, err := f.CreatePaymentIntent(ctx, IntentRequest{Amount: 500, IdempotencyKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	other, err := f.CreatePaymentIntent(ctx, IntentRequest{Amount: 700})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	confirmed, err := f.Confirm(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "succeeded", confirmed.Status)

	_, err = f.Cancel(ctx, first.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = f.Confirm(ctx, "pi_missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	req, ok := f.Request(other.ID)
	require.True(t, ok)
	assert.EqualValues(t, 700, req.Amount)

	_, err = f.CreatePaymentIntent(ctx, IntentRequest{})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
