// Package gateway is the outbound contract with the payment processor.
// Inbound events arrive through the webhooks package.
package gateway

import (
	"context"

	"github.com/wolfman30/pro-marketplace/internal/money"
)

// IntentRequest describes a payment intent for one booking.
type IntentRequest struct {
	Amount         money.Cents
	Currency       string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

// Intent is the processor's view of a payment intent.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Status       string `json:"status"`
}

// Client creates and drives payment intents. Transport failures and 5xx
// responses surface as apperr Gateway errors.
type Client interface {
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	Confirm(ctx context.Context, intentID string) (*Intent, error)
	Cancel(ctx context.Context, intentID string) (*Intent, error)
}
