package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

var tracer = otel.Tracer("marketplace.internal.gateway")

// StripeClient talks to a Stripe-compatible payment intents API using
// form-encoded requests and bearer auth.
type StripeClient struct {
	secretKey  string
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     *logging.Logger
}

func NewStripeClient(secretKey string, logger *logging.Logger) *StripeClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeClient{
		secretKey:  secretKey,
		baseURL:    "https://api.stripe.com",
		apiVersion: "2024-12-18.acacia",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// WithBaseURL overrides the API base URL (for testing).
func (c *StripeClient) WithBaseURL(baseURL string) *StripeClient {
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

func (c *StripeClient) WithHTTPClient(client *http.Client) *StripeClient {
	if client != nil {
		c.httpClient = client
	}
	return c
}

func (c *StripeClient) CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	ctx, span := tracer.Start(ctx, "gateway.create_payment_intent")
	defer span.End()
	span.SetAttributes(attribute.Int64("marketplace.amount_cents", int64(req.Amount)))

	if req.Amount <= 0 {
		return nil, apperr.Validation("invalid_amount", "payment amount must be positive")
	}
	currency := req.Currency
	if currency == "" {
		currency = "usd"
	}
	form := url.Values{}
	form.Set("amount", fmt.Sprintf("%d", req.Amount))
	form.Set("currency", currency)
	form.Set("automatic_payment_methods[enabled]", "true")
	if req.Description != "" {
		form.Set("description", req.Description)
	}
	keys := make([]string, 0, len(req.Metadata))
	for k := range req.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		form.Set("metadata["+k+"]", req.Metadata[k])
	}
	intent, err := c.post(ctx, "/v1/payment_intents", form, req.IdempotencyKey)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	c.logger.Info("payment intent created", "intent_id", intent.ID, "amount_cents", int64(req.Amount))
	return intent, nil
}

func (c *StripeClient) Confirm(ctx context.Context, intentID string) (*Intent, error) {
	ctx, span := tracer.Start(ctx, "gateway.confirm_payment_intent")
	defer span.End()
	span.SetAttributes(attribute.String("marketplace.intent_id", intentID))
	return c.post(ctx, "/v1/payment_intents/"+url.PathEscape(intentID)+"/confirm", url.Values{}, "")
}

func (c *StripeClient) Cancel(ctx context.Context, intentID string) (*Intent, error) {
	ctx, span := tracer.Start(ctx, "gateway.cancel_payment_intent")
	defer span.End()
	span.SetAttributes(attribute.String("marketplace.intent_id", intentID))
	return c.post(ctx, "/v1/payment_intents/"+url.PathEscape(intentID)+"/cancel", url.Values{}, "")
}

type stripeIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

type stripeErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (c *StripeClient) post(ctx context.Context, path string, form url.Values, idempotencyKey string) (*Intent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Stripe-Version", c.apiVersion)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Gateway("gateway_unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperr.Gateway("gateway_read_failed", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperr.Gateway("gateway_unavailable", fmt.Errorf("status %d: %s", resp.StatusCode, errorMessage(body)))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, apperr.Validation("gateway_rejected", "payment processor rejected the request: %s", errorMessage(body))
	}

	var parsed stripeIntent
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apperr.Gateway("gateway_decode_failed", err)
	}
	if parsed.ID == "" {
		return nil, apperr.Gateway("gateway_decode_failed", fmt.Errorf("response missing intent id"))
	}
	return &Intent{ID: parsed.ID, ClientSecret: parsed.ClientSecret, Status: parsed.Status}, nil
}

func errorMessage(body []byte) string {
	var parsed stripeErrorResponse
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}
