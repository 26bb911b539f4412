package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

// FakeClient is an in-process gateway for development and tests. Intent ids
// are sequential and a repeated idempotency key returns the same intent.
//
// It must never be selected in production.
type FakeClient struct {
	mu      sync.Mutex
	seq     int
	intents map[string]*fakeIntent
	byKey   map[string]string
	logger  *logging.Logger
}

type fakeIntent struct {
	intent  Intent
	request IntentRequest
}

func NewFakeClient(logger *logging.Logger) *FakeClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakeClient{
		intents: map[string]*fakeIntent{},
		byKey:   map[string]string{},
		logger:  logger,
	}
}

func (f *FakeClient) CreatePaymentIntent(_ context.Context, req IntentRequest) (*Intent, error) {
	if req.Amount <= 0 {
		return nil, apperr.Validation("invalid_amount", "payment amount must be positive")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		out := f.intents[id].intent
		return &out, nil
	}
	f.seq++
	id := fmt.Sprintf("pi_fake_%06d", f.seq)
	f.intents[id] = &fakeIntent{
		intent:  Intent{ID: id, ClientSecret: id + "_secret", Status: "requires_confirmation"},
		request: req,
	}
	if req.IdempotencyKey != "" {
		f.byKey[req.IdempotencyKey] = id
	}
	f.logger.Debug("fake payment intent created", "intent_id", id, "amount_cents", int64(req.Amount))
	out := f.intents[id].intent
	return &out, nil
}

func (f *FakeClient) Confirm(_ context.Context, intentID string) (*Intent, error) {
	return f.transition(intentID, "requires_confirmation", "succeeded")
}

func (f *FakeClient) Cancel(_ context.Context, intentID string) (*Intent, error) {
	return f.transition(intentID, "requires_confirmation", "canceled")
}

func (f *FakeClient) transition(intentID, from, to string) (*Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.intents[intentID]
	if !ok {
		return nil, apperr.NotFound("intent_not_found", "payment intent %s not found", intentID)
	}
	if entry.intent.Status != from {
		return nil, apperr.InvalidState("intent_not_pending", "payment intent %s is %s", intentID, entry.intent.Status)
	}
	entry.intent.Status = to
	out := entry.intent
	return &out, nil
}

// Request returns the request that created intentID.
func (f *FakeClient) Request(intentID string) (IntentRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.intents[intentID]
	if !ok {
		return IntentRequest{}, false
	}
	return entry.request, true
}
