// Package webhooks ingests payment gateway events exactly once and applies
// them to bookings and the ledger.
package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/internal/domain"
	"github.com/wolfman30/pro-marketplace/internal/money"
	"github.com/wolfman30/pro-marketplace/internal/observability/metrics"
	"github.com/wolfman30/pro-marketplace/internal/store"
	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

var tracer = otel.Tracer("marketplace.internal.webhooks")

const (
	TypePaymentSucceeded = "payment_intent.succeeded"
	TypePaymentFailed    = "payment_intent.payment_failed"
	TypePaymentCanceled  = "payment_intent.canceled"

	DefaultMaxRetries = 3
)

// PaymentApplier applies settled or failed payments inside the ingest
// transaction.
type PaymentApplier interface {
	ApplyPaymentSucceeded(ctx context.Context, tx store.Tx, intentID string, amount money.Cents) error
	ApplyPaymentFailed(ctx context.Context, tx store.Tx, intentID string) error
}

// Event is one inbound gateway delivery.
type Event struct {
	ID      string
	Type    string
	Payload json.RawMessage
}

// envelope is the gateway's JSON event shape.
type envelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object intentObject `json:"object"`
	} `json:"data"`
}

type intentObject struct {
	ID             string            `json:"id"`
	Amount         int64             `json:"amount"`
	AmountReceived int64             `json:"amount_received"`
	Status         string            `json:"status"`
	Metadata       map[string]string `json:"metadata"`
}

// ParseEvent decodes a raw gateway delivery.
func ParseEvent(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, apperr.Validation("invalid_payload", "webhook payload is not valid JSON")
	}
	if strings.TrimSpace(env.ID) == "" || strings.TrimSpace(env.Type) == "" {
		return Event{}, apperr.Validation("invalid_payload", "webhook payload requires id and type")
	}
	return Event{ID: env.ID, Type: env.Type, Payload: json.RawMessage(payload)}, nil
}

// Ingestor records gateway events and dispatches them. A delivery is recorded
// in its own transaction first, so a failing dispatch leaves a FAILED event
// behind rather than losing it.
type Ingestor struct {
	store      store.Store
	payments   PaymentApplier
	metrics    *metrics.MarketplaceMetrics
	logger     *logging.Logger
	maxRetries int
	now        func() time.Time
}

func NewIngestor(st store.Store, payments PaymentApplier, logger *logging.Logger) *Ingestor {
	if st == nil {
		panic("webhooks: store required")
	}
	if payments == nil {
		panic("webhooks: payment applier required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Ingestor{
		store:      st,
		payments:   payments,
		logger:     logger,
		maxRetries: DefaultMaxRetries,
		now:        time.Now,
	}
}

func (i *Ingestor) WithMaxRetries(n int) *Ingestor {
	if n > 0 {
		i.maxRetries = n
	}
	return i
}

func (i *Ingestor) WithMetrics(m *metrics.MarketplaceMetrics) *Ingestor {
	i.metrics = m
	return i
}

func (i *Ingestor) WithClock(now func() time.Time) *Ingestor {
	if now != nil {
		i.now = now
	}
	return i
}

// MaxRetries is the bound Retry enforces.
func (i *Ingestor) MaxRetries() int { return i.maxRetries }

// Ingest records evt and processes it unless the id was seen before, in which
// case the stored event is returned untouched. The returned error covers
// recording only; dispatch failures are reported through the event status.
func (i *Ingestor) Ingest(ctx context.Context, evt Event) (*domain.WebhookEvent, error) {
	ctx, span := tracer.Start(ctx, "webhooks.ingest")
	defer span.End()
	span.SetAttributes(
		attribute.String("marketplace.webhook_event_id", evt.ID),
		attribute.String("marketplace.webhook_type", evt.Type),
	)

	if strings.TrimSpace(evt.ID) == "" {
		return nil, apperr.Validation("missing_event_id", "webhook event id is required")
	}
	var (
		recorded *domain.WebhookEvent
		inserted bool
	)
	err := i.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		row := &domain.WebhookEvent{
			EventID: evt.ID,
			Type:    evt.Type,
			Payload: evt.Payload,
			Status:  domain.WebhookProcessing,
		}
		var err error
		inserted, err = tx.InsertWebhookEvent(ctx, row)
		if err != nil {
			return err
		}
		if !inserted {
			row, err = tx.GetWebhookEventForUpdate(ctx, evt.ID)
			if err != nil {
				return err
			}
		}
		recorded = row
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !inserted {
		i.logger.Info("duplicate webhook ignored", "event_id", evt.ID, "type", evt.Type, "status", recorded.Status)
		i.metrics.ObserveWebhook(evt.Type, "duplicate")
		return recorded, nil
	}
	return i.process(ctx, evt.ID)
}

// Retry re-dispatches a FAILED or stuck PROCESSING event.
func (i *Ingestor) Retry(ctx context.Context, eventID string) (*domain.WebhookEvent, error) {
	ctx, span := tracer.Start(ctx, "webhooks.retry")
	defer span.End()
	span.SetAttributes(attribute.String("marketplace.webhook_event_id", eventID))

	err := i.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		row, err := tx.GetWebhookEventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if row.Status == domain.WebhookCompleted {
			return apperr.InvalidState("webhook_completed", "webhook event %s already completed", eventID)
		}
		if row.RetryCount >= i.maxRetries {
			return apperr.MaxRetriesExceeded("max_retries_exceeded", "webhook event %s failed %d times", eventID, row.RetryCount)
		}
		row.Status = domain.WebhookProcessing
		return tx.UpdateWebhookEvent(ctx, row)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return i.process(ctx, eventID)
}

// process dispatches a PROCESSING event. Completion commits with the booking
// and ledger writes; a failure is recorded in a separate transaction.
func (i *Ingestor) process(ctx context.Context, eventID string) (*domain.WebhookEvent, error) {
	started := i.now()
	var (
		out     *domain.WebhookEvent
		evtType string
	)
	dispatchErr := i.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		row, err := tx.GetWebhookEventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		evtType = row.Type
		if row.Status != domain.WebhookProcessing {
			out = row
			return nil
		}
		if err := i.dispatch(ctx, tx, row); err != nil {
			return err
		}
		now := i.now().UTC()
		row.Status = domain.WebhookCompleted
		row.LastError = ""
		row.ProcessedAt = &now
		if err := tx.UpdateWebhookEvent(ctx, row); err != nil {
			return err
		}
		out = row
		return nil
	})
	i.metrics.ObserveWebhookLatency(evtType, i.now().Sub(started).Seconds())
	if dispatchErr == nil {
		i.metrics.ObserveWebhook(evtType, string(out.Status))
		return out, nil
	}
	if apperr.CodeOf(dispatchErr) == "webhook_event_not_found" {
		return nil, dispatchErr
	}

	i.logger.Error("webhook dispatch failed", "event_id", eventID, "type", evtType, "error", dispatchErr)
	i.metrics.ObserveWebhook(evtType, string(domain.WebhookFailed))
	ferr := i.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		row, err := tx.GetWebhookEventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		row.Status = domain.WebhookFailed
		row.RetryCount++
		row.LastError = dispatchErr.Error()
		if err := tx.UpdateWebhookEvent(ctx, row); err != nil {
			return err
		}
		out = row
		return nil
	})
	if ferr != nil {
		return nil, errors.Join(dispatchErr, fmt.Errorf("webhooks: record failure: %w", ferr))
	}
	return out, nil
}

func (i *Ingestor) dispatch(ctx context.Context, tx store.Tx, row *domain.WebhookEvent) error {
	var env envelope
	if err := json.Unmarshal(row.Payload, &env); err != nil {
		return apperr.Validation("invalid_payload", "decode webhook %s: %v", row.EventID, err)
	}
	intent := env.Data.Object

	switch {
	case row.Type == TypePaymentSucceeded:
		if intent.ID == "" {
			return apperr.Validation("missing_intent", "webhook %s has no payment intent id", row.EventID)
		}
		amount := intent.AmountReceived
		if amount == 0 {
			amount = intent.Amount
		}
		return i.payments.ApplyPaymentSucceeded(ctx, tx, intent.ID, money.Cents(amount))
	case row.Type == TypePaymentFailed, row.Type == TypePaymentCanceled:
		if intent.ID == "" {
			return apperr.Validation("missing_intent", "webhook %s has no payment intent id", row.EventID)
		}
		return i.payments.ApplyPaymentFailed(ctx, tx, intent.ID)
	case strings.HasPrefix(row.Type, "transfer."):
		// Withdrawals settle through CompleteWithdrawal; transfers are informational.
		i.logger.Info("transfer webhook received", "event_id", row.EventID, "type", row.Type, "transfer_id", intent.ID)
		return nil
	default:
		i.logger.Debug("ignoring webhook type", "event_id", row.EventID, "type", row.Type)
		return nil
	}
}

// Events lists recorded events for operators, newest first.
func (i *Ingestor) Events(ctx context.Context, status *domain.WebhookStatus, limit int) ([]domain.WebhookEvent, error) {
	var out []domain.WebhookEvent
	err := i.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.ListWebhookEvents(ctx, status, limit)
		return err
	})
	if out == nil {
		out = []domain.WebhookEvent{}
	}
	return out, err
}
