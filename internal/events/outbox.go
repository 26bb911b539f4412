package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/pro-marketplace/internal/observability/metrics"
	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

// OutboxSource reads committed envelopes awaiting delivery.
type OutboxSource interface {
	FetchPending(ctx context.Context, limit int32) ([]Envelope, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)
}

// DeliveryHandler emits events to downstream transports.
type DeliveryHandler interface {
	Handle(ctx context.Context, env Envelope) error
}

// HandlerFunc adapts a function to DeliveryHandler.
type HandlerFunc func(ctx context.Context, env Envelope) error

func (f HandlerFunc) Handle(ctx context.Context, env Envelope) error { return f(ctx, env) }

// Deliverer polls the outbox and invokes the handler. Failed deliveries stay
// pending and are retried on the next tick.
type Deliverer struct {
	source    OutboxSource
	handler   DeliveryHandler
	logger    *logging.Logger
	metrics   *metrics.MarketplaceMetrics
	batchSize int32
	interval  time.Duration
}

func NewDeliverer(source OutboxSource, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		source:    source,
		handler:   handler,
		logger:    logger,
		batchSize: 25,
		interval:  2 * time.Second,
	}
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

func (d *Deliverer) WithMetrics(m *metrics.MarketplaceMetrics) *Deliverer {
	d.metrics = m
	return d
}

func (d *Deliverer) Start(ctx context.Context) {
	if d.source == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// Drain delivers one batch and returns how many envelopes were delivered.
func (d *Deliverer) Drain(ctx context.Context) int {
	entries, err := d.source.FetchPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return 0
	}
	delivered := 0
	for _, entry := range entries {
		if err := d.handler.Handle(ctx, entry); err != nil {
			d.logger.Error("outbox delivery failed", "error", err, "event_id", entry.EventID, "type", entry.EventType)
			d.metrics.ObserveOutboxDelivery(entry.EventType, "failed")
			continue
		}
		if ok, err := d.source.MarkDelivered(ctx, entry.EventID); err != nil {
			d.logger.Error("failed to mark outbox delivered", "error", err, "event_id", entry.EventID)
		} else if ok {
			delivered++
			d.metrics.ObserveOutboxDelivery(entry.EventType, "delivered")
			d.logger.Debug("outbox delivered", "event_id", entry.EventID, "type", entry.EventType)
		}
	}
	return delivered
}

// MultiHandler fans an envelope out to every handler and fails if any fails.
type MultiHandler []DeliveryHandler

func (m MultiHandler) Handle(ctx context.Context, env Envelope) error {
	var firstErr error
	for _, h := range m {
		if h == nil {
			continue
		}
		if err := h.Handle(ctx, env); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
