package webhooks

import (
	"context"
	"time"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/internal/domain"
	"github.com/wolfman30/pro-marketplace/internal/store"
	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

// RetryWorker periodically retries FAILED events under the retry bound and
// PROCESSING events abandoned by a crashed process.
type RetryWorker struct {
	ingestor   *Ingestor
	store      store.Store
	logger     *logging.Logger
	interval   time.Duration
	staleAfter time.Duration
	batch      int
}

func NewRetryWorker(ingestor *Ingestor, st store.Store, logger *logging.Logger) *RetryWorker {
	if logger == nil {
		logger = logging.Default()
	}
	return &RetryWorker{
		ingestor:   ingestor,
		store:      st,
		logger:     logger,
		interval:   30 * time.Second,
		staleAfter: 5 * time.Minute,
		batch:      50,
	}
}

func (w *RetryWorker) WithInterval(d time.Duration) *RetryWorker {
	if d > 0 {
		w.interval = d
	}
	return w
}

func (w *RetryWorker) WithStaleAfter(d time.Duration) *RetryWorker {
	if d > 0 {
		w.staleAfter = d
	}
	return w
}

func (w *RetryWorker) WithBatchSize(n int) *RetryWorker {
	if n > 0 {
		w.batch = n
	}
	return w
}

func (w *RetryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.Drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain retries one batch and returns how many events completed.
func (w *RetryWorker) Drain(ctx context.Context) int {
	if w.ingestor == nil || w.store == nil {
		return 0
	}
	var pending []domain.WebhookEvent
	err := w.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		pending, err = tx.ListRetryableWebhookEvents(ctx, w.ingestor.MaxRetries(), w.ingestor.now().Add(-w.staleAfter), w.batch)
		return err
	})
	if err != nil {
		w.logger.Error("webhook retry fetch failed", "error", err)
		return 0
	}
	completed := 0
	for _, evt := range pending {
		if ctx.Err() != nil {
			return completed
		}
		out, err := w.ingestor.Retry(ctx, evt.EventID)
		switch {
		case apperr.KindOf(err) == apperr.KindMaxRetriesExceeded:
			w.logger.Warn("webhook event exhausted retries", "event_id", evt.EventID, "retry_count", evt.RetryCount)
		case err != nil:
			w.logger.Warn("webhook retry failed", "event_id", evt.EventID, "error", err)
		case out.Status == domain.WebhookCompleted:
			completed++
		}
	}
	if len(pending) > 0 {
		w.logger.Info("webhook retry pass", "candidates", len(pending), "completed", completed)
	}
	return completed
}
