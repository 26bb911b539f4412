package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/pro-marketplace/internal/domain"
)

const webhookColumns = `event_id, type, payload, status, retry_count, last_error, processed_at, created_at, updated_at`

func scanWebhook(row pgx.Row) (*domain.WebhookEvent, error) {
	var (
		e       domain.WebhookEvent
		payload []byte
		status  string
	)
	if err := row.Scan(&e.EventID, &e.Type, &payload, &status, &e.RetryCount, &e.LastError, &e.ProcessedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Payload = append([]byte(nil), payload...)
	e.Status = domain.WebhookStatus(status)
	return &e, nil
}

func collectWebhooks(rows pgx.Rows) ([]domain.WebhookEvent, error) {
	defer rows.Close()
	var out []domain.WebhookEvent
	for rows.Next() {
		e, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan webhook event: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// InsertWebhookEvent relies on the event_id primary key for insert-or-no-op.
func (t *tx) InsertWebhookEvent(ctx context.Context, e *domain.WebhookEvent) (bool, error) {
	query := `
		INSERT INTO webhook_events (event_id, type, payload, status, retry_count, last_error)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING
	`
	ct, err := t.q.Exec(ctx, query, e.EventID, e.Type, []byte(e.Payload), string(e.Status), e.RetryCount, e.LastError)
	if err != nil {
		return false, fmt.Errorf("postgres: insert webhook event: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (t *tx) GetWebhookEventForUpdate(ctx context.Context, eventID string) (*domain.WebhookEvent, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhook_events WHERE event_id = $1 FOR UPDATE`
	e, err := scanWebhook(t.q.QueryRow(ctx, query, eventID))
	if err != nil {
		return nil, notFound(err, "webhook_event_not_found", "webhook event %s not found", eventID)
	}
	return e, nil
}

func (t *tx) UpdateWebhookEvent(ctx context.Context, e *domain.WebhookEvent) error {
	query := `
		UPDATE webhook_events
		SET status = $2, retry_count = $3, last_error = $4, processed_at = $5, updated_at = now()
		WHERE event_id = $1
		RETURNING updated_at
	`
	err := t.q.QueryRow(ctx, query, e.EventID, string(e.Status), e.RetryCount, e.LastError, e.ProcessedAt).Scan(&e.UpdatedAt)
	if err != nil {
		return notFound(err, "webhook_event_not_found", "webhook event %s not found", e.EventID)
	}
	return nil
}

func (t *tx) ListRetryableWebhookEvents(ctx context.Context, maxRetries int, staleBefore time.Time, limit int) ([]domain.WebhookEvent, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhook_events
		WHERE (status = 'failed' AND retry_count < $1)
		   OR (status = 'processing' AND updated_at < $2)
		ORDER BY created_at
		LIMIT $3
		FOR UPDATE SKIP LOCKED`
	rows, err := t.q.Query(ctx, query, maxRetries, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list retryable webhook events: %w", err)
	}
	return collectWebhooks(rows)
}

func (t *tx) ListWebhookEvents(ctx context.Context, status *domain.WebhookStatus, limit int) ([]domain.WebhookEvent, error) {
	var statusArg *string
	if status != nil {
		s := string(*status)
		statusArg = &s
	}
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + webhookColumns + ` FROM webhook_events
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := t.q.Query(ctx, query, statusArg, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list webhook events: %w", err)
	}
	return collectWebhooks(rows)
}
