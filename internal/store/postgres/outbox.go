package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/pro-marketplace/internal/events"
)

// InsertOutbox writes the envelope inside the caller's transaction.
func (t *tx) InsertOutbox(ctx context.Context, env events.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("postgres: marshal envelope: %w", err)
	}
	query := `
		INSERT INTO outbox (id, aggregate, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := t.q.Exec(ctx, query, env.EventID, env.Aggregate, env.EventType, data, env.OccurredAt()); err != nil {
		return fmt.Errorf("postgres: insert outbox: %w", err)
	}
	return nil
}

func (s *Store) FetchPending(ctx context.Context, limit int32) ([]events.Envelope, error) {
	query := `
		SELECT id, payload
		FROM outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch pending: %w", err)
	}
	defer rows.Close()

	var entries []events.Envelope
	for rows.Next() {
		var (
			id      uuid.UUID
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("postgres: scan outbox: %w", err)
		}
		var env events.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return nil, fmt.Errorf("postgres: decode outbox %s: %w", id, err)
		}
		env.EventID = id
		entries = append(entries, env)
	}
	return entries, rows.Err()
}

func (s *Store) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE outbox
		SET delivered_at = $2
		WHERE id = $1 AND delivered_at IS NULL
	`
	ct, err := s.db.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("postgres: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}
