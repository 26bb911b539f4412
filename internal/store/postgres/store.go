// Package postgres implements store.Store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/internal/events"
	"github.com/wolfman30/pro-marketplace/internal/store"
)

// querier is the statement surface shared by pools and transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type beginner interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store persists marketplace state in PostgreSQL.
type Store struct {
	db beginner
}

var (
	_ store.Store         = (*Store)(nil)
	_ events.OutboxSource = (*Store)(nil)
)

func New(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("postgres: pgx pool required")
	}
	return &Store{db: pool}
}

func newWithDB(db beginner) *Store {
	if db == nil {
		panic("postgres: db required")
	}
	return &Store{db: db}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) (err error) {
	pgTx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = pgTx.Rollback(ctx)
		}
	}()

	if err = fn(ctx, &tx{q: pgTx}); err != nil {
		return err
	}
	if err = pgTx.Commit(ctx); err != nil {
		return mapError(fmt.Errorf("postgres: commit: %w", err))
	}
	return nil
}

type tx struct {
	q querier
}

// LockProfessional takes a transaction scoped advisory lock on the
// professional's time axis.
func (t *tx) LockProfessional(ctx context.Context, professionalID uuid.UUID) error {
	const query = `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`
	if _, err := t.q.Exec(ctx, query, professionalID.String()); err != nil {
		return fmt.Errorf("postgres: lock professional: %w", err)
	}
	return nil
}

const (
	codeUniqueViolation      = "23505"
	codeExclusionViolation   = "23P01"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

var constraintCodes = map[string]string{
	"uq_bookings_idempotency_key":          "duplicate_idempotency_key",
	"uq_bookings_payment_intent":           "duplicate_payment_intent",
	"uq_bookings_professional_slot":        "booking_conflict",
	"ex_bookings_professional_overlap":     "booking_conflict",
	"service_accounts_professional_id_key": "duplicate_account",
}

// mapError converts constraint and concurrency failures into Conflict errors.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation, codeExclusionViolation:
		code, ok := constraintCodes[pgErr.ConstraintName]
		if !ok {
			code = "duplicate"
		}
		return &apperr.Error{Kind: apperr.KindConflict, Code: code, Message: "conflicting record exists", Err: err}
	case codeSerializationFailure, codeDeadlockDetected:
		return &apperr.Error{Kind: apperr.KindConflict, Code: "concurrent_update", Message: "concurrent update, retry the request", Err: err}
	}
	return err
}

func notFound(err error, code, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(code, format, args...)
	}
	return err
}
