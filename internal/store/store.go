// Package store defines the transactional persistence contract shared by the
// scheduling and ledger components. Implementations live in subpackages.
//
// Every read applies the active-record predicate: soft-deleted rules and
// bookings are invisible unless a method says otherwise.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/pro-marketplace/internal/domain"
	"github.com/wolfman30/pro-marketplace/internal/events"
	"github.com/wolfman30/pro-marketplace/internal/timeslot"
)

// Store runs fn inside a single transaction. Any error returned by fn rolls
// back every write made through tx.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of operations available inside a transaction.
type Tx interface {
	Locker
	RuleRepository
	BookingRepository
	LedgerRepository
	WebhookRepository
	OutboxWriter
}

// Locker serializes work on one professional's time axis until the
// transaction ends.
type Locker interface {
	LockProfessional(ctx context.Context, professionalID uuid.UUID) error
}

type RuleRepository interface {
	InsertRule(ctx context.Context, rule *domain.AvailabilityRule) error
	UpdateRule(ctx context.Context, rule *domain.AvailabilityRule) error
	GetRule(ctx context.Context, id uuid.UUID) (*domain.AvailabilityRule, error)
	ListRules(ctx context.Context, professionalID uuid.UUID) ([]domain.AvailabilityRule, error)
	// AdjustRuleBookings adds delta to currentBookings, never going below zero.
	AdjustRuleBookings(ctx context.Context, ruleID uuid.UUID, delta int) error
}

// BookingFilter narrows ListBookings. Zero values mean "any".
type BookingFilter struct {
	ClientID       *uuid.UUID
	ProfessionalID *uuid.UUID
	Status         *domain.BookingStatus
	StartsAfter    *time.Time
	Limit          int
	Offset         int
}

type BookingRepository interface {
	// InsertBooking fails with a Conflict error when the idempotency key,
	// payment intent id or exact (professional, start, end) already exists.
	InsertBooking(ctx context.Context, b *domain.Booking) error
	UpdateBooking(ctx context.Context, b *domain.Booking) error
	GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	// GetBookingForUpdate locks the booking row for the rest of the transaction.
	GetBookingForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	GetBookingByIdempotencyKey(ctx context.Context, key string) (*domain.Booking, error)
	// GetBookingByPaymentIntent locks the booking row.
	GetBookingByPaymentIntent(ctx context.Context, intentID string) (*domain.Booking, error)
	// ListOverlapping returns bookings holding a slot that overlaps iv.
	ListOverlapping(ctx context.Context, professionalID uuid.UUID, iv timeslot.Interval, excludeID *uuid.UUID) ([]domain.Booking, error)
	ListBookings(ctx context.Context, filter BookingFilter) ([]domain.Booking, error)
}

type LedgerRepository interface {
	// EnsureAccount creates the professional's account if missing and returns it locked.
	EnsureAccount(ctx context.Context, professionalID uuid.UUID) (*domain.ServiceAccount, error)
	// GetAccount reads the account without locking it.
	GetAccount(ctx context.Context, professionalID uuid.UUID) (*domain.ServiceAccount, error)
	GetAccountForUpdate(ctx context.Context, professionalID uuid.UUID) (*domain.ServiceAccount, error)
	UpdateAccount(ctx context.Context, account *domain.ServiceAccount) error
	InsertTransaction(ctx context.Context, t *domain.AccountTransaction) error
	ListTransactionsForBookings(ctx context.Context, accountID uuid.UUID, bookingIDs []uuid.UUID) ([]domain.AccountTransaction, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.AccountTransaction, error)
	InsertWithdrawal(ctx context.Context, w *domain.WithdrawalRequest) error
	GetWithdrawalForUpdate(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error)
	UpdateWithdrawal(ctx context.Context, w *domain.WithdrawalRequest) error
	ListWithdrawals(ctx context.Context, accountID uuid.UUID, status *domain.WithdrawalStatus) ([]domain.WithdrawalRequest, error)
}

type WebhookRepository interface {
	// InsertWebhookEvent records the event unless its id exists; inserted
	// reports whether this call created the row.
	InsertWebhookEvent(ctx context.Context, e *domain.WebhookEvent) (inserted bool, err error)
	GetWebhookEventForUpdate(ctx context.Context, eventID string) (*domain.WebhookEvent, error)
	UpdateWebhookEvent(ctx context.Context, e *domain.WebhookEvent) error
	// ListRetryableWebhookEvents returns FAILED events under the retry bound
	// and PROCESSING events last touched before staleBefore.
	ListRetryableWebhookEvents(ctx context.Context, maxRetries int, staleBefore time.Time, limit int) ([]domain.WebhookEvent, error)
	ListWebhookEvents(ctx context.Context, status *domain.WebhookStatus, limit int) ([]domain.WebhookEvent, error)
}

// OutboxWriter appends envelopes that commit together with the transaction.
type OutboxWriter interface {
	InsertOutbox(ctx context.Context, env events.Envelope) error
}

// AppendEvent wraps evt in an envelope and writes it to the outbox.
func AppendEvent(ctx context.Context, w OutboxWriter, aggregate string, evt events.CanonicalEvent) error {
	env, err := events.NewEnvelope(aggregate, "", evt)
	if err != nil {
		return err
	}
	return w.InsertOutbox(ctx, env)
}
