// Package ledger maintains each professional's gross and net balances, the
// immutable transaction journal and withdrawal requests.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/internal/domain"
	"github.com/wolfman30/pro-marketplace/internal/money"
	"github.com/wolfman30/pro-marketplace/internal/observability/metrics"
	"github.com/wolfman30/pro-marketplace/internal/pricing"
	"github.com/wolfman30/pro-marketplace/internal/store"
	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

var tracer = otel.Tracer("marketplace.internal.ledger")

// ConfigSource supplies the pricing snapshot used for withdrawals.
type ConfigSource interface {
	Snapshot() pricing.Config
}

// Ledger applies balance mutations. Payment and refund recording run inside
// the caller's transaction; withdrawals open their own.
type Ledger struct {
	store   store.Store
	pricing ConfigSource
	metrics *metrics.MarketplaceMetrics
	logger  *logging.Logger
	now     func() time.Time
}

func New(st store.Store, cfg ConfigSource, m *metrics.MarketplaceMetrics, logger *logging.Logger) *Ledger {
	if st == nil {
		panic("ledger: store required")
	}
	if cfg == nil {
		panic("ledger: pricing config source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Ledger{store: st, pricing: cfg, metrics: m, logger: logger, now: time.Now}
}

func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	if now != nil {
		l.now = now
	}
	return l
}

// effect is the signed change a completed row applies to (gross, net).
func effect(row *domain.AccountTransaction) domain.Balances {
	switch row.Type {
	case domain.TxWithdrawal:
		return domain.Balances{Net: -row.NetAmount}
	case domain.TxRefund, domain.TxFee:
		return domain.Balances{Gross: -row.GrossAmount, Net: -row.NetAmount}
	default:
		return domain.Balances{Gross: row.GrossAmount, Net: row.NetAmount}
	}
}

// apply moves the account by the row's effect, snapshots before/after and
// persists both. Any breach of the balance invariants aborts the transaction.
func (l *Ledger) apply(ctx context.Context, tx store.LedgerRepository, acc *domain.ServiceAccount, row *domain.AccountTransaction) error {
	row.AccountID = acc.ID
	row.Status = domain.TxCompleted
	if row.GrossAmount < 0 || row.NetAmount < 0 || row.PlatformFee < 0 {
		return l.invariant(acc, row, "transaction amounts must not be negative")
	}
	row.Before = domain.Balances{Gross: acc.GrossBalance, Net: acc.NetBalance}
	delta := effect(row)
	row.After = domain.Balances{Gross: row.Before.Gross + delta.Gross, Net: row.Before.Net + delta.Net}

	if row.After.Net < 0 {
		return l.invariant(acc, row, "net balance would become negative")
	}
	if row.After.Gross < 0 {
		return l.invariant(acc, row, "gross balance would become negative")
	}

	acc.GrossBalance = row.After.Gross
	acc.NetBalance = row.After.Net
	if err := tx.InsertTransaction(ctx, row); err != nil {
		return err
	}
	if err := tx.UpdateAccount(ctx, acc); err != nil {
		return err
	}
	l.metrics.ObserveLedger(string(row.Type), int64(row.GrossAmount))
	return nil
}

func (l *Ledger) invariant(acc *domain.ServiceAccount, row *domain.AccountTransaction, msg string) error {
	l.logger.Fatal("ledger invariant violated",
		"reason", msg,
		"account_id", acc.ID,
		"professional_id", acc.ProfessionalID,
		"type", row.Type,
		"gross_amount_cents", int64(row.GrossAmount),
		"net_amount_cents", int64(row.NetAmount),
		"gross_before_cents", int64(row.Before.Gross),
		"net_before_cents", int64(row.Before.Net),
	)
	return apperr.LedgerInvariantViolation("ledger_invariant_violation", "%s", msg)
}

// lineage returns the booking id followed by every booking it was rescheduled from.
func lineage(ctx context.Context, tx store.BookingRepository, b *domain.Booking) ([]uuid.UUID, error) {
	ids := []uuid.UUID{b.ID}
	seen := map[uuid.UUID]bool{b.ID: true}
	for prev := b.RescheduledFrom; prev != nil && !seen[*prev]; {
		seen[*prev] = true
		ids = append(ids, *prev)
		older, err := tx.GetBooking(ctx, *prev)
		if err != nil {
			return nil, fmt.Errorf("ledger: load rescheduled booking %s: %w", *prev, err)
		}
		prev = older.RescheduledFrom
	}
	return ids, nil
}

// PaymentState summarizes the ledger rows attached to a booking lineage.
type PaymentState struct {
	Payment       *domain.AccountTransaction
	RefundedGross money.Cents
	RefundedNet   money.Cents
}

// Remaining is the gross amount still refundable.
func (p PaymentState) Remaining() money.Cents {
	if p.Payment == nil {
		return 0
	}
	return p.Payment.GrossAmount - p.RefundedGross
}

func paymentState(ctx context.Context, tx store.Tx, accountID uuid.UUID, b *domain.Booking) (PaymentState, error) {
	ids, err := lineage(ctx, tx, b)
	if err != nil {
		return PaymentState{}, err
	}
	rows, err := tx.ListTransactionsForBookings(ctx, accountID, ids)
	if err != nil {
		return PaymentState{}, err
	}
	var state PaymentState
	for i := range rows {
		row := rows[i]
		if row.Status != domain.TxCompleted {
			continue
		}
		switch row.Type {
		case domain.TxPayment:
			if state.Payment == nil {
				state.Payment = &row
			}
		case domain.TxRefund:
			state.RefundedGross += row.GrossAmount
			state.RefundedNet += row.NetAmount
		}
	}
	return state, nil
}

// RecordPayment credits the professional for a settled booking. The platform
// fee uses the rate snapshotted on the booking. Recording the same booking
// twice returns the original row without moving funds.
func (l *Ledger) RecordPayment(ctx context.Context, tx store.Tx, b *domain.Booking) (*domain.AccountTransaction, error) {
	ctx, span := tracer.Start(ctx, "ledger.record_payment")
	defer span.End()
	span.SetAttributes(attribute.String("marketplace.booking_id", b.ID.String()))

	acc, err := tx.EnsureAccount(ctx, b.ProfessionalID)
	if err != nil {
		return nil, err
	}
	state, err := paymentState(ctx, tx, acc.ID, b)
	if err != nil {
		return nil, err
	}
	if state.Payment != nil {
		l.logger.Info("payment already recorded", "booking_id", b.ID, "transaction_id", state.Payment.ID)
		return state.Payment, nil
	}

	gross := b.Price.Gross()
	if gross <= 0 {
		return nil, apperr.Validation("invalid_payment_amount", "booking %s has no payable amount", b.ID)
	}
	fee := money.ApplyBps(gross, b.Price.PlatformFeeBps)
	bookingID := b.ID
	row := &domain.AccountTransaction{
		Type:            domain.TxPayment,
		GrossAmount:     gross,
		NetAmount:       gross - fee,
		PlatformFee:     fee,
		BookingID:       &bookingID,
		PaymentIntentID: b.PaymentIntentID,
		Description:     fmt.Sprintf("Payment for booking %s", b.ID),
	}
	if err := l.apply(ctx, tx, acc, row); err != nil {
		return nil, err
	}
	l.logger.Info("payment recorded",
		"booking_id", b.ID,
		"professional_id", b.ProfessionalID,
		"gross_cents", int64(row.GrossAmount),
		"net_cents", int64(row.NetAmount),
		"platform_fee_cents", int64(row.PlatformFee),
	)
	return row, nil
}

// Refund is the outcome of RecordRefund.
type Refund struct {
	Transaction *domain.AccountTransaction
	Remaining   money.Cents
}

// RecordRefund debits a refund against the booking's payment. The net share is
// proportional to the payment's net/gross ratio; the refund that empties the
// payment takes the exact remainder so rounding never leaks.
func (l *Ledger) RecordRefund(ctx context.Context, tx store.Tx, b *domain.Booking, amount money.Cents, reason string) (*Refund, error) {
	ctx, span := tracer.Start(ctx, "ledger.record_refund")
	defer span.End()
	span.SetAttributes(
		attribute.String("marketplace.booking_id", b.ID.String()),
		attribute.Int64("marketplace.amount_cents", int64(amount)),
	)

	if amount <= 0 {
		return nil, apperr.Validation("invalid_refund_amount", "refund amount must be positive")
	}
	acc, err := tx.GetAccountForUpdate(ctx, b.ProfessionalID)
	if err != nil {
		return nil, err
	}
	state, err := paymentState(ctx, tx, acc.ID, b)
	if err != nil {
		return nil, err
	}
	if state.Payment == nil {
		return nil, apperr.InvalidState("payment_not_recorded", "booking %s has no completed payment to refund", b.ID)
	}
	remaining := state.Remaining()
	if amount > remaining {
		return nil, apperr.Validation("refund_exceeds_payment", "refund %s exceeds refundable amount %s", amount, remaining)
	}

	net := money.Prorate(amount, int64(state.Payment.NetAmount), int64(state.Payment.GrossAmount))
	if amount == remaining {
		net = state.Payment.NetAmount - state.RefundedNet
	}
	bookingID := b.ID
	row := &domain.AccountTransaction{
		Type:            domain.TxRefund,
		GrossAmount:     amount,
		NetAmount:       net,
		PlatformFee:     amount - net,
		BookingID:       &bookingID,
		PaymentIntentID: state.Payment.PaymentIntentID,
		Description:     fmt.Sprintf("Refund for booking %s: %s", b.ID, reason),
	}
	if err := l.apply(ctx, tx, acc, row); err != nil {
		return nil, err
	}
	l.logger.Info("refund recorded",
		"booking_id", b.ID,
		"gross_cents", int64(row.GrossAmount),
		"net_cents", int64(row.NetAmount),
		"reason", reason,
	)
	return &Refund{Transaction: row, Remaining: remaining - amount}, nil
}

// RefundRemaining reverses whatever is still refundable on the booking. It is
// a no-op when nothing was paid or everything is already refunded.
func (l *Ledger) RefundRemaining(ctx context.Context, tx store.Tx, b *domain.Booking, reason string) (*Refund, error) {
	acc, err := tx.GetAccountForUpdate(ctx, b.ProfessionalID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	state, err := paymentState(ctx, tx, acc.ID, b)
	if err != nil {
		return nil, err
	}
	if state.Remaining() <= 0 {
		return nil, nil
	}
	return l.RecordRefund(ctx, tx, b, state.Remaining(), reason)
}
