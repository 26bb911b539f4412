package bookings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/internal/domain"
	"github.com/wolfman30/pro-marketplace/internal/events"
	"github.com/wolfman30/pro-marketplace/internal/gateway"
	"github.com/wolfman30/pro-marketplace/internal/ledger"
	"github.com/wolfman30/pro-marketplace/internal/money"
	"github.com/wolfman30/pro-marketplace/internal/store"
)

// PaymentIntent is what a client needs to complete payment for a booking.
type PaymentIntent struct {
	BookingID    uuid.UUID   `json:"bookingId"`
	IntentID     string      `json:"paymentIntentId"`
	ClientSecret string      `json:"clientSecret,omitempty"`
	Amount       money.Cents `json:"amountCents"`
	Status       string      `json:"status"`
}

func (s *Service) requireGateway() error {
	if s.gateway == nil {
		return apperr.InvalidState("gateway_unavailable", "payments are not configured")
	}
	return nil
}

// CreatePaymentIntent opens a gateway intent for the booking total. Repeating
// the call reuses the processor's idempotency key until a payment fails.
func (s *Service) CreatePaymentIntent(ctx context.Context, actor domain.Actor, id uuid.UUID) (*PaymentIntent, error) {
	ctx, span := tracer.Start(ctx, "bookings.create_payment_intent")
	defer span.End()
	span.SetAttributes(attribute.String("marketplace.booking_id", id.String()))

	if err := s.requireGateway(); err != nil {
		return nil, err
	}
	b, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleClient || actor.ID != b.ClientID {
		return nil, apperr.Forbidden("client_only", "only the booking's client can pay for it")
	}
	if err := payable(b); err != nil {
		return nil, err
	}

	key := "booking:" + b.ID.String()
	if b.PaymentStatus == domain.PaymentFailed {
		key += ":" + uuid.NewString()
	}
	intent, err := s.gateway.CreatePaymentIntent(ctx, gateway.IntentRequest{
		Amount:      b.Price.Total,
		Currency:    s.currency,
		Description: fmt.Sprintf("Booking %s", b.ID),
		Metadata: map[string]string{
			"booking_id":      b.ID.String(),
			"client_id":       b.ClientID.String(),
			"professional_id": b.ProfessionalID.String(),
		},
		IdempotencyKey: key,
	})
	if err != nil {
		span.RecordError(err)
		s.observe("payment_intent", err)
		return nil, err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		current, err := tx.GetBookingForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := payable(current); err != nil {
			return err
		}
		intentID := intent.ID
		current.PaymentIntentID = &intentID
		current.PaymentStatus = domain.PaymentPending
		return tx.UpdateBooking(ctx, current)
	})
	s.observe("payment_intent", err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.Info("payment intent created", "booking_id", b.ID, "intent_id", intent.ID, "amount_cents", int64(b.Price.Total))
	return &PaymentIntent{
		BookingID:    b.ID,
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       b.Price.Total,
		Status:       intent.Status,
	}, nil
}

func payable(b *domain.Booking) error {
	if b.Status != domain.BookingPending && b.Status != domain.BookingConfirmed {
		return apperr.InvalidState("booking_not_payable", "a %s booking cannot be paid", b.Status)
	}
	switch b.PaymentStatus {
	case domain.PaymentPending, domain.PaymentFailed:
		return nil
	}
	return apperr.InvalidState("already_paid", "booking payment is %s", b.PaymentStatus)
}

// ConfirmPayment asks the gateway to confirm the booking's open intent. The
// booking itself changes only when the gateway's webhook arrives.
func (s *Service) ConfirmPayment(ctx context.Context, actor domain.Actor, id uuid.UUID) (*PaymentIntent, error) {
	if err := s.requireGateway(); err != nil {
		return nil, err
	}
	b, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleClient || actor.ID != b.ClientID {
		return nil, apperr.Forbidden("client_only", "only the booking's client can confirm payment")
	}
	if b.PaymentIntentID == nil {
		return nil, apperr.InvalidState("payment_intent_missing", "booking has no payment intent")
	}
	if b.PaymentStatus != domain.PaymentPending {
		return nil, apperr.InvalidState("already_paid", "booking payment is %s", b.PaymentStatus)
	}
	intent, err := s.gateway.Confirm(ctx, *b.PaymentIntentID)
	s.observe("payment_confirm", err)
	if err != nil {
		return nil, err
	}
	return &PaymentIntent{BookingID: b.ID, IntentID: intent.ID, Amount: b.Price.Total, Status: intent.Status}, nil
}

// Refund returns part or all of a settled payment. A nil amount refunds
// whatever remains. Amounts are in the professional's gross terms; the
// gateway-side refund is driven by the refund_required event.
func (s *Service) Refund(ctx context.Context, actor domain.Actor, id uuid.UUID, amount *money.Cents, reason string) (*domain.Booking, error) {
	ctx, span := tracer.Start(ctx, "bookings.refund")
	defer span.End()
	span.SetAttributes(attribute.String("marketplace.booking_id", id.String()))

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "refund requested"
	}
	var out *domain.Booking
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.GetBookingForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !actor.IsPrivileged() && (actor.Role != domain.RoleProfessional || actor.ID != b.ProfessionalID) {
			return apperr.Forbidden("refund_not_allowed", "only the professional or an administrator can refund")
		}
		if !b.PaymentStatus.Settled() {
			return apperr.InvalidState("payment_not_settled", "booking payment is %s", b.PaymentStatus)
		}
		var refund *ledger.Refund
		if amount == nil {
			refund, err = s.ledger.RefundRemaining(ctx, tx, b, reason)
		} else {
			refund, err = s.ledger.RecordRefund(ctx, tx, b, *amount, reason)
		}
		if err != nil {
			return err
		}
		if refund == nil {
			return apperr.InvalidState("nothing_to_refund", "booking has nothing left to refund")
		}
		b.PaymentStatus = domain.PaymentPartiallyRefunded
		if refund.Remaining == 0 {
			b.PaymentStatus = domain.PaymentFullyRefunded
		}
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		if err := store.AppendEvent(ctx, tx, aggregate(b), refundRequired(b, refund.Transaction.GrossAmount, reason, s.now())); err != nil {
			return err
		}
		out = b
		return nil
	})
	s.observe("refund", err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return out, nil
}

// ApplyPaymentSucceeded settles the booking paid through intentID. It runs
// inside the caller's transaction so the webhook record and the ledger rows
// commit together. Repeated deliveries are no-ops.
func (s *Service) ApplyPaymentSucceeded(ctx context.Context, tx store.Tx, intentID string, amount money.Cents) error {
	b, err := tx.GetBookingByPaymentIntent(ctx, intentID)
	if err != nil {
		return err
	}
	if amount != 0 && amount != b.Price.Total {
		return apperr.Validation("amount_mismatch", "intent %s paid %s, booking total is %s", intentID, amount, b.Price.Total)
	}
	switch b.PaymentStatus {
	case domain.PaymentPaid, domain.PaymentPartiallyRefunded, domain.PaymentFullyRefunded:
		s.logger.Info("payment already applied", "booking_id", b.ID, "intent_id", intentID)
		return nil
	}

	if _, err := s.ledger.RecordPayment(ctx, tx, b); err != nil {
		return err
	}
	b.PaymentStatus = domain.PaymentPaid
	now := s.now().UTC()

	var evt events.CanonicalEvent
	switch b.Status {
	case domain.BookingPending:
		b.Status = domain.BookingConfirmed
		evt = events.BookingConfirmedV1{BookingSnapshot: snapshot(b), ConfirmedAt: now}
	case domain.BookingCancelled:
		// Paid after cancellation: the money goes straight back.
		if _, err := s.ledger.RefundRemaining(ctx, tx, b, "payment received for cancelled booking"); err != nil {
			return err
		}
		b.PaymentStatus = domain.PaymentFullyRefunded
		evt = refundRequired(b, b.Price.Total, "payment received for cancelled booking", now)
	}
	if err := tx.UpdateBooking(ctx, b); err != nil {
		return err
	}
	if evt != nil {
		if err := store.AppendEvent(ctx, tx, aggregate(b), evt); err != nil {
			return err
		}
	}
	s.metrics.ObserveBooking("payment_succeeded", string(b.Status))
	s.logger.Info("payment applied", "booking_id", b.ID, "intent_id", intentID, "status", b.Status, "payment_status", b.PaymentStatus)
	return nil
}

// ApplyPaymentFailed marks a pending payment failed so the client can retry.
func (s *Service) ApplyPaymentFailed(ctx context.Context, tx store.Tx, intentID string) error {
	b, err := tx.GetBookingByPaymentIntent(ctx, intentID)
	if err != nil {
		return err
	}
	if b.PaymentStatus != domain.PaymentPending {
		s.logger.Info("ignoring payment failure", "booking_id", b.ID, "intent_id", intentID, "payment_status", b.PaymentStatus)
		return nil
	}
	b.PaymentStatus = domain.PaymentFailed
	if err := tx.UpdateBooking(ctx, b); err != nil {
		return err
	}
	s.metrics.ObserveBooking("payment_failed", string(b.Status))
	s.logger.Warn("payment failed", "booking_id", b.ID, "intent_id", intentID)
	return nil
}

func refundRequired(b *domain.Booking, amount money.Cents, reason string, at time.Time) events.RefundRequiredV1 {
	evt := events.RefundRequiredV1{
		BookingSnapshot: snapshot(b),
		AmountCents:     int64(amount),
		Reason:          reason,
		OccurredAt:      at.UTC(),
	}
	if b.PaymentIntentID != nil {
		evt.PaymentIntentID = *b.PaymentIntentID
	}
	return evt
}
