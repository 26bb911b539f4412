package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/pro-marketplace/internal/domain"
	"github.com/wolfman30/pro-marketplace/internal/money"
	"github.com/wolfman30/pro-marketplace/internal/store"
	"github.com/wolfman30/pro-marketplace/internal/timeslot"
)

// holdsSlot matches bookings that occupy their interval.
const holdsSlot = `status NOT IN ('cancelled', 'rescheduled')`

const bookingColumns = `id, client_id, professional_id, service_id, availability_rule_id,
	start_time, end_time, service_price_cents, travel_fee_cents, platform_fee_cents,
	discount_cents, total_price_cents, platform_fee_bps, status, payment_status, booking_type,
	idempotency_key, payment_intent_id, location, client_notes, professional_notes,
	cancellation_reason, cancelled_by, cancelled_at, completed_at, rescheduled_from,
	rescheduled_to, rescheduled_at, rescheduled_by, rating, review, reviewed_at,
	created_at, updated_at, deleted_at`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b                                      domain.Booking
		servicePrice, travelFee, fee, discount int64
		total                                  int64
		status, paymentStatus, bookingType     string
		location                               []byte
	)
	if err := row.Scan(
		&b.ID, &b.ClientID, &b.ProfessionalID, &b.ServiceID, &b.RuleID,
		&b.StartTime, &b.EndTime, &servicePrice, &travelFee, &fee,
		&discount, &total, &b.Price.PlatformFeeBps, &status, &paymentStatus, &bookingType,
		&b.IdempotencyKey, &b.PaymentIntentID, &location, &b.ClientNotes, &b.ProfessionalNotes,
		&b.CancellationNote, &b.CancelledBy, &b.CancelledAt, &b.CompletedAt, &b.RescheduledFrom,
		&b.RescheduledTo, &b.RescheduledAt, &b.RescheduledBy, &b.Rating, &b.Review, &b.ReviewedAt,
		&b.CreatedAt, &b.UpdatedAt, &b.DeletedAt,
	); err != nil {
		return nil, err
	}
	b.Price.ServicePrice = money.Cents(servicePrice)
	b.Price.TravelFee = money.Cents(travelFee)
	b.Price.PlatformFee = money.Cents(fee)
	b.Price.Discount = money.Cents(discount)
	b.Price.Total = money.Cents(total)
	b.Status = domain.BookingStatus(status)
	b.PaymentStatus = domain.PaymentStatus(paymentStatus)
	b.BookingType = domain.BookingType(bookingType)
	if len(location) > 0 {
		var loc domain.Location
		if err := json.Unmarshal(location, &loc); err != nil {
			return nil, fmt.Errorf("postgres: decode booking location: %w", err)
		}
		b.Location = &loc
	}
	return &b, nil
}

func collectBookings(rows pgx.Rows) ([]domain.Booking, error) {
	defer rows.Close()
	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan booking: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func locationArg(loc *domain.Location) ([]byte, error) {
	if loc == nil {
		return nil, nil
	}
	data, err := json.Marshal(loc)
	if err != nil {
		return nil, fmt.Errorf("postgres: encode booking location: %w", err)
	}
	return data, nil
}

func (t *tx) InsertBooking(ctx context.Context, b *domain.Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	location, err := locationArg(b.Location)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO bookings (
			id, client_id, professional_id, service_id, availability_rule_id,
			start_time, end_time, service_price_cents, travel_fee_cents, platform_fee_cents,
			discount_cents, total_price_cents, platform_fee_bps, status, payment_status, booking_type,
			idempotency_key, payment_intent_id, location, client_notes, rescheduled_from, rescheduled_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		RETURNING created_at, updated_at
	`
	err = t.q.QueryRow(ctx, query,
		b.ID, b.ClientID, b.ProfessionalID, b.ServiceID, b.RuleID,
		b.StartTime, b.EndTime, int64(b.Price.ServicePrice), int64(b.Price.TravelFee), int64(b.Price.PlatformFee),
		int64(b.Price.Discount), int64(b.Price.Total), b.Price.PlatformFeeBps, string(b.Status), string(b.PaymentStatus), string(b.BookingType),
		b.IdempotencyKey, b.PaymentIntentID, location, b.ClientNotes, b.RescheduledFrom, b.RescheduledBy,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return mapError(fmt.Errorf("postgres: insert booking: %w", err))
	}
	return nil
}

func (t *tx) UpdateBooking(ctx context.Context, b *domain.Booking) error {
	query := `
		UPDATE bookings SET
			status = $2, payment_status = $3, payment_intent_id = $4, professional_notes = $5,
			cancellation_reason = $6, cancelled_by = $7, cancelled_at = $8, completed_at = $9,
			rescheduled_to = $10, rescheduled_at = $11, rescheduled_by = $12,
			rating = $13, review = $14, reviewed_at = $15, client_notes = $16, deleted_at = $17,
			updated_at = now()
		WHERE id = $1 AND ` + live + `
		RETURNING updated_at
	`
	err := t.q.QueryRow(ctx, query,
		b.ID, string(b.Status), string(b.PaymentStatus), b.PaymentIntentID, b.ProfessionalNotes,
		b.CancellationNote, b.CancelledBy, b.CancelledAt, b.CompletedAt,
		b.RescheduledTo, b.RescheduledAt, b.RescheduledBy,
		b.Rating, b.Review, b.ReviewedAt, b.ClientNotes, b.DeletedAt,
	).Scan(&b.UpdatedAt)
	if err != nil {
		return notFound(mapError(err), "booking_not_found", "booking %s not found", b.ID)
	}
	return nil
}

func (t *tx) getBooking(ctx context.Context, where string, lock bool, args ...any) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE ` + where + ` AND ` + live
	if lock {
		query += ` FOR UPDATE`
	}
	return scanBooking(t.q.QueryRow(ctx, query, args...))
}

func (t *tx) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	b, err := t.getBooking(ctx, "id = $1", false, id)
	if err != nil {
		return nil, notFound(err, "booking_not_found", "booking %s not found", id)
	}
	return b, nil
}

func (t *tx) GetBookingForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	b, err := t.getBooking(ctx, "id = $1", true, id)
	if err != nil {
		return nil, notFound(err, "booking_not_found", "booking %s not found", id)
	}
	return b, nil
}

func (t *tx) GetBookingByIdempotencyKey(ctx context.Context, key string) (*domain.Booking, error) {
	b, err := t.getBooking(ctx, "idempotency_key = $1", false, key)
	if err != nil {
		return nil, notFound(err, "booking_not_found", "no booking for idempotency key")
	}
	return b, nil
}

func (t *tx) GetBookingByPaymentIntent(ctx context.Context, intentID string) (*domain.Booking, error) {
	b, err := t.getBooking(ctx, "payment_intent_id = $1", true, intentID)
	if err != nil {
		return nil, notFound(err, "booking_not_found", "no booking for payment intent %s", intentID)
	}
	return b, nil
}

// ListOverlapping runs the half-open overlap test
// existing.start < candidate.end AND candidate.start < existing.end.
func (t *tx) ListOverlapping(ctx context.Context, professionalID uuid.UUID, iv timeslot.Interval, excludeID *uuid.UUID) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE professional_id = $1
		  AND start_time < $3 AND $2 < end_time
		  AND ` + holdsSlot + ` AND ` + live + `
		  AND ($4::uuid IS NULL OR id <> $4)
		ORDER BY start_time`
	rows, err := t.q.Query(ctx, query, professionalID, iv.Start, iv.End, excludeID)
	if err != nil {
		return nil, fmt.Errorf("postgres: overlap query: %w", err)
	}
	return collectBookings(rows)
}

func (t *tx) ListBookings(ctx context.Context, f store.BookingFilter) ([]domain.Booking, error) {
	var (
		conds = []string{live}
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.ClientID != nil {
		add("client_id = $%d", *f.ClientID)
	}
	if f.ProfessionalID != nil {
		add("professional_id = $%d", *f.ProfessionalID)
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	if f.StartsAfter != nil {
		add("start_time > $%d", *f.StartsAfter)
	}
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY start_time, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := t.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bookings: %w", err)
	}
	return collectBookings(rows)
}
