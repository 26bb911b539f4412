package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/internal/domain"
	"github.com/wolfman30/pro-marketplace/internal/events"
	"github.com/wolfman30/pro-marketplace/internal/store"
	"github.com/wolfman30/pro-marketplace/internal/timeslot"
)

func booking(pro uuid.UUID, start time.Time, minutes int) *domain.Booking {
	return &domain.Booking{
		ID:             uuid.New(),
		ClientID:       uuid.New(),
		ProfessionalID: pro,
		StartTime:      start,
		EndTime:        start.Add(time.Duration(minutes) * time.Minute),
		Status:         domain.BookingPending,
		PaymentStatus:  domain.PaymentPending,
	}
}

func strPtr(s string) *string { return &s }

func TestWithTxRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	pro := uuid.New()
	b := booking(pro, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), 60)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.InsertBooking(ctx, b))
		_, err := tx.EnsureAccount(ctx, pro)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetBooking(ctx, b.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		_, err = tx.GetAccountForUpdate(ctx, pro)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestInsertBookingEnforcesUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()
	pro := uuid.New()
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	first := booking(pro, start, 60)
	first.IdempotencyKey = strPtr("key-1")
	first.PaymentIntentID = strPtr("pi_1")
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertBooking(ctx, first)
	}))

	tests := []struct {
		name string
		mut  func(b *domain.Booking)
		code string
	}{
		{"same idempotency key", func(b *domain.Booking) { b.IdempotencyKey = strPtr("key-1") }, "duplicate_idempotency_key"},
		{"same payment intent", func(b *domain.Booking) { b.PaymentIntentID = strPtr("pi_1") }, "duplicate_payment_intent"},
		{"partial overlap", func(b *domain.Booking) {
			b.StartTime = start.Add(59 * time.Minute)
			b.EndTime = b.StartTime.Add(time.Hour)
		}, "booking_conflict"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate := booking(pro, start.Add(3*time.Hour), 60)
			tt.mut(candidate)
			err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
				return tx.InsertBooking(ctx, candidate)
			})
			require.ErrorIs(t, err, apperr.ErrConflict)
			assert.Equal(t, tt.code, apperr.CodeOf(err))
		})
	}

	touching := booking(pro, start.Add(time.Hour), 30)
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertBooking(ctx, touching)
	}))
}

func TestCancelledBookingsReleaseSlotAndSoftDeleteHides(t *testing.T) {
	s := New()
	ctx := context.Background()
	pro := uuid.New()
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	b := booking(pro, start, 60)

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}
		b.Status = domain.BookingCancelled
		return tx.UpdateBooking(ctx, b)
	}))

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		hits, err := tx.ListOverlapping(ctx, pro, b.Interval(), nil)
		require.NoError(t, err)
		assert.Empty(t, hits)

		replacement := booking(pro, start, 60)
		require.NoError(t, tx.InsertBooking(ctx, replacement))

		hits, err = tx.ListOverlapping(ctx, pro, timeslot.Interval{Start: start.Add(30 * time.Minute), End: start.Add(90 * time.Minute)}, nil)
		require.NoError(t, err)
		require.Len(t, hits, 1)

		hits, err = tx.ListOverlapping(ctx, pro, replacement.Interval(), &replacement.ID)
		require.NoError(t, err)
		assert.Empty(t, hits)

		now := time.Now()
		replacement.DeletedAt = &now
		require.NoError(t, tx.UpdateBooking(ctx, replacement))
		_, err = tx.GetBooking(ctx, replacement.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		return nil
	}))
}

func TestAdjustRuleBookingsClampsAtZero(t *testing.T) {
	s := New()
	ctx := context.Background()
	rule := &domain.AvailabilityRule{ProfessionalID: uuid.New(), Status: domain.RuleAvailable, IsActive: true, CurrentBookings: 1}

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.InsertRule(ctx, rule))
		require.NoError(t, tx.AdjustRuleBookings(ctx, rule.ID, -3))
		got, err := tx.GetRule(ctx, rule.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.CurrentBookings)
		return nil
	}))
}

func TestWebhookInsertIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	var inserted []bool
	for i := 0; i < 2; i++ {
		require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			ok, err := tx.InsertWebhookEvent(ctx, &domain.WebhookEvent{EventID: "evt_1", Type: "payment_intent.succeeded", Status: domain.WebhookProcessing})
			inserted = append(inserted, ok)
			return err
		}))
	}
	assert.Equal(t, []bool{true, false}, inserted)
}

func TestListRetryableWebhookEvents(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	clock := now.Add(-time.Hour)
	s := New().WithClock(func() time.Time { return clock })
	ctx := context.Background()

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, e := range []domain.WebhookEvent{
			{EventID: "stale", Status: domain.WebhookProcessing},
			{EventID: "failed-1", Status: domain.WebhookFailed, RetryCount: 1},
			{EventID: "exhausted", Status: domain.WebhookFailed, RetryCount: 3},
			{EventID: "done", Status: domain.WebhookCompleted},
		} {
			e := e
			if _, err := tx.InsertWebhookEvent(ctx, &e); err != nil {
				return err
			}
		}
		return nil
	}))

	clock = now
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.InsertWebhookEvent(ctx, &domain.WebhookEvent{EventID: "fresh", Status: domain.WebhookProcessing})
		return err
	}))

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		events, err := tx.ListRetryableWebhookEvents(ctx, 3, now.Add(-5*time.Minute), 10)
		require.NoError(t, err)
		var ids []string
		for _, e := range events {
			ids = append(ids, e.EventID)
		}
		assert.ElementsMatch(t, []string{"stale", "failed-1"}, ids)
		return nil
	}))
}

func TestOutboxCommitsWithTransaction(t *testing.T) {
	s := New()
	ctx := context.Background()

	_ = s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, store.AppendEvent(ctx, tx, "professional:1", events.BookingCreatedV1{}))
		return errors.New("rollback")
	})
	pending, err := s.FetchPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return store.AppendEvent(ctx, tx, "professional:1", events.BookingConfirmedV1{})
	}))
	pending, err = s.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, events.TypeBookingConfirmed, pending[0].EventType)

	ok, err := s.MarkDelivered(ctx, pending[0].EventID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.MarkDelivered(ctx, pending[0].EventID)
	require.NoError(t, err)
	assert.False(t, ok)

	pending, err = s.FetchPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestListBookingsFilters(t *testing.T) {
	s := New()
	ctx := context.Background()
	pro := uuid.New()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	var client uuid.UUID
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for i := 0; i < 4; i++ {
			b := booking(pro, start.Add(time.Duration(i)*time.Hour), 60)
			if i == 0 {
				client = b.ClientID
			}
			if i == 3 {
				b.Status = domain.BookingConfirmed
			}
			if err := tx.InsertBooking(ctx, b); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		all, err := tx.ListBookings(ctx, store.BookingFilter{ProfessionalID: &pro})
		require.NoError(t, err)
		assert.Len(t, all, 4)
		assert.True(t, all[0].StartTime.Before(all[1].StartTime))

		page, err := tx.ListBookings(ctx, store.BookingFilter{ProfessionalID: &pro, Limit: 2, Offset: 3})
		require.NoError(t, err)
		assert.Len(t, page, 1)

		confirmed := domain.BookingConfirmed
		got, err := tx.ListBookings(ctx, store.BookingFilter{Status: &confirmed})
		require.NoError(t, err)
		assert.Len(t, got, 1)

		mine, err := tx.ListBookings(ctx, store.BookingFilter{ClientID: &client})
		require.NoError(t, err)
		assert.Len(t, mine, 1)

		after := start.Add(90 * time.Minute)
		upcoming, err := tx.ListBookings(ctx, store.BookingFilter{StartsAfter: &after})
		require.NoError(t, err)
		assert.Len(t, upcoming, 2)
		return nil
	}))
}
