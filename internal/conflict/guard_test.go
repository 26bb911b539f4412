package conflict

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/internal/domain"
	"github.com/wolfman30/pro-marketplace/internal/store"
	"github.com/wolfman30/pro-marketplace/internal/store/memory"
	"github.com/wolfman30/pro-marketplace/internal/timeslot"
)

var base = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func interval(startMin, endMin int) timeslot.Interval {
	return timeslot.Interval{
		Start: base.Add(time.Duration(startMin) * time.Minute),
		End:   base.Add(time.Duration(endMin) * time.Minute),
	}
}

func book(t *testing.T, st store.Store, g *Guard, pro uuid.UUID, iv timeslot.Interval) (uuid.UUID, error) {
	t.Helper()
	id := uuid.New()
	err := st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := g.Claim(ctx, tx, pro, iv, nil); err != nil {
			return err
		}
		return tx.InsertBooking(ctx, &domain.Booking{
			ID:             id,
			ClientID:       uuid.New(),
			ProfessionalID: pro,
			StartTime:      iv.Start,
			EndTime:        iv.End,
			Status:         domain.BookingPending,
			PaymentStatus:  domain.PaymentPending,
		})
	})
	return id, err
}

func TestClaimOverlapIsExact(t *testing.T) {
	st := memory.New()
	g := NewGuard(nil)
	pro := uuid.New()

	_, err := book(t, st, g, pro, interval(0, 60))
	require.NoError(t, err)

	_, err = book(t, st, g, pro, interval(60, 120))
	assert.NoError(t, err, "touching endpoints do not conflict")

	_, err = book(t, st, g, pro, interval(-60, 0))
	assert.NoError(t, err)

	_, err = book(t, st, g, pro, interval(59, 90))
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "booking_conflict", apperr.CodeOf(err))

	_, err = book(t, st, g, uuid.New(), interval(0, 60))
	assert.NoError(t, err, "other professionals are independent")
}

func TestClaimExcludesBooking(t *testing.T) {
	st := memory.New()
	g := NewGuard(nil)
	pro := uuid.New()
	id, err := book(t, st, g, pro, interval(0, 60))
	require.NoError(t, err)

	err = st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return g.Claim(ctx, tx, pro, interval(30, 90), &id)
	})
	assert.NoError(t, err)
}

func TestClaimIgnoresCancelled(t *testing.T) {
	st := memory.New()
	g := NewGuard(nil)
	pro := uuid.New()
	id, err := book(t, st, g, pro, interval(0, 60))
	require.NoError(t, err)

	err = st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		b, err := tx.GetBookingForUpdate(ctx, id)
		if err != nil {
			return err
		}
		b.Status = domain.BookingCancelled
		return tx.UpdateBooking(ctx, b)
	})
	require.NoError(t, err)

	_, err = book(t, st, g, pro, interval(15, 45))
	assert.NoError(t, err)
}

func TestConcurrentClaimsAdmitOne(t *testing.T) {
	st := memory.New()
	g := NewGuard(nil)
	pro := uuid.New()

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			_, err := book(t, st, g, pro, interval(offset, offset+60))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperr.KindOf(err) == apperr.KindConflict:
				conflicts++
			}
		}(i % 4 * 10)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, conflicts)
}
