// Package conflict prevents double booking on a professional's time axis.
package conflict

import (
	"context"

	"github.com/google/uuid"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/internal/domain"
	"github.com/wolfman30/pro-marketplace/internal/observability/metrics"
	"github.com/wolfman30/pro-marketplace/internal/store"
	"github.com/wolfman30/pro-marketplace/internal/timeslot"
)

// Claimer is the slice of a transaction the guard needs.
type Claimer interface {
	store.Locker
	ListOverlapping(ctx context.Context, professionalID uuid.UUID, iv timeslot.Interval, excludeID *uuid.UUID) ([]domain.Booking, error)
}

// Guard checks a candidate interval against the professional's existing
// slot-holding bookings. Claim must run in the same transaction as the
// insert that follows it; the professional lock it takes is held until that
// transaction ends.
type Guard struct {
	metrics *metrics.MarketplaceMetrics
}

func NewGuard(m *metrics.MarketplaceMetrics) *Guard { return &Guard{metrics: m} }

// Claim locks the professional and rejects iv if it overlaps any booking
// other than excludeID. Cancelled and rescheduled bookings never block.
func (g *Guard) Claim(ctx context.Context, tx Claimer, professionalID uuid.UUID, iv timeslot.Interval, excludeID *uuid.UUID) error {
	if err := tx.LockProfessional(ctx, professionalID); err != nil {
		return err
	}
	existing, err := tx.ListOverlapping(ctx, professionalID, iv, excludeID)
	if err != nil {
		return err
	}
	for _, b := range existing {
		if b.Interval().Overlaps(iv) {
			g.metrics.ObserveRejection("booking_conflict")
			return apperr.Conflict("booking_conflict", "professional already has a booking from %s to %s", b.StartTime.Format("2006-01-02 15:04"), b.EndTime.Format("15:04"))
		}
	}
	return nil
}
