package bookings

import (
	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/internal/domain"
)

// transitions is the legal status graph. Statuses without an entry are terminal.
var transitions = map[domain.BookingStatus][]domain.BookingStatus{
	domain.BookingPending:   {domain.BookingConfirmed, domain.BookingCancelled},
	domain.BookingConfirmed: {domain.BookingCompleted, domain.BookingCancelled, domain.BookingNoShow},
}

// CanTransition reports whether from → to is in the status graph.
func CanTransition(from, to domain.BookingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func Terminal(s domain.BookingStatus) bool { return len(transitions[s]) == 0 }

// ValidateTransition checks the graph and who may move b to the target status.
func ValidateTransition(b domain.Booking, to domain.BookingStatus, actor domain.Actor) error {
	if !b.IsParty(actor) && !actor.IsPrivileged() {
		return apperr.Forbidden("not_booking_party", "you can only update your own bookings")
	}
	if !to.Valid() {
		return apperr.Validation("invalid_status", "unknown booking status %q", to)
	}
	if !CanTransition(b.Status, to) {
		return apperr.InvalidTransition("invalid_status_transition", "cannot move booking from %s to %s", b.Status, to)
	}
	if to == domain.BookingCompleted || to == domain.BookingNoShow {
		if actor.Role != domain.RoleProfessional || actor.ID != b.ProfessionalID {
			return apperr.Forbidden("professional_only", "only the professional can mark a booking %s", to)
		}
	}
	return nil
}

// canReschedule mirrors the live states a booking can be moved from.
func canReschedule(s domain.BookingStatus) bool {
	return s == domain.BookingPending || s == domain.BookingConfirmed
}
