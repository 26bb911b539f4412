// Package availability decides whether a professional's schedule admits a
// booking, and manages the recurring and date-override rules behind it.
package availability

import (
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/internal/domain"
	"github.com/wolfman30/pro-marketplace/internal/timeslot"
)

// Rejection codes returned by Accepts and Check. All of them are Conflict
// errors: the request is well formed but the slot cannot be taken.
const (
	ReasonNoRule                = "no_availability"
	ReasonRuleUnavailable       = "rule_unavailable"
	ReasonOutsideHours          = "outside_hours"
	ReasonBreakOverlap          = "break_overlap"
	ReasonDurationExceedsWindow = "duration_exceeds_window"
	ReasonCapacityExceeded      = "capacity_exceeded"
)

// Active is the predicate a rule must satisfy before it can be resolved.
func Active(r domain.AvailabilityRule) bool {
	return r.IsActive && r.Live()
}

// Resolve picks the rule governing localDate: an override for that date wins
// over the recurring rule for the weekday.
func Resolve(rules []domain.AvailabilityRule, professionalID uuid.UUID, localDate time.Time) (*domain.AvailabilityRule, bool) {
	key := timeslot.DateKey(localDate)
	weekday := localDate.Weekday()

	var recurring *domain.AvailabilityRule
	for i := range rules {
		r := rules[i]
		if r.ProfessionalID != professionalID || !Active(r) {
			continue
		}
		if r.Date != nil {
			if timeslot.DateKey(r.Date.UTC()) == key {
				return &r, true
			}
			continue
		}
		if r.DayOfWeek != nil && *r.DayOfWeek == weekday && recurring == nil {
			recurring = &r
		}
	}
	return recurring, recurring != nil
}

// AvailableMinutes is the bookable length of a rule: its window minus the break.
func AvailableMinutes(r domain.AvailabilityRule) int {
	minutes := r.Window.Minutes()
	if r.Break != nil {
		minutes -= r.Break.Minutes()
	}
	return minutes
}

// Accepts reports whether rule admits a booking occupying w.
func Accepts(rule domain.AvailabilityRule, w timeslot.Window) error {
	if rule.Status != domain.RuleAvailable || !Active(rule) {
		return apperr.Conflict(ReasonRuleUnavailable, "professional is not available on this day")
	}
	if w.Minutes() > AvailableMinutes(rule) {
		return apperr.Conflict(ReasonDurationExceedsWindow, "requested %d minutes exceeds the %d available", w.Minutes(), AvailableMinutes(rule))
	}
	if !rule.Window.Contains(w) {
		return apperr.Conflict(ReasonOutsideHours, "requested time %s-%s is outside working hours %s-%s", w.Start, w.End, rule.Window.Start, rule.Window.End)
	}
	if rule.Break != nil && rule.Break.Overlaps(w) {
		return apperr.Conflict(ReasonBreakOverlap, "requested time overlaps the break %s-%s", rule.Break.Start, rule.Break.End)
	}
	if !timeslot.HasCapacity(rule.CurrentBookings, rule.MaxBookings) {
		return apperr.Conflict(ReasonCapacityExceeded, "no booking capacity left for this schedule")
	}
	return nil
}

// CheckNotice enforces the rule's advance booking hours.
func CheckNotice(rule domain.AvailabilityRule, start, now time.Time) error {
	return CheckLeadTime(start, now, time.Duration(rule.AdvanceBookingHours)*time.Hour)
}

// CheckLeadTime fails with InsufficientNotice when start is closer than min to now.
func CheckLeadTime(start, now time.Time, min time.Duration) error {
	if start.Sub(now) < min {
		return apperr.InsufficientNotice("insufficient_notice", "bookings require at least %s notice", min)
	}
	return nil
}

// Check resolves the rule for iv and verifies it accepts the booking. The
// returned rule is the one whose counter the booking occupies.
func Check(rules []domain.AvailabilityRule, professionalID uuid.UUID, iv timeslot.Interval, loc *time.Location, now time.Time) (*domain.AvailabilityRule, error) {
	w, day, err := timeslot.WindowOf(iv, loc)
	if err != nil {
		return nil, err
	}
	rule, ok := Resolve(rules, professionalID, day)
	if !ok {
		return nil, apperr.Conflict(ReasonNoRule, "professional has no availability on %s", timeslot.DateKey(day))
	}
	if err := Accepts(*rule, w); err != nil {
		return nil, err
	}
	if err := CheckNotice(*rule, iv.Start, now); err != nil {
		return nil, err
	}
	return rule, nil
}

// Validate checks the structural invariants of a rule.
func Validate(r domain.AvailabilityRule) error {
	if (r.DayOfWeek == nil) == (r.Date == nil) {
		return apperr.Validation("invalid_rule_target", "exactly one of dayOfWeek or date is required")
	}
	if r.DayOfWeek != nil && (*r.DayOfWeek < time.Sunday || *r.DayOfWeek > time.Saturday) {
		return apperr.Validation("invalid_day_of_week", "dayOfWeek must be between 0 and 6")
	}
	if r.Window.End > timeslot.EndOfDay {
		return apperr.Validation("invalid_window", "end time must not be after 24:00")
	}
	if _, err := timeslot.NewWindow(r.Window.Start, r.Window.End); err != nil {
		return err
	}
	if r.Break != nil {
		if r.Break.End <= r.Break.Start {
			return apperr.Validation("invalid_break", "break start must be before break end")
		}
		if !r.Window.Contains(*r.Break) {
			return apperr.Validation("invalid_break", "break must lie within the availability window")
		}
	}
	if !r.Status.Valid() {
		return apperr.Validation("invalid_status", "unknown availability status %q", r.Status)
	}
	if r.MaxBookings != nil && *r.MaxBookings < 1 {
		return apperr.Validation("invalid_max_bookings", "maxBookings must be positive")
	}
	if r.AdvanceBookingHours < 0 {
		return apperr.Validation("invalid_advance_hours", "advanceBookingHours must not be negative")
	}
	return nil
}
