package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/pro-marketplace/internal/timeslot"
)

type RuleStatus string

const (
	RuleAvailable   RuleStatus = "available"
	RuleUnavailable RuleStatus = "unavailable"
	RuleBreak       RuleStatus = "break"
	RuleBooked      RuleStatus = "booked"
	RuleMaintenance RuleStatus = "maintenance"
)

func (s RuleStatus) Valid() bool {
	switch s {
	case RuleAvailable, RuleUnavailable, RuleBreak, RuleBooked, RuleMaintenance:
		return true
	}
	return false
}

// AvailabilityRule is either a recurring weekly rule (DayOfWeek set) or a
// date override (Date set, midnight UTC of the professional's local date).
type AvailabilityRule struct {
	ID                  uuid.UUID        `json:"id"`
	ProfessionalID      uuid.UUID        `json:"professionalId"`
	DayOfWeek           *time.Weekday    `json:"dayOfWeek,omitempty"`
	Date                *time.Time       `json:"date,omitempty"`
	Window              timeslot.Window  `json:"window"`
	Break               *timeslot.Window `json:"break,omitempty"`
	Status              RuleStatus       `json:"status"`
	MaxBookings         *int             `json:"maxBookings,omitempty"`
	CurrentBookings     int              `json:"currentBookings"`
	AdvanceBookingHours int              `json:"advanceBookingHours"`
	IsActive            bool             `json:"isActive"`
	Notes               string           `json:"notes,omitempty"`
	CreatedAt           time.Time        `json:"createdAt"`
	UpdatedAt           time.Time        `json:"updatedAt"`
	DeletedAt           *time.Time       `json:"-"`
}

// IsOverride reports whether the rule targets a specific date.
func (r AvailabilityRule) IsOverride() bool { return r.Date != nil }

// Live is the active-record predicate for rules.
func (r AvailabilityRule) Live() bool { return r.DeletedAt == nil }

// SameDay reports whether two rules target the same weekday or the same date.
func (r AvailabilityRule) SameDay(o AvailabilityRule) bool {
	switch {
	case r.Date != nil && o.Date != nil:
		return timeslot.DateKey(*r.Date) == timeslot.DateKey(*o.Date)
	case r.DayOfWeek != nil && o.DayOfWeek != nil:
		return *r.DayOfWeek == *o.DayOfWeek
	}
	return false
}
