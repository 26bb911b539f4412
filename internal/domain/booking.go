package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/pro-marketplace/internal/money"
	"github.com/wolfman30/pro-marketplace/internal/timeslot"
)

type BookingStatus string

const (
	BookingPending     BookingStatus = "pending"
	BookingConfirmed   BookingStatus = "confirmed"
	BookingCancelled   BookingStatus = "cancelled"
	BookingCompleted   BookingStatus = "completed"
	BookingNoShow      BookingStatus = "no_show"
	BookingRescheduled BookingStatus = "rescheduled"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingCompleted, BookingNoShow, BookingRescheduled:
		return true
	}
	return false
}

// HoldsSlot reports whether a booking in this status occupies its interval.
func (s BookingStatus) HoldsSlot() bool {
	return s != BookingCancelled && s != BookingRescheduled
}

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentPaid              PaymentStatus = "paid"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentFullyRefunded     PaymentStatus = "fully_refunded"
	PaymentFailed            PaymentStatus = "failed"
)

// Settled reports whether money reached the professional's account.
func (s PaymentStatus) Settled() bool {
	return s == PaymentPaid || s == PaymentPartiallyRefunded
}

type BookingType string

const (
	BookingInPerson  BookingType = "in_person"
	BookingHomeVisit BookingType = "home_visit"
	BookingVirtual   BookingType = "virtual"
)

func (t BookingType) Valid() bool {
	switch t {
	case BookingInPerson, BookingHomeVisit, BookingVirtual:
		return true
	}
	return false
}

// Location is the client address for home visits.
type Location struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	Country    string `json:"country,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
}

// Price is the monetary breakdown fixed at creation time.
type Price struct {
	ServicePrice   money.Cents `json:"servicePriceCents"`
	TravelFee      money.Cents `json:"travelFeeCents"`
	PlatformFee    money.Cents `json:"platformFeeCents"`
	Discount       money.Cents `json:"discountCents"`
	Total          money.Cents `json:"totalPriceCents"`
	PlatformFeeBps int         `json:"platformFeeBps"`
}

// Gross is the amount credited to the professional before platform fees.
func (p Price) Gross() money.Cents { return p.ServicePrice + p.TravelFee }

type Booking struct {
	ID                uuid.UUID     `json:"id"`
	ClientID          uuid.UUID     `json:"clientId"`
	ProfessionalID    uuid.UUID     `json:"professionalId"`
	ServiceID         uuid.UUID     `json:"serviceId"`
	RuleID            *uuid.UUID    `json:"availabilityRuleId,omitempty"`
	StartTime         time.Time     `json:"startTime"`
	EndTime           time.Time     `json:"endTime"`
	Price             Price         `json:"price"`
	Status            BookingStatus `json:"status"`
	PaymentStatus     PaymentStatus `json:"paymentStatus"`
	BookingType       BookingType   `json:"bookingType"`
	IdempotencyKey    *string       `json:"idempotencyKey,omitempty"`
	PaymentIntentID   *string       `json:"paymentIntentId,omitempty"`
	Location          *Location     `json:"location,omitempty"`
	ClientNotes       string        `json:"clientNotes,omitempty"`
	ProfessionalNotes string        `json:"professionalNotes,omitempty"`
	CancellationNote  string        `json:"cancellationReason,omitempty"`
	CancelledBy       *uuid.UUID    `json:"cancelledBy,omitempty"`
	CancelledAt       *time.Time    `json:"cancelledAt,omitempty"`
	CompletedAt       *time.Time    `json:"completedAt,omitempty"`
	RescheduledFrom   *uuid.UUID    `json:"rescheduledFrom,omitempty"`
	RescheduledTo     *uuid.UUID    `json:"rescheduledTo,omitempty"`
	RescheduledAt     *time.Time    `json:"rescheduledAt,omitempty"`
	RescheduledBy     *uuid.UUID    `json:"rescheduledBy,omitempty"`
	Rating            *int          `json:"rating,omitempty"`
	Review            string        `json:"review,omitempty"`
	ReviewedAt        *time.Time    `json:"reviewedAt,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
	DeletedAt         *time.Time    `json:"-"`
}

func (b Booking) Interval() timeslot.Interval {
	return timeslot.Interval{Start: b.StartTime, End: b.EndTime}
}

// Live is the active-record predicate for bookings.
func (b Booking) Live() bool { return b.DeletedAt == nil }

// IsParty reports whether the actor is the booking's client or professional.
func (b Booking) IsParty(a Actor) bool {
	return (a.Role == RoleClient && a.ID == b.ClientID) ||
		(a.Role == RoleProfessional && a.ID == b.ProfessionalID)
}
