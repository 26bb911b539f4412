package events

import "time"

const (
	TypeBookingCreated     = "booking.created.v1"
	TypeBookingConfirmed   = "booking.confirmed.v1"
	TypeBookingCancelled   = "booking.cancelled.v1"
	TypeBookingCompleted   = "booking.completed.v1"
	TypeBookingNoShow      = "booking.no_show.v1"
	TypeBookingRescheduled = "booking.rescheduled.v1"
	TypeBookingUpdated     = "booking.updated.v1"
	TypeRefundRequired     = "booking.refund_required.v1"
	TypeWithdrawalSettled  = "withdrawal.settled.v1"
)

// BookingSnapshot is the booking data shared by booking lifecycle events.
type BookingSnapshot struct {
	BookingID      string    `json:"booking_id"`
	ClientID       string    `json:"client_id"`
	ProfessionalID string    `json:"professional_id"`
	ServiceID      string    `json:"service_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	TotalCents     int64     `json:"total_cents"`
	Status         string    `json:"status"`
	PaymentStatus  string    `json:"payment_status"`
}

type BookingCreatedV1 struct {
	BookingSnapshot
	CreatedAt time.Time `json:"created_at"`
}

func (BookingCreatedV1) EventType() string { return TypeBookingCreated }

type BookingConfirmedV1 struct {
	BookingSnapshot
	ConfirmedAt time.Time `json:"confirmed_at"`
}

func (BookingConfirmedV1) EventType() string { return TypeBookingConfirmed }

type BookingCancelledV1 struct {
	BookingSnapshot
	CancelledBy string    `json:"cancelled_by,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	RefundCents int64     `json:"refund_cents,omitempty"`
	CancelledAt time.Time `json:"cancelled_at"`
}

func (BookingCancelledV1) EventType() string { return TypeBookingCancelled }

type BookingCompletedV1 struct {
	BookingSnapshot
	CompletedAt time.Time `json:"completed_at"`
}

func (BookingCompletedV1) EventType() string { return TypeBookingCompleted }

type BookingNoShowV1 struct {
	BookingSnapshot
	MarkedAt time.Time `json:"marked_at"`
}

func (BookingNoShowV1) EventType() string { return TypeBookingNoShow }

type BookingRescheduledV1 struct {
	BookingSnapshot
	PreviousBookingID string    `json:"previous_booking_id"`
	PreviousStartTime time.Time `json:"previous_start_time"`
	RescheduledAt     time.Time `json:"rescheduled_at"`
}

func (BookingRescheduledV1) EventType() string { return TypeBookingRescheduled }

type BookingUpdatedV1 struct {
	BookingSnapshot
	BookingType        string    `json:"booking_type"`
	PreviousTotalCents int64     `json:"previous_total_cents"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (BookingUpdatedV1) EventType() string { return TypeBookingUpdated }

// RefundRequiredV1 is emitted when money arrived for a booking that can no
// longer be honoured and the gateway must return it to the client.
type RefundRequiredV1 struct {
	BookingSnapshot
	PaymentIntentID string    `json:"payment_intent_id"`
	AmountCents     int64     `json:"amount_cents"`
	Reason          string    `json:"reason"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func (RefundRequiredV1) EventType() string { return TypeRefundRequired }

type WithdrawalSettledV1 struct {
	WithdrawalID   string    `json:"withdrawal_id"`
	ProfessionalID string    `json:"professional_id"`
	Status         string    `json:"status"`
	AmountCents    int64     `json:"amount_cents"`
	Method         string    `json:"method"`
	SettledAt      time.Time `json:"settled_at"`
}

func (WithdrawalSettledV1) EventType() string { return TypeWithdrawalSettled }
