// Package notify emails professionals about booking and payout activity
// delivered through the outbox.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/internal/directory"
	"github.com/wolfman30/pro-marketplace/internal/events"
	"github.com/wolfman30/pro-marketplace/internal/money"
	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

const timeLayout = "Monday, January 2 at 3:04 PM MST"

// Service is an events.DeliveryHandler. Event types it does not notify on
// are acknowledged without sending anything.
type Service struct {
	email     EmailSender
	directory directory.Directory
	logger    *logging.Logger
}

func NewService(email EmailSender, dir directory.Directory, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, directory: dir, logger: logger}
}

func (s *Service) Handle(ctx context.Context, env events.Envelope) error {
	if s.email == nil || s.directory == nil {
		return nil
	}
	var (
		proID string
		build func(loc *time.Location) (string, string)
	)
	switch env.EventType {
	case events.TypeBookingCreated:
		var evt events.BookingCreatedV1
		if err := env.Decode(&evt); err != nil {
			return err
		}
		proID = evt.ProfessionalID
		build = func(loc *time.Location) (string, string) {
			return "New booking request",
				fmt.Sprintf("You have a new booking request for %s.\n\nBooking: %s\nTotal: $%s\nStatus: awaiting payment",
					evt.StartTime.In(loc).Format(timeLayout), evt.BookingID, money.Cents(evt.TotalCents))
		}
	case events.TypeBookingConfirmed:
		var evt events.BookingConfirmedV1
		if err := env.Decode(&evt); err != nil {
			return err
		}
		proID = evt.ProfessionalID
		build = func(loc *time.Location) (string, string) {
			return "Booking confirmed",
				fmt.Sprintf("Your booking on %s is confirmed.\n\nBooking: %s\nTotal: $%s",
					evt.StartTime.In(loc).Format(timeLayout), evt.BookingID, money.Cents(evt.TotalCents))
		}
	case events.TypeBookingCancelled:
		var evt events.BookingCancelledV1
		if err := env.Decode(&evt); err != nil {
			return err
		}
		proID = evt.ProfessionalID
		build = func(loc *time.Location) (string, string) {
			body := fmt.Sprintf("The booking on %s has been cancelled.\n\nBooking: %s",
				evt.StartTime.In(loc).Format(timeLayout), evt.BookingID)
			if evt.Reason != "" {
				body += "\nReason: " + evt.Reason
			}
			if evt.RefundCents > 0 {
				body += fmt.Sprintf("\nRefunded to client: $%s", money.Cents(evt.RefundCents))
			}
			return "Booking cancelled", body
		}
	case events.TypeBookingRescheduled:
		var evt events.BookingRescheduledV1
		if err := env.Decode(&evt); err != nil {
			return err
		}
		proID = evt.ProfessionalID
		build = func(loc *time.Location) (string, string) {
			return "Booking rescheduled",
				fmt.Sprintf("A booking moved from %s to %s.\n\nNew booking: %s\nPrevious booking: %s",
					evt.PreviousStartTime.In(loc).Format(timeLayout), evt.StartTime.In(loc).Format(timeLayout),
					evt.BookingID, evt.PreviousBookingID)
		}
	case events.TypeWithdrawalSettled:
		var evt events.WithdrawalSettledV1
		if err := env.Decode(&evt); err != nil {
			return err
		}
		proID = evt.ProfessionalID
		build = func(*time.Location) (string, string) {
			return "Withdrawal " + evt.Status,
				fmt.Sprintf("Your withdrawal of $%s via %s is %s.\n\nWithdrawal: %s",
					money.Cents(evt.AmountCents), evt.Method, evt.Status, evt.WithdrawalID)
		}
	default:
		return nil
	}

	id, err := uuid.Parse(proID)
	if err != nil {
		s.logger.Warn("notify: event without professional", "event_id", env.EventID, "type", env.EventType)
		return nil
	}
	pro, err := s.directory.GetProfessional(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		s.logger.Warn("notify: professional not in directory", "professional_id", proID, "event_id", env.EventID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("notify: lookup professional %s: %w", proID, err)
	}
	if pro.Email == "" {
		s.logger.Debug("notify: professional has no email", "professional_id", proID)
		return nil
	}
	loc, err := time.LoadLocation(pro.Timezone)
	if err != nil {
		loc = time.UTC
	}
	subject, body := build(loc)
	if err := s.email.Send(ctx, EmailMessage{To: pro.Email, ToName: pro.BusinessName, Subject: subject, Body: body}); err != nil {
		return fmt.Errorf("notify: %s: %w", env.EventType, err)
	}
	s.logger.Info("notify: professional emailed", "event_id", env.EventID, "type", env.EventType, "professional_id", proID)
	return nil
}

var _ events.DeliveryHandler = (*Service)(nil)
