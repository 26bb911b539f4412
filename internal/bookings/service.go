// Package bookings owns the booking lifecycle: creation against availability
// and the conflict guard, status transitions, rescheduling, reviews and the
// payment events that settle a booking into the ledger.
package bookings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/internal/availability"
	"github.com/wolfman30/pro-marketplace/internal/conflict"
	"github.com/wolfman30/pro-marketplace/internal/directory"
	"github.com/wolfman30/pro-marketplace/internal/domain"
	"github.com/wolfman30/pro-marketplace/internal/events"
	"github.com/wolfman30/pro-marketplace/internal/gateway"
	"github.com/wolfman30/pro-marketplace/internal/ledger"
	"github.com/wolfman30/pro-marketplace/internal/money"
	"github.com/wolfman30/pro-marketplace/internal/observability/metrics"
	"github.com/wolfman30/pro-marketplace/internal/pricing"
	"github.com/wolfman30/pro-marketplace/internal/store"
	"github.com/wolfman30/pro-marketplace/internal/timeslot"
	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

var tracer = otel.Tracer("marketplace.internal.bookings")

// PricingSource supplies the configuration snapshot a quote is computed with.
type PricingSource interface {
	Snapshot() pricing.Config
}

// Service runs booking operations. Every mutation is one store transaction.
type Service struct {
	store     store.Store
	directory directory.Directory
	pricing   PricingSource
	ledger    *ledger.Ledger
	guard     *conflict.Guard
	gateway   gateway.Client
	currency  string
	metrics   *metrics.MarketplaceMetrics
	logger    *logging.Logger
	minNotice time.Duration
	now       func() time.Time
}

func NewService(st store.Store, dir directory.Directory, cfg PricingSource, led *ledger.Ledger, logger *logging.Logger) *Service {
	if st == nil {
		panic("bookings: store required")
	}
	if dir == nil {
		panic("bookings: directory required")
	}
	if cfg == nil {
		panic("bookings: pricing source required")
	}
	if led == nil {
		panic("bookings: ledger required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:     st,
		directory: dir,
		pricing:   cfg,
		ledger:    led,
		guard:     conflict.NewGuard(nil),
		currency:  "usd",
		logger:    logger,
		minNotice: 24 * time.Hour,
		now:       time.Now,
	}
}

func (s *Service) WithGuard(g *conflict.Guard) *Service {
	if g != nil {
		s.guard = g
	}
	return s
}

// WithGateway enables payment intents. currency defaults to usd when empty.
func (s *Service) WithGateway(c gateway.Client, currency string) *Service {
	s.gateway = c
	if currency = strings.ToLower(strings.TrimSpace(currency)); currency != "" {
		s.currency = currency
	}
	return s
}

func (s *Service) WithMetrics(m *metrics.MarketplaceMetrics) *Service {
	s.metrics = m
	return s
}

// WithMinNotice sets the platform-wide minimum notice for new bookings.
func (s *Service) WithMinNotice(d time.Duration) *Service {
	if d >= 0 {
		s.minNotice = d
	}
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// CreateRequest is the input of Create. ClientID and Discount are honoured
// only for administrators booking on a client's behalf.
type CreateRequest struct {
	ProfessionalID uuid.UUID          `json:"professionalId"`
	ServiceID      uuid.UUID          `json:"serviceId"`
	StartTime      time.Time          `json:"startTime"`
	BookingType    domain.BookingType `json:"bookingType"`
	IdempotencyKey string             `json:"idempotencyKey"`
	Location       *domain.Location   `json:"location,omitempty"`
	ClientNotes    string             `json:"clientNotes,omitempty"`
	ClientID       *uuid.UUID         `json:"clientId,omitempty"`
	Discount       money.Cents        `json:"discountCents,omitempty"`
}

func (req *CreateRequest) normalize() error {
	if req.ProfessionalID == uuid.Nil || req.ServiceID == uuid.Nil {
		return apperr.Validation("invalid_booking", "professionalId and serviceId are required")
	}
	if req.StartTime.IsZero() {
		return apperr.Validation("invalid_start_time", "startTime is required")
	}
	if req.BookingType == "" {
		req.BookingType = domain.BookingInPerson
	}
	if !req.BookingType.Valid() {
		return apperr.Validation("invalid_booking_type", "unknown booking type %q", req.BookingType)
	}
	if req.BookingType == domain.BookingHomeVisit && (req.Location == nil || strings.TrimSpace(req.Location.Address) == "") {
		return apperr.Validation("location_required", "home visits require a location")
	}
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}
	return nil
}

func clientFor(actor domain.Actor, req CreateRequest) (uuid.UUID, error) {
	switch {
	case actor.Role == domain.RoleClient:
		if req.Discount != 0 {
			return uuid.Nil, apperr.Forbidden("discount_not_allowed", "only administrators can apply discounts")
		}
		return actor.ID, nil
	case actor.IsAdmin():
		if req.ClientID == nil || *req.ClientID == uuid.Nil {
			return uuid.Nil, apperr.Validation("client_required", "clientId is required when booking on behalf of a client")
		}
		return *req.ClientID, nil
	}
	return uuid.Nil, apperr.Forbidden("client_only", "only clients can create bookings")
}

// Create books a PENDING slot. A repeated idempotency key from the same client
// returns the original booking with created=false.
func (s *Service) Create(ctx context.Context, actor domain.Actor, req CreateRequest) (*domain.Booking, bool, error) {
	ctx, span := tracer.Start(ctx, "bookings.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("marketplace.professional_id", req.ProfessionalID.String()),
		attribute.String("marketplace.service_id", req.ServiceID.String()),
	)

	b, created, err := s.create(ctx, actor, req)
	s.observe("create", err)
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}
	if created {
		s.logger.Info("booking created",
			"booking_id", b.ID,
			"professional_id", b.ProfessionalID,
			"client_id", b.ClientID,
			"start_time", b.StartTime,
			"total_cents", int64(b.Price.Total),
		)
	}
	return b, created, nil
}

func (s *Service) create(ctx context.Context, actor domain.Actor, req CreateRequest) (*domain.Booking, bool, error) {
	if err := req.normalize(); err != nil {
		return nil, false, err
	}
	clientID, err := clientFor(actor, req)
	if err != nil {
		return nil, false, err
	}
	if existing, err := s.findByKey(ctx, clientID, req.IdempotencyKey); err != nil || existing != nil {
		return existing, false, err
	}

	pro, svc, err := directory.ServiceFor(ctx, s.directory, req.ProfessionalID, req.ServiceID)
	if err != nil {
		return nil, false, err
	}
	iv, err := timeslot.NewInterval(req.StartTime, req.StartTime.Add(time.Duration(svc.DurationMinutes)*time.Minute))
	if err != nil {
		return nil, false, err
	}
	now := s.now()
	if err := availability.CheckLeadTime(iv.Start, now, s.minNotice); err != nil {
		s.metrics.ObserveRejection(apperr.CodeOf(err))
		return nil, false, err
	}
	price, err := pricing.Quote(pricing.Input{
		Service:      *svc,
		Professional: *pro,
		BookingType:  req.BookingType,
		Discount:     req.Discount,
	}, s.pricing.Snapshot())
	if err != nil {
		return nil, false, err
	}

	key := req.IdempotencyKey
	b := &domain.Booking{
		ID:             uuid.New(),
		ClientID:       clientID,
		ProfessionalID: pro.ID,
		ServiceID:      svc.ID,
		StartTime:      iv.Start.UTC(),
		EndTime:        iv.End.UTC(),
		Price:          price,
		Status:         domain.BookingPending,
		PaymentStatus:  domain.PaymentPending,
		BookingType:    req.BookingType,
		IdempotencyKey: &key,
		Location:       req.Location,
		ClientNotes:    strings.TrimSpace(req.ClientNotes),
	}
	loc := directory.Location(pro)
	var replay *domain.Booking
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockProfessional(ctx, pro.ID); err != nil {
			return err
		}
		// A same-key request may have committed while this one was pricing.
		existing, err := byKey(ctx, tx, clientID, key)
		if err != nil || existing != nil {
			replay = existing
			return err
		}
		if err := s.guard.Claim(ctx, tx, pro.ID, iv, nil); err != nil {
			return err
		}
		rule, err := s.resolve(ctx, tx, pro.ID, iv, loc, now, nil)
		if err != nil {
			return err
		}
		b.RuleID = &rule.ID
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}
		if err := tx.AdjustRuleBookings(ctx, rule.ID, 1); err != nil {
			return err
		}
		return store.AppendEvent(ctx, tx, aggregate(b), events.BookingCreatedV1{
			BookingSnapshot: snapshot(b),
			CreatedAt:       b.CreatedAt,
		})
	})
	if apperr.CodeOf(err) == "duplicate_idempotency_key" {
		// Lost a race with an identical request.
		if existing, ferr := s.findByKey(ctx, clientID, key); ferr == nil && existing != nil {
			return existing, false, nil
		}
	}
	if err != nil {
		return nil, false, err
	}
	if replay != nil {
		return replay, false, nil
	}
	return b, true, nil
}

// resolve finds the rule accepting iv. moving is the booking being
// rescheduled; its own seat on the rule does not count against capacity.
func (s *Service) resolve(ctx context.Context, tx store.Tx, professionalID uuid.UUID, iv timeslot.Interval, loc *time.Location, now time.Time, moving *domain.Booking) (*domain.AvailabilityRule, error) {
	rules, err := tx.ListRules(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	if moving != nil && moving.RuleID != nil {
		for i := range rules {
			if rules[i].ID == *moving.RuleID && rules[i].CurrentBookings > 0 {
				rules[i].CurrentBookings--
			}
		}
	}
	rule, err := availability.Check(rules, professionalID, iv, loc, now)
	if err != nil {
		s.metrics.ObserveRejection(apperr.CodeOf(err))
		return nil, err
	}
	return rule, nil
}

func (s *Service) findByKey(ctx context.Context, clientID uuid.UUID, key string) (*domain.Booking, error) {
	var found *domain.Booking
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		found, err = byKey(ctx, tx, clientID, key)
		return err
	})
	return found, err
}

// byKey returns the booking already holding key, or nil. A key held by
// another client is a Conflict.
func byKey(ctx context.Context, tx store.BookingRepository, clientID uuid.UUID, key string) (*domain.Booking, error) {
	b, err := tx.GetBookingByIdempotencyKey(ctx, key)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if b.ClientID != clientID {
		return nil, apperr.Conflict("duplicate_idempotency_key", "idempotency key already used")
	}
	return b, nil
}

// UpdateStatus applies one transition from the status table. Cancelling frees
// the slot and the rule seat and reverses any settled payment.
func (s *Service) UpdateStatus(ctx context.Context, actor domain.Actor, id uuid.UUID, to domain.BookingStatus, notes string) (*domain.Booking, error) {
	ctx, span := tracer.Start(ctx, "bookings.update_status")
	defer span.End()
	span.SetAttributes(
		attribute.String("marketplace.booking_id", id.String()),
		attribute.String("marketplace.status", string(to)),
	)

	var (
		out          *domain.Booking
		cancelIntent string
	)
	notes = strings.TrimSpace(notes)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.GetBookingForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := ValidateTransition(*b, to, actor); err != nil {
			return err
		}
		from := b.Status
		now := s.now().UTC()
		b.Status = to

		var evt events.CanonicalEvent
		switch to {
		case domain.BookingConfirmed:
			setNotes(&b.ProfessionalNotes, notes)
			evt = events.BookingConfirmedV1{BookingSnapshot: snapshot(b), ConfirmedAt: now}
		case domain.BookingCompleted:
			b.CompletedAt = &now
			setNotes(&b.ProfessionalNotes, notes)
			evt = events.BookingCompletedV1{BookingSnapshot: snapshot(b), CompletedAt: now}
		case domain.BookingNoShow:
			setNotes(&b.ProfessionalNotes, notes)
			evt = events.BookingNoShowV1{BookingSnapshot: snapshot(b), MarkedAt: now}
		case domain.BookingCancelled:
			refunded, err := s.cancel(ctx, tx, b, actor, notes, now)
			if err != nil {
				return err
			}
			if b.PaymentStatus == domain.PaymentPending && b.PaymentIntentID != nil {
				cancelIntent = *b.PaymentIntentID
			}
			evt = events.BookingCancelledV1{
				BookingSnapshot: snapshot(b),
				CancelledBy:     string(actor.Role),
				Reason:          notes,
				RefundCents:     int64(refunded),
				CancelledAt:     now,
			}
		}
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		if err := store.AppendEvent(ctx, tx, aggregate(b), evt); err != nil {
			return err
		}
		s.logger.Info("booking status updated", "booking_id", b.ID, "from", from, "to", to, "actor_role", actor.Role)
		out = b
		return nil
	})
	s.observe("update_status", err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if cancelIntent != "" {
		s.cancelIntent(ctx, out.ID, cancelIntent)
	}
	return out, nil
}

// cancel marks b cancelled inside tx and returns the gross amount reversed
// from the professional's account.
func (s *Service) cancel(ctx context.Context, tx store.Tx, b *domain.Booking, actor domain.Actor, reason string, now time.Time) (money.Cents, error) {
	b.Status = domain.BookingCancelled
	b.CancelledAt = &now
	if actor.ID != uuid.Nil {
		by := actor.ID
		b.CancelledBy = &by
	}
	setNotes(&b.CancellationNote, reason)
	if err := releaseSeat(ctx, tx, b); err != nil {
		return 0, err
	}
	if !b.PaymentStatus.Settled() {
		return 0, nil
	}
	refund, err := s.ledger.RefundRemaining(ctx, tx, b, "booking cancelled")
	if err != nil {
		return 0, err
	}
	b.PaymentStatus = domain.PaymentFullyRefunded
	if refund == nil {
		return 0, nil
	}
	return refund.Transaction.GrossAmount, nil
}

func (s *Service) cancelIntent(ctx context.Context, bookingID uuid.UUID, intentID string) {
	if s.gateway == nil {
		return
	}
	if _, err := s.gateway.Cancel(ctx, intentID); err != nil {
		s.logger.Warn("failed to cancel payment intent", "booking_id", bookingID, "intent_id", intentID, "error", err)
	}
}

func releaseSeat(ctx context.Context, tx store.RuleRepository, b *domain.Booking) error {
	if b.RuleID == nil {
		return nil
	}
	err := tx.AdjustRuleBookings(ctx, *b.RuleID, -1)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil
	}
	return err
}

// Reschedule moves a live booking to newStart, keeping its duration and price.
// The replacement is a new PENDING booking linked both ways to the original,
// which becomes RESCHEDULED. Both writes commit together or not at all.
func (s *Service) Reschedule(ctx context.Context, actor domain.Actor, id uuid.UUID, newStart time.Time, notes string) (*domain.Booking, error) {
	ctx, span := tracer.Start(ctx, "bookings.reschedule")
	defer span.End()
	span.SetAttributes(attribute.String("marketplace.booking_id", id.String()))

	if newStart.IsZero() {
		return nil, apperr.Validation("invalid_start_time", "newStartTime is required")
	}
	now := s.now()
	if err := availability.CheckLeadTime(newStart, now, s.minNotice); err != nil {
		s.observe("reschedule", err)
		return nil, err
	}

	var moved *domain.Booking
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		old, err := tx.GetBookingForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !old.IsParty(actor) && !actor.IsPrivileged() {
			return apperr.Forbidden("not_booking_party", "you can only reschedule your own bookings")
		}
		if !canReschedule(old.Status) {
			return apperr.InvalidTransition("cannot_reschedule", "a %s booking cannot be rescheduled", old.Status)
		}
		pro, err := s.directory.GetProfessional(ctx, old.ProfessionalID)
		if err != nil {
			return err
		}
		iv := old.Interval().Shift(newStart)
		if err := s.guard.Claim(ctx, tx, old.ProfessionalID, iv, &old.ID); err != nil {
			return err
		}
		rule, err := s.resolve(ctx, tx, old.ProfessionalID, iv, directory.Location(pro), now, old)
		if err != nil {
			return err
		}

		at := now.UTC()
		by := actor.ID
		moved = &domain.Booking{
			ID:              uuid.New(),
			ClientID:        old.ClientID,
			ProfessionalID:  old.ProfessionalID,
			ServiceID:       old.ServiceID,
			RuleID:          &rule.ID,
			StartTime:       iv.Start.UTC(),
			EndTime:         iv.End.UTC(),
			Price:           old.Price,
			Status:          domain.BookingPending,
			PaymentStatus:   old.PaymentStatus,
			BookingType:     old.BookingType,
			PaymentIntentID: old.PaymentIntentID,
			Location:        old.Location,
			ClientNotes:     old.ClientNotes,
			RescheduledFrom: &old.ID,
			RescheduledAt:   &at,
			RescheduledBy:   &by,
		}
		moved.ProfessionalNotes = notes
		if strings.TrimSpace(notes) == "" {
			moved.ProfessionalNotes = fmt.Sprintf("Rescheduled from %s", old.StartTime.UTC().Format(time.RFC3339))
		}
		if moved.PaymentStatus == domain.PaymentFailed {
			moved.PaymentStatus = domain.PaymentPending
			moved.PaymentIntentID = nil
		}

		// The original gives up its slot and intent id before the insert so
		// the store's overlap and uniqueness constraints accept the replacement.
		previousStart := old.StartTime
		old.Status = domain.BookingRescheduled
		old.PaymentIntentID = nil
		old.RescheduledAt = &at
		old.RescheduledBy = &by
		if err := tx.UpdateBooking(ctx, old); err != nil {
			return err
		}
		if err := tx.InsertBooking(ctx, moved); err != nil {
			return err
		}
		old.RescheduledTo = &moved.ID
		if err := tx.UpdateBooking(ctx, old); err != nil {
			return err
		}
		if err := releaseSeat(ctx, tx, old); err != nil {
			return err
		}
		if err := tx.AdjustRuleBookings(ctx, rule.ID, 1); err != nil {
			return err
		}
		return store.AppendEvent(ctx, tx, aggregate(moved), events.BookingRescheduledV1{
			BookingSnapshot:   snapshot(moved),
			PreviousBookingID: old.ID.String(),
			PreviousStartTime: previousStart,
			RescheduledAt:     at,
		})
	})
	s.observe("reschedule", err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.Info("booking rescheduled", "booking_id", id, "new_booking_id", moved.ID, "start_time", moved.StartTime)
	return moved, nil
}

// UpdateRequest edits a booking in place. Nil fields are left unchanged;
// time changes go through Reschedule.
type UpdateRequest struct {
	BookingType *domain.BookingType `json:"bookingType,omitempty"`
	Location    *domain.Location    `json:"location,omitempty"`
	Notes       *string             `json:"notes,omitempty"`
}

func (req UpdateRequest) repricing() bool {
	return req.BookingType != nil || req.Location != nil
}

// Update lets a party edit a PENDING booking. The client writes client notes
// and the professional writes professional notes. Changing the booking type
// or location re-quotes the booking at its snapshotted platform fee, which is
// refused once a payment intent exists.
func (s *Service) Update(ctx context.Context, actor domain.Actor, id uuid.UUID, req UpdateRequest) (*domain.Booking, error) {
	ctx, span := tracer.Start(ctx, "bookings.update")
	defer span.End()
	span.SetAttributes(attribute.String("marketplace.booking_id", id.String()))

	var out *domain.Booking
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.GetBookingForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !b.IsParty(actor) {
			return apperr.Forbidden("not_booking_party", "you can only update your own bookings")
		}
		if b.Status != domain.BookingPending {
			return apperr.InvalidState("booking_not_pending", "a %s booking cannot be edited", b.Status)
		}
		if req.Notes != nil {
			notes := strings.TrimSpace(*req.Notes)
			if actor.Role == domain.RoleClient {
				b.ClientNotes = notes
			} else {
				b.ProfessionalNotes = notes
			}
		}

		previous := b.Price.Total
		if req.repricing() {
			if b.PaymentIntentID != nil {
				return apperr.InvalidState("payment_in_progress", "pricing cannot change after a payment intent was created")
			}
			if req.BookingType != nil {
				if !req.BookingType.Valid() {
					return apperr.Validation("invalid_booking_type", "unknown booking type %q", *req.BookingType)
				}
				b.BookingType = *req.BookingType
			}
			if req.Location != nil {
				b.Location = req.Location
			}
			if b.BookingType == domain.BookingHomeVisit && (b.Location == nil || strings.TrimSpace(b.Location.Address) == "") {
				return apperr.Validation("location_required", "home visits require a location")
			}
			pro, err := s.directory.GetProfessional(ctx, b.ProfessionalID)
			if err != nil {
				return err
			}
			svc, err := s.directory.GetService(ctx, b.ServiceID)
			if err != nil {
				return err
			}
			cfg := s.pricing.Snapshot()
			cfg.PlatformFeeBps = b.Price.PlatformFeeBps
			price, err := pricing.Quote(pricing.Input{
				Service:      *svc,
				Professional: *pro,
				BookingType:  b.BookingType,
				Discount:     b.Price.Discount,
			}, cfg)
			if err != nil {
				return err
			}
			b.Price = price
		}

		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		out = b
		return store.AppendEvent(ctx, tx, aggregate(b), events.BookingUpdatedV1{
			BookingSnapshot:    snapshot(b),
			BookingType:        string(b.BookingType),
			PreviousTotalCents: int64(previous),
			UpdatedAt:          s.now().UTC(),
		})
	})
	s.observe("update", err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return out, nil
}

// AddReview records the client's rating of a completed booking once.
func (s *Service) AddReview(ctx context.Context, actor domain.Actor, id uuid.UUID, rating int, review string) (*domain.Booking, error) {
	var out *domain.Booking
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.GetBookingForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if actor.Role != domain.RoleClient || actor.ID != b.ClientID {
			return apperr.Forbidden("client_only", "only the client can review a booking")
		}
		if b.Status != domain.BookingCompleted {
			return apperr.InvalidState("booking_not_completed", "only completed bookings can be reviewed")
		}
		if b.Rating != nil {
			return apperr.Conflict("already_reviewed", "this booking has already been reviewed")
		}
		if rating < 1 || rating > 5 {
			return apperr.Validation("invalid_rating", "rating must be between 1 and 5")
		}
		now := s.now().UTC()
		b.Rating = &rating
		b.Review = strings.TrimSpace(review)
		b.ReviewedAt = &now
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	s.observe("review", err)
	return out, err
}

// Get returns a booking visible to its parties and administrators.
func (s *Service) Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Booking, error) {
	var out *domain.Booking
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if !b.IsParty(actor) && !actor.IsPrivileged() {
			return apperr.Forbidden("not_booking_party", "you can only view your own bookings")
		}
		out = b
		return nil
	})
	return out, err
}

// ListQuery narrows List. Clients and professionals are always scoped to
// their own bookings.
type ListQuery struct {
	ClientID       *uuid.UUID
	ProfessionalID *uuid.UUID
	Status         *domain.BookingStatus
	Upcoming       bool
	Limit          int
	Offset         int
}

func (s *Service) List(ctx context.Context, actor domain.Actor, q ListQuery) ([]domain.Booking, error) {
	filter := store.BookingFilter{
		ClientID:       q.ClientID,
		ProfessionalID: q.ProfessionalID,
		Status:         q.Status,
		Limit:          q.Limit,
		Offset:         q.Offset,
	}
	switch actor.Role {
	case domain.RoleClient:
		id := actor.ID
		filter.ClientID = &id
	case domain.RoleProfessional:
		id := actor.ID
		filter.ProfessionalID = &id
	case domain.RoleAdmin, domain.RoleSystem:
	default:
		return nil, apperr.Forbidden("unauthenticated", "authentication required")
	}
	if q.Upcoming {
		now := s.now()
		filter.StartsAfter = &now
		if filter.Status == nil {
			confirmed := domain.BookingConfirmed
			filter.Status = &confirmed
		}
	}

	var out []domain.Booking
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.ListBookings(ctx, filter)
		return err
	})
	if out == nil {
		out = []domain.Booking{}
	}
	return out, err
}

// Delete soft-deletes a finished booking. Live bookings must be cancelled
// first, and rescheduled ones stay as payment lineage.
func (s *Service) Delete(ctx context.Context, actor domain.Actor, id uuid.UUID) error {
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.GetBookingForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !b.IsParty(actor) && !actor.IsAdmin() {
			return apperr.Forbidden("not_booking_party", "you can only delete your own bookings")
		}
		switch b.Status {
		case domain.BookingCancelled, domain.BookingCompleted, domain.BookingNoShow:
		default:
			return apperr.InvalidState("booking_not_finished", "a %s booking cannot be deleted", b.Status)
		}
		now := s.now().UTC()
		b.DeletedAt = &now
		return tx.UpdateBooking(ctx, b)
	})
	s.observe("delete", err)
	return err
}

func (s *Service) observe(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = apperr.CodeOf(err)
	}
	s.metrics.ObserveBooking(operation, outcome)
}

func setNotes(dst *string, notes string) {
	if notes != "" {
		*dst = notes
	}
}

func aggregate(b *domain.Booking) string {
	return "booking:" + b.ID.String()
}

func snapshot(b *domain.Booking) events.BookingSnapshot {
	return events.BookingSnapshot{
		BookingID:      b.ID.String(),
		ClientID:       b.ClientID.String(),
		ProfessionalID: b.ProfessionalID.String(),
		ServiceID:      b.ServiceID.String(),
		StartTime:      b.StartTime,
		EndTime:        b.EndTime,
		TotalCents:     int64(b.Price.Total),
		Status:         string(b.Status),
		PaymentStatus:  string(b.PaymentStatus),
	}
}
