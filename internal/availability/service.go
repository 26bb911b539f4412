package availability

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/internal/directory"
	"github.com/wolfman30/pro-marketplace/internal/domain"
	"github.com/wolfman30/pro-marketplace/internal/store"
	"github.com/wolfman30/pro-marketplace/internal/timeslot"
	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

const slotStep = 15 * time.Minute

// RuleInput is the writable part of an availability rule.
type RuleInput struct {
	DayOfWeek           *time.Weekday     `json:"dayOfWeek,omitempty"`
	Date                string            `json:"date,omitempty"`
	StartTime           timeslot.Clock    `json:"startTime"`
	EndTime             timeslot.Clock    `json:"endTime"`
	BreakStartTime      *timeslot.Clock   `json:"breakStartTime,omitempty"`
	BreakEndTime        *timeslot.Clock   `json:"breakEndTime,omitempty"`
	Status              domain.RuleStatus `json:"status,omitempty"`
	MaxBookings         *int              `json:"maxBookings,omitempty"`
	AdvanceBookingHours int               `json:"advanceBookingHours"`
	IsActive            *bool             `json:"isActive,omitempty"`
	Notes               string            `json:"notes,omitempty"`
}

func (in RuleInput) apply(r *domain.AvailabilityRule) error {
	r.DayOfWeek = in.DayOfWeek
	r.Date = nil
	if strings.TrimSpace(in.Date) != "" {
		d, err := timeslot.ParseDate(in.Date, time.UTC)
		if err != nil {
			return err
		}
		r.Date = &d
	}
	r.Window = timeslot.Window{Start: in.StartTime, End: in.EndTime}
	r.Break = nil
	switch {
	case in.BreakStartTime != nil && in.BreakEndTime != nil:
		r.Break = &timeslot.Window{Start: *in.BreakStartTime, End: *in.BreakEndTime}
	case in.BreakStartTime != nil || in.BreakEndTime != nil:
		return apperr.Validation("invalid_break", "breakStartTime and breakEndTime must be set together")
	}
	r.Status = in.Status
	if r.Status == "" {
		r.Status = domain.RuleAvailable
	}
	r.MaxBookings = in.MaxBookings
	r.AdvanceBookingHours = in.AdvanceBookingHours
	if in.IsActive != nil {
		r.IsActive = *in.IsActive
	}
	r.Notes = strings.TrimSpace(in.Notes)
	return nil
}

// Slot is a bookable start time returned by AvailableSlots.
type Slot struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// Service manages availability rules and answers slot queries.
type Service struct {
	store     store.Store
	directory directory.Directory
	logger    *logging.Logger
	now       func() time.Time
}

func NewService(st store.Store, dir directory.Directory, logger *logging.Logger) *Service {
	if st == nil {
		panic("availability: store required")
	}
	if dir == nil {
		panic("availability: directory required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: st, directory: dir, logger: logger, now: time.Now}
}

// WithClock overrides the time source (tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func canManage(actor domain.Actor, professionalID uuid.UUID) error {
	if actor.IsAdmin() || (actor.Role == domain.RoleProfessional && actor.ID == professionalID) {
		return nil
	}
	return apperr.Forbidden("not_rule_owner", "only the professional or an admin may manage availability")
}

// checkOverlap rejects a rule whose window overlaps another rule on the same weekday or date.
func checkOverlap(existing []domain.AvailabilityRule, r domain.AvailabilityRule) error {
	for _, other := range existing {
		if other.ID == r.ID || !other.SameDay(r) {
			continue
		}
		if other.Window.Overlaps(r.Window) {
			return apperr.Conflict("rule_overlap", "overlapping availability %s-%s already exists for this day", other.Window.Start, other.Window.End)
		}
	}
	return nil
}

func (s *Service) CreateRule(ctx context.Context, actor domain.Actor, professionalID uuid.UUID, in RuleInput) (*domain.AvailabilityRule, error) {
	if err := canManage(actor, professionalID); err != nil {
		return nil, err
	}
	if _, err := s.directory.GetProfessional(ctx, professionalID); err != nil {
		return nil, err
	}
	rule := domain.AvailabilityRule{ID: uuid.New(), ProfessionalID: professionalID, IsActive: true}
	if err := in.apply(&rule); err != nil {
		return nil, err
	}
	if err := Validate(rule); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockProfessional(ctx, professionalID); err != nil {
			return err
		}
		existing, err := tx.ListRules(ctx, professionalID)
		if err != nil {
			return err
		}
		if err := checkOverlap(existing, rule); err != nil {
			return err
		}
		return tx.InsertRule(ctx, &rule)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("availability rule created", "rule_id", rule.ID, "professional_id", professionalID, "override", rule.IsOverride())
	return &rule, nil
}

// mutate loads a rule under the professional lock, applies fn and saves it.
func (s *Service) mutate(ctx context.Context, actor domain.Actor, id uuid.UUID, fn func(ctx context.Context, tx store.Tx, r *domain.AvailabilityRule) error) (*domain.AvailabilityRule, error) {
	var out *domain.AvailabilityRule
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		rule, err := tx.GetRule(ctx, id)
		if err != nil {
			return err
		}
		if err := canManage(actor, rule.ProfessionalID); err != nil {
			return err
		}
		if err := tx.LockProfessional(ctx, rule.ProfessionalID); err != nil {
			return err
		}
		if err := fn(ctx, tx, rule); err != nil {
			return err
		}
		if err := tx.UpdateRule(ctx, rule); err != nil {
			return err
		}
		out = rule
		return nil
	})
	return out, err
}

func (s *Service) UpdateRule(ctx context.Context, actor domain.Actor, id uuid.UUID, in RuleInput) (*domain.AvailabilityRule, error) {
	return s.mutate(ctx, actor, id, func(ctx context.Context, tx store.Tx, r *domain.AvailabilityRule) error {
		if err := in.apply(r); err != nil {
			return err
		}
		if err := Validate(*r); err != nil {
			return err
		}
		existing, err := tx.ListRules(ctx, r.ProfessionalID)
		if err != nil {
			return err
		}
		return checkOverlap(existing, *r)
	})
}

// DeleteRule soft-deletes the rule; it disappears from every later read.
func (s *Service) DeleteRule(ctx context.Context, actor domain.Actor, id uuid.UUID) error {
	_, err := s.mutate(ctx, actor, id, func(_ context.Context, _ store.Tx, r *domain.AvailabilityRule) error {
		now := s.now().UTC()
		r.DeletedAt = &now
		return nil
	})
	if err == nil {
		s.logger.Info("availability rule deleted", "rule_id", id)
	}
	return err
}

func (s *Service) SetStatus(ctx context.Context, actor domain.Actor, id uuid.UUID, status domain.RuleStatus) (*domain.AvailabilityRule, error) {
	if !status.Valid() {
		return nil, apperr.Validation("invalid_status", "unknown availability status %q", status)
	}
	return s.mutate(ctx, actor, id, func(_ context.Context, _ store.Tx, r *domain.AvailabilityRule) error {
		r.Status = status
		return nil
	})
}

func (s *Service) ToggleActive(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.AvailabilityRule, error) {
	return s.mutate(ctx, actor, id, func(_ context.Context, _ store.Tx, r *domain.AvailabilityRule) error {
		r.IsActive = !r.IsActive
		return nil
	})
}

// ListRules returns every live rule to the owner and admins; everyone else
// sees only the rules that can currently take bookings.
func (s *Service) ListRules(ctx context.Context, actor domain.Actor, professionalID uuid.UUID) ([]domain.AvailabilityRule, error) {
	rules, err := s.readRules(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	if canManage(actor, professionalID) == nil {
		return rules, nil
	}
	public := make([]domain.AvailabilityRule, 0, len(rules))
	for _, r := range rules {
		if Active(r) && r.Status == domain.RuleAvailable {
			public = append(public, r)
		}
	}
	return public, nil
}

// WeeklySchedule lists the recurring rules ordered by weekday and start time.
func (s *Service) WeeklySchedule(ctx context.Context, professionalID uuid.UUID) ([]domain.AvailabilityRule, error) {
	rules, err := s.readRules(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	weekly := make([]domain.AvailabilityRule, 0, len(rules))
	for _, r := range rules {
		if r.DayOfWeek != nil {
			weekly = append(weekly, r)
		}
	}
	sortWeekly(weekly)
	return weekly, nil
}

func sortWeekly(rules []domain.AvailabilityRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if *rules[i].DayOfWeek != *rules[j].DayOfWeek {
			return *rules[i].DayOfWeek < *rules[j].DayOfWeek
		}
		return rules[i].Window.Start < rules[j].Window.Start
	})
}

func (s *Service) readRules(ctx context.Context, professionalID uuid.UUID) ([]domain.AvailabilityRule, error) {
	var rules []domain.AvailabilityRule
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		rules, err = tx.ListRules(ctx, professionalID)
		return err
	})
	return rules, err
}

// AvailableSlots enumerates bookable start times of the given duration on a
// local date, skipping the break, existing bookings and slots inside the
// notice period.
func (s *Service) AvailableSlots(ctx context.Context, professionalID uuid.UUID, date string, durationMinutes int, minNotice time.Duration) ([]Slot, error) {
	if durationMinutes <= 0 {
		return nil, apperr.Validation("invalid_duration", "duration must be positive")
	}
	pro, err := s.directory.GetProfessional(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	loc := directory.Location(pro)
	day, err := timeslot.ParseDate(date, loc)
	if err != nil {
		return nil, err
	}

	var (
		rules  []domain.AvailabilityRule
		booked []domain.Booking
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if rules, err = tx.ListRules(ctx, professionalID); err != nil {
			return err
		}
		dayIv := timeslot.Interval{Start: day, End: timeslot.EndOfDay.On(day, loc)}
		booked, err = tx.ListOverlapping(ctx, professionalID, dayIv, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	rule, ok := Resolve(rules, professionalID, day)
	if !ok {
		return []Slot{}, nil
	}
	now := s.now()
	length := time.Duration(durationMinutes) * time.Minute
	slots := []Slot{}
	for start := rule.Window.Start.On(day, loc); !start.Add(length).After(rule.Window.End.On(day, loc)); start = start.Add(slotStep) {
		iv := timeslot.Interval{Start: start, End: start.Add(length)}
		w, _, err := timeslot.WindowOf(iv, loc)
		if err != nil {
			break
		}
		if Accepts(*rule, w) != nil || CheckNotice(*rule, start, now) != nil || CheckLeadTime(start, now, minNotice) != nil {
			continue
		}
		if overlapsAny(booked, iv) {
			continue
		}
		slots = append(slots, Slot{StartTime: iv.Start, EndTime: iv.End})
	}
	return slots, nil
}

func overlapsAny(bookings []domain.Booking, iv timeslot.Interval) bool {
	for _, b := range bookings {
		if b.Interval().Overlaps(iv) {
			return true
		}
	}
	return false
}
