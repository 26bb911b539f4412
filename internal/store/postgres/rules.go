package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/pro-marketplace/internal/domain"
	"github.com/wolfman30/pro-marketplace/internal/timeslot"
)

// live is the active-record predicate applied to every soft-deletable table.
const live = "deleted_at IS NULL"

const ruleColumns = `id, professional_id, day_of_week, specific_date, start_minute, end_minute,
	break_start_minute, break_end_minute, status, max_bookings, current_bookings,
	advance_booking_hours, is_active, notes, created_at, updated_at, deleted_at`

func scanRule(row pgx.Row) (*domain.AvailabilityRule, error) {
	var (
		r                    domain.AvailabilityRule
		dayOfWeek            *int
		startMin, endMin     int
		breakStart, breakEnd *int
		status               string
	)
	if err := row.Scan(
		&r.ID, &r.ProfessionalID, &dayOfWeek, &r.Date, &startMin, &endMin,
		&breakStart, &breakEnd, &status, &r.MaxBookings, &r.CurrentBookings,
		&r.AdvanceBookingHours, &r.IsActive, &r.Notes, &r.CreatedAt, &r.UpdatedAt, &r.DeletedAt,
	); err != nil {
		return nil, err
	}
	if dayOfWeek != nil {
		wd := time.Weekday(*dayOfWeek)
		r.DayOfWeek = &wd
	}
	r.Window = timeslot.Window{Start: timeslot.Clock(startMin), End: timeslot.Clock(endMin)}
	if breakStart != nil && breakEnd != nil {
		r.Break = &timeslot.Window{Start: timeslot.Clock(*breakStart), End: timeslot.Clock(*breakEnd)}
	}
	r.Status = domain.RuleStatus(status)
	return &r, nil
}

func ruleArgs(r *domain.AvailabilityRule) (dayOfWeek, breakStart, breakEnd *int) {
	if r.DayOfWeek != nil {
		v := int(*r.DayOfWeek)
		dayOfWeek = &v
	}
	if r.Break != nil {
		s, e := int(r.Break.Start), int(r.Break.End)
		breakStart, breakEnd = &s, &e
	}
	return dayOfWeek, breakStart, breakEnd
}

func (t *tx) InsertRule(ctx context.Context, r *domain.AvailabilityRule) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	dayOfWeek, breakStart, breakEnd := ruleArgs(r)
	query := `
		INSERT INTO availability_rules (
			id, professional_id, day_of_week, specific_date, start_minute, end_minute,
			break_start_minute, break_end_minute, status, max_bookings, current_bookings,
			advance_booking_hours, is_active, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`
	err := t.q.QueryRow(ctx, query,
		r.ID, r.ProfessionalID, dayOfWeek, r.Date, int(r.Window.Start), int(r.Window.End),
		breakStart, breakEnd, string(r.Status), r.MaxBookings, r.CurrentBookings,
		r.AdvanceBookingHours, r.IsActive, r.Notes,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return mapError(fmt.Errorf("postgres: insert rule: %w", err))
	}
	return nil
}

func (t *tx) UpdateRule(ctx context.Context, r *domain.AvailabilityRule) error {
	dayOfWeek, breakStart, breakEnd := ruleArgs(r)
	query := `
		UPDATE availability_rules SET
			day_of_week = $2, specific_date = $3, start_minute = $4, end_minute = $5,
			break_start_minute = $6, break_end_minute = $7, status = $8, max_bookings = $9,
			advance_booking_hours = $10, is_active = $11, notes = $12, deleted_at = $13,
			updated_at = now()
		WHERE id = $1 AND ` + live + `
		RETURNING updated_at
	`
	err := t.q.QueryRow(ctx, query,
		r.ID, dayOfWeek, r.Date, int(r.Window.Start), int(r.Window.End),
		breakStart, breakEnd, string(r.Status), r.MaxBookings,
		r.AdvanceBookingHours, r.IsActive, r.Notes, r.DeletedAt,
	).Scan(&r.UpdatedAt)
	if err != nil {
		return notFound(mapError(err), "rule_not_found", "availability rule %s not found", r.ID)
	}
	return nil
}

func (t *tx) GetRule(ctx context.Context, id uuid.UUID) (*domain.AvailabilityRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM availability_rules WHERE id = $1 AND ` + live + ` FOR UPDATE`
	r, err := scanRule(t.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "rule_not_found", "availability rule %s not found", id)
	}
	return r, nil
}

func (t *tx) ListRules(ctx context.Context, professionalID uuid.UUID) ([]domain.AvailabilityRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM availability_rules
		WHERE professional_id = $1 AND ` + live + `
		ORDER BY start_minute, created_at`
	rows, err := t.q.Query(ctx, query, professionalID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list rules: %w", err)
	}
	defer rows.Close()

	var out []domain.AvailabilityRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan rule: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (t *tx) AdjustRuleBookings(ctx context.Context, ruleID uuid.UUID, delta int) error {
	query := `
		UPDATE availability_rules
		SET current_bookings = GREATEST(current_bookings + $2, 0), updated_at = now()
		WHERE id = $1
	`
	ct, err := t.q.Exec(ctx, query, ruleID, delta)
	if err != nil {
		return fmt.Errorf("postgres: adjust rule bookings: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return notFound(pgx.ErrNoRows, "rule_not_found", "availability rule %s not found", ruleID)
	}
	return nil
}
