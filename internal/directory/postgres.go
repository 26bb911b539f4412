package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/internal/domain"
	"github.com/wolfman30/pro-marketplace/internal/money"
)

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres reads the professionals and services tables.
type Postgres struct {
	db db
}

func NewPostgres(conn db) *Postgres {
	if conn == nil {
		panic("directory: db required")
	}
	return &Postgres{db: conn}
}

func (p *Postgres) GetProfessional(ctx context.Context, id uuid.UUID) (*domain.Professional, error) {
	query := `
		SELECT id, email, business_name, timezone, base_travel_fee_cents,
			travel_fee_per_km_cents, max_travel_distance_km, active
		FROM professionals
		WHERE id = $1
	`
	var (
		pro            domain.Professional
		baseFee, perKm int64
	)
	err := p.db.QueryRow(ctx, query, id).Scan(
		&pro.ID, &pro.Email, &pro.BusinessName, &pro.Timezone, &baseFee,
		&perKm, &pro.MaxTravelDistanceKm, &pro.Active,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("professional_not_found", "professional %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("directory: get professional: %w", err)
	}
	pro.BaseTravelFee = money.Cents(baseFee)
	pro.TravelFeePerKm = money.Cents(perKm)
	return &pro, nil
}

func (p *Postgres) GetService(ctx context.Context, id uuid.UUID) (*domain.Service, error) {
	query := `
		SELECT id, professional_id, name, base_price_cents, discounted_price_cents, duration_minutes, active
		FROM services
		WHERE id = $1
	`
	var (
		svc        domain.Service
		base       int64
		discounted *int64
	)
	err := p.db.QueryRow(ctx, query, id).Scan(
		&svc.ID, &svc.ProfessionalID, &svc.Name, &base, &discounted, &svc.DurationMinutes, &svc.Active,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("service_not_found", "service %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("directory: get service: %w", err)
	}
	svc.BasePrice = money.Cents(base)
	if discounted != nil {
		d := money.Cents(*discounted)
		svc.DiscountedPrice = &d
	}
	return &svc, nil
}

// UpsertProfessional is used by the seed command.
func (p *Postgres) UpsertProfessional(ctx context.Context, pro domain.Professional) error {
	query := `
		INSERT INTO professionals (
			id, email, business_name, timezone, base_travel_fee_cents,
			travel_fee_per_km_cents, max_travel_distance_km, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			business_name = EXCLUDED.business_name,
			timezone = EXCLUDED.timezone,
			base_travel_fee_cents = EXCLUDED.base_travel_fee_cents,
			travel_fee_per_km_cents = EXCLUDED.travel_fee_per_km_cents,
			max_travel_distance_km = EXCLUDED.max_travel_distance_km,
			active = EXCLUDED.active,
			updated_at = now()
	`
	_, err := p.db.Exec(ctx, query,
		pro.ID, pro.Email, pro.BusinessName, pro.Timezone, int64(pro.BaseTravelFee),
		int64(pro.TravelFeePerKm), pro.MaxTravelDistanceKm, pro.Active,
	)
	if err != nil {
		return fmt.Errorf("directory: upsert professional: %w", err)
	}
	return nil
}

func (p *Postgres) UpsertService(ctx context.Context, svc domain.Service) error {
	var discounted *int64
	if svc.DiscountedPrice != nil {
		v := int64(*svc.DiscountedPrice)
		discounted = &v
	}
	query := `
		INSERT INTO services (
			id, professional_id, name, base_price_cents, discounted_price_cents, duration_minutes, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			base_price_cents = EXCLUDED.base_price_cents,
			discounted_price_cents = EXCLUDED.discounted_price_cents,
			duration_minutes = EXCLUDED.duration_minutes,
			active = EXCLUDED.active,
			updated_at = now()
	`
	_, err := p.db.Exec(ctx, query,
		svc.ID, svc.ProfessionalID, svc.Name, int64(svc.BasePrice), discounted, svc.DurationMinutes, svc.Active,
	)
	if err != nil {
		return fmt.Errorf("directory: upsert service: %w", err)
	}
	return nil
}
