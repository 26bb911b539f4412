package domain

import (
	"github.com/google/uuid"

	"github.com/wolfman30/pro-marketplace/internal/money"
)

// Professional is the subset of the professional profile the core reads.
type Professional struct {
	ID                  uuid.UUID   `json:"id"`
	Email               string      `json:"email"`
	BusinessName        string      `json:"businessName"`
	Timezone            string      `json:"timezone"`
	BaseTravelFee       money.Cents `json:"baseTravelFeeCents"`
	TravelFeePerKm      money.Cents `json:"travelFeePerKmCents"`
	MaxTravelDistanceKm int         `json:"maxTravelDistanceKm"`
	Active              bool        `json:"active"`
}

type Service struct {
	ID              uuid.UUID    `json:"id"`
	ProfessionalID  uuid.UUID    `json:"professionalId"`
	Name            string       `json:"name"`
	BasePrice       money.Cents  `json:"basePriceCents"`
	DiscountedPrice *money.Cents `json:"discountedPriceCents,omitempty"`
	DurationMinutes int          `json:"durationMinutes"`
	Active          bool         `json:"active"`
}
