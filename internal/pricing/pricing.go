// Package pricing computes booking prices and holds the mutable platform
// pricing configuration.
package pricing

import (
	"time"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/internal/domain"
	"github.com/wolfman30/pro-marketplace/internal/money"
)

// Config is a snapshot of the platform pricing configuration.
type Config struct {
	PlatformFeeBps     int         `json:"platformFeeBps"`
	BankTransferFeeBps int         `json:"bankTransferFeeBps"`
	MinWithdrawal      money.Cents `json:"minWithdrawalCents"`
	MaxWithdrawal      money.Cents `json:"maxWithdrawalCents"`
	UpdatedAt          time.Time   `json:"updatedAt"`
}

// DefaultConfig mirrors the seed values: 15% platform fee, 1% bank transfer
// fee, withdrawals between $25.00 and $10,000.00.
func DefaultConfig() Config {
	return Config{
		PlatformFeeBps:     1500,
		BankTransferFeeBps: 100,
		MinWithdrawal:      2500,
		MaxWithdrawal:      1_000_000,
	}
}

func (c Config) Validate() error {
	if c.PlatformFeeBps < 0 || c.PlatformFeeBps > money.BpsScale {
		return apperr.Validation("invalid_platform_fee", "platform fee must be between 0%% and 100%%")
	}
	if c.BankTransferFeeBps < 0 || c.BankTransferFeeBps > money.BpsScale {
		return apperr.Validation("invalid_transfer_fee", "bank transfer fee must be between 0%% and 100%%")
	}
	if c.MinWithdrawal <= 0 {
		return apperr.Validation("invalid_min_withdrawal", "minimum withdrawal must be positive")
	}
	if c.MaxWithdrawal < c.MinWithdrawal {
		return apperr.Validation("invalid_max_withdrawal", "maximum withdrawal must not be below the minimum")
	}
	return nil
}

// Input carries everything a quote depends on.
type Input struct {
	Service      domain.Service
	Professional domain.Professional
	BookingType  domain.BookingType
	Discount     money.Cents
}

// Quote prices a booking. Travel is a flat fee charged only for home visits;
// the per-km rate stored on the professional is not applied.
func Quote(in Input, cfg Config) (domain.Price, error) {
	if in.Discount < 0 {
		return domain.Price{}, apperr.Validation("invalid_discount", "discount must not be negative")
	}
	price := domain.Price{
		ServicePrice:   in.Service.BasePrice,
		PlatformFeeBps: cfg.PlatformFeeBps,
		Discount:       in.Discount,
	}
	if in.Service.DiscountedPrice != nil {
		price.ServicePrice = *in.Service.DiscountedPrice
	}
	if in.BookingType == domain.BookingHomeVisit {
		price.TravelFee = in.Professional.BaseTravelFee
	}
	if price.ServicePrice < 0 || price.TravelFee < 0 {
		return domain.Price{}, apperr.Validation("invalid_price", "service price and travel fee must not be negative")
	}
	price.PlatformFee = money.ApplyBps(price.Gross(), cfg.PlatformFeeBps)
	subtotal := price.Gross() + price.PlatformFee
	if in.Discount > subtotal {
		return domain.Price{}, apperr.Validation("invalid_discount", "discount %s exceeds the booking subtotal %s", in.Discount, subtotal)
	}
	price.Total = subtotal - in.Discount
	return price, nil
}

// WithdrawalFee is the processing fee charged for a withdrawal method.
func WithdrawalFee(method domain.WithdrawalMethod, amount money.Cents, cfg Config) money.Cents {
	if method == domain.WithdrawBankTransfer {
		return money.ApplyBps(amount, cfg.BankTransferFeeBps)
	}
	return 0
}
