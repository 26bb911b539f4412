// Package money represents currency amounts as integer minor units.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// BpsScale is the basis point denominator (100% == 10000 bps).
const BpsScale = 10000

// Cents is an amount in minor currency units.
type Cents int64

var hundred = decimal.NewFromInt(100)

// FromDecimalString parses a major-unit amount such as "75.50".
// Fractions of a cent are rounded half-up.
func FromDecimalString(s string) (Cents, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

// FromDecimal converts a major-unit decimal to cents, rounding half-up.
func FromDecimal(d decimal.Decimal) Cents {
	return Cents(d.Mul(hundred).Round(0).IntPart())
}

// Decimal returns the amount in major units.
func (c Cents) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(c)).Div(hundred)
}

// String renders the amount as a major-unit string with two decimals.
func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

func (c Cents) IsNegative() bool { return c < 0 }

// ApplyBps returns amount × bps / 10000 rounded half-up (away from zero).
func ApplyBps(amount Cents, bps int) Cents {
	return Prorate(amount, int64(bps), BpsScale)
}

// Prorate returns amount × num / den rounded half-up. den must be positive.
func Prorate(amount Cents, num, den int64) Cents {
	if den <= 0 {
		return 0
	}
	v := decimal.NewFromInt(int64(amount)).
		Mul(decimal.NewFromInt(num)).
		Div(decimal.NewFromInt(den)).
		Round(0)
	return Cents(v.IntPart())
}

// PercentToBps converts a percentage such as "15" or "2.5" into basis points.
func PercentToBps(pct string) (int, error) {
	d, err := decimal.NewFromString(pct)
	if err != nil {
		return 0, fmt.Errorf("money: parse percent %q: %w", pct, err)
	}
	return int(d.Mul(hundred).Round(0).IntPart()), nil
}

// BpsToPercent renders basis points as a percentage string.
func BpsToPercent(bps int) string {
	return decimal.NewFromInt(int64(bps)).Div(hundred).String()
}

func Min(a, b Cents) Cents {
	if a < b {
		return a
	}
	return b
}
