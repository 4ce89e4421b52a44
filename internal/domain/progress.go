package domain

import "github.com/shopspring/decimal"

var (
	ten = decimal.NewFromInt(10)
	one = decimal.NewFromInt(1)
)

// tValueGuardPlaces drops division residue like 20.0000000000000001 before the ceiling.
const tValueGuardPlaces = 8

// TValue is the number of tranches deployed, rounded up to one decimal place.
// It returns zero when perTrade is not positive.
func TValue(averagePrice, quantity, perTrade decimal.Decimal) decimal.Decimal {
	if !perTrade.IsPositive() {
		return decimal.Zero
	}

	raw := averagePrice.Mul(quantity).Div(perTrade)
	return raw.Mul(ten).Round(tValueGuardPlaces).Ceil().Div(ten)
}
