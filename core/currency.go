package core

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the number of decimals of the settlement token
const TokenDecimals = 6

// PlaceholderAmount is shown in place of a figure that is not known
const PlaceholderAmount = "$--"

// FormatAmount renders an amount in the token's smallest unit as dollars
// with exactly two fractional digits, truncated toward zero.
func FormatAmount(units *big.Int) string {
	if units == nil {
		units = new(big.Int)
	}

	d := decimal.NewFromBigInt(units, -TokenDecimals).Truncate(2)
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

// ParseUnits converts a decimal figure in smallest units to an integer,
// rejecting fractional values
func ParseUnits(d decimal.Decimal) (*big.Int, error) {
	if !d.Equal(d.Truncate(0)) {
		return nil, fmt.Errorf("amount %s is not a whole number of units", d.String())
	}
	return d.BigInt(), nil
}
