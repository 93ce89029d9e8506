package utils

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// GweiDecimals is the exponent between gwei and wei
const GweiDecimals = 9

// FormatUnits renders a raw token amount with the given number of decimals
func FormatUnits(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}

// ParseUnits converts a human readable amount into raw token units,
// truncating anything beyond the token precision.
func ParseUnits(s string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q must not be negative", s)
	}
	return d.Shift(decimals).Truncate(0).BigInt(), nil
}

// GweiToWei converts a gwei amount, possibly fractional, into wei
func GweiToWei(gwei float64) *big.Int {
	return decimal.NewFromFloat(gwei).Shift(GweiDecimals).Truncate(0).BigInt()
}
