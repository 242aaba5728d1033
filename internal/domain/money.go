package domain

import (
	"fmt"
	"math"
)

// DollarsToCents converts a float64 dollar amount to int64 cents. It
// rejects values with more than 2 decimal places. Rounding happens after
// scaling to absorb floating-point representation artifacts
// (e.g. 1.10 * 1000 = 1099.9999...).
func DollarsToCents(f float64) (int64, error) {
	scaled := math.Round(f * 1000)
	if math.Mod(scaled, 10) != 0 {
		return 0, fmt.Errorf("monetary values must have at most 2 decimal places")
	}
	return int64(math.Round(f * 100)), nil
}

// CentsToDollars converts an int64 cents value to a float64 dollar amount.
func CentsToDollars(c int64) float64 {
	return float64(c) / 100.0
}
