// Package money holds pence arithmetic shared by sales and bundles.
package money

import "github.com/shopspring/decimal"

// PerUnit splits totalPence across units, rounding half away from zero.
// A non-positive unit count yields zero.
func PerUnit(totalPence int64, units int) int64 {
	if units <= 0 {
		return 0
	}
	return decimal.NewFromInt(totalPence).
		Div(decimal.NewFromInt(int64(units))).
		Round(0).
		IntPart()
}

// Proportion returns floor(part * numerator / denominator) together with the
// fractional remainder, used for largest-remainder distribution.
func Proportion(part, numerator, denominator int) (int, decimal.Decimal) {
	if denominator <= 0 {
		return 0, decimal.Zero
	}
	exact := decimal.NewFromInt(int64(part)).
		Mul(decimal.NewFromInt(int64(numerator))).
		Div(decimal.NewFromInt(int64(denominator)))
	whole := exact.Floor()
	return int(whole.IntPart()), exact.Sub(whole)
}

// FormatPence renders pence as a pounds string such as "12.50".
func FormatPence(pence int64) string {
	return decimal.New(pence, -2).StringFixed(2)
}
