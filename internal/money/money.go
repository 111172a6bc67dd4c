// Package money provides exact integer-cents arithmetic. Cents are the
// authoritative representation of every stored amount; unit values are always
// derived from cents, never edited independently.
package money

import "math"

// ToCents converts a unit amount (e.g. 49.99) to whole cents, rounding to the
// nearest cent. Each call rounds independently, so repeated conversions cannot
// accumulate floating drift.
func ToCents(unit float64) int64 {
	return int64(math.Round(unit * 100))
}

// CentsToUnit converts whole cents back to a unit amount.
func CentsToUnit(cents int64) float64 {
	return float64(cents) / 100
}

// SplitCommission divides gross cents into commission and net for a percentage
// rate (0-100). The rate is applied at two decimal places of precision: it is
// converted to whole basis points once, then the commission is computed with
// integer rounding (half up). commission + net == gross always holds.
func SplitCommission(grossCents int64, ratePercent float64) (commissionCents, netCents int64) {
	if ratePercent < 0 {
		ratePercent = 0
	}
	if ratePercent > 100 {
		ratePercent = 100
	}
	bp := int64(math.Round(ratePercent * 100))
	commissionCents = (grossCents*bp + 5000) / 10000
	netCents = grossCents - commissionCents
	return commissionCents, netCents
}
