// Package money converts between major and minor currency units.
//
// Minor units (cents) are what the billing provider charges; major units
// (dollars) are what orders store after finalization. A fixed set of
// currencies has no minor-unit subdivision and passes through unchanged.
package money

import (
	"math"
	"strings"
)

// zeroDecimalCurrencies lists the provider-side currencies with no
// minor-unit subdivision. The set mirrors Stripe's zero-decimal list.
var zeroDecimalCurrencies = map[string]struct{}{
	"bif": {},
	"clp": {},
	"djf": {},
	"gnf": {},
	"jpy": {},
	"kmf": {},
	"krw": {},
	"mga": {},
	"pyg": {},
	"rwf": {},
	"ugx": {},
	"vnd": {},
	"vuv": {},
	"xaf": {},
	"xof": {},
	"xpf": {},
}

// IsZeroDecimal reports whether the currency has no minor-unit subdivision.
// The comparison is case-insensitive.
func IsZeroDecimal(currency string) bool {
	_, ok := zeroDecimalCurrencies[strings.ToLower(currency)]
	return ok
}

// ToMinorUnits converts a major-unit amount to minor units.
// Zero-decimal currencies pass through unchanged. The result is rounded to
// the nearest integer so float representation error never drifts the
// billable amount by a cent.
func ToMinorUnits(amount float64, currency string) int64 {
	if IsZeroDecimal(currency) {
		return int64(math.Round(amount))
	}
	return int64(math.Round(amount * 100))
}

// ToMajorUnits converts a minor-unit amount to major units.
// Zero-decimal currencies pass through unchanged.
func ToMajorUnits(amount int64, currency string) float64 {
	if IsZeroDecimal(currency) {
		return float64(amount)
	}
	return float64(amount) / 100
}
