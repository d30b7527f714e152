// Package utils provides date and number helpers shared across the module.
package utils

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ToBps converts a yield quantity in percent to basis points, rounded to
// the given number of decimal places.
func ToBps(pct float64, places int32) decimal.Decimal {
	return decimal.NewFromFloat(pct).Mul(decimal.NewFromInt(100)).Round(places)
}

// FormatBps formats a percent quantity as basis points, e.g. 0.0123 → "1.23 bps".
func FormatBps(pct float64) string {
	return ToBps(pct, 2).StringFixed(2) + " bps"
}

// FormatYield formats a yield in percent with four decimals, e.g. "4.3000%".
func FormatYield(pct float64) string {
	return decimal.NewFromFloat(pct).StringFixed(4) + "%"
}

// FormatPctBps formats a percent quantity alongside its bps value,
// e.g. "0.012345% (1.23 bps)".
func FormatPctBps(pct float64) string {
	return fmt.Sprintf("%s%% (%s)", decimal.NewFromFloat(pct).StringFixed(6), FormatBps(pct))
}

// FormatSigned formats a number with an explicit sign, e.g. "+0.1234".
func FormatSigned(v float64, places int32) string {
	d := decimal.NewFromFloat(v).Round(places)
	if d.Sign() >= 0 {
		return "+" + d.StringFixed(places)
	}
	return d.StringFixed(places)
}
