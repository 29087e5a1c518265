package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const minorUnitExponent = 2

// ParseCents converts a decimal amount string ("12.50") into minor units.
// Amounts must be positive and carry at most two fractional digits.
func ParseCents(raw string) (int64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("amount is required")
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	return FromDecimal(amount)
}

// FromDecimal converts a major-unit decimal into minor units.
func FromDecimal(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("amount must be greater than zero")
	}
	cents := amount.Shift(minorUnitExponent)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", amount.String(), minorUnitExponent)
	}
	if !cents.IsInteger() || cents.GreaterThan(decimal.NewFromInt(maxCents)) {
		return 0, fmt.Errorf("amount %s is out of range", amount.String())
	}
	return cents.IntPart(), nil
}

// FormatCents renders minor units as a fixed two-decimal string.
func FormatCents(cents int64) string {
	return decimal.NewFromInt(cents).Shift(-minorUnitExponent).StringFixed(minorUnitExponent)
}

// maxCents keeps sums of many contributions well inside int64.
const maxCents = int64(1) << 50
