package utils

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a statement number. Thousands separators are removed and
// an accounting-style "(1.23)" is read as -1.23.
func ParseAmount(s string) (decimal.Decimal, error) {
	clean := strings.TrimSpace(s)
	clean = strings.ReplaceAll(clean, ",", "")
	clean = strings.ReplaceAll(clean, " ", "")
	negative := false
	if strings.HasPrefix(clean, "(") && strings.HasSuffix(clean, ")") {
		negative = true
		clean = strings.TrimSuffix(strings.TrimPrefix(clean, "("), ")")
	}
	if clean == "" || clean == "--" {
		return decimal.Zero, fmt.Errorf("empty number")
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid number %q", s)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ParseOptionalAmount is ParseAmount that maps a blank cell to zero.
func ParseOptionalAmount(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return ParseAmount(s)
}

// RoundMoney rounds d half away from zero to places.
func RoundMoney(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}

// NullFrom wraps d as a valid NullDecimal.
func NullFrom(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NewNullDecimal(d)
}
