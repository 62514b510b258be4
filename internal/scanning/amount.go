package scanning

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount normalizes a matched money string like "1 234,56" or
// "1.234.567,89" into an exact decimal. Only the last separator is treated as
// the decimal point. The result is invalid when the string does not parse or
// is negative.
func ParseAmount(raw string) decimal.NullDecimal {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		if r == ',' {
			return '.'
		}
		return r
	}, raw)

	if n := strings.Count(clean, "."); n > 1 {
		clean = strings.Replace(clean, ".", "", n-1)
	}

	d, err := decimal.NewFromString(clean)
	if err != nil || d.IsNegative() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
