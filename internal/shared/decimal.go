package shared

import "github.com/shopspring/decimal"

// DecimalPlaces is the scale of every NUMERIC quantity and price column.
// Order totals are stored at twice this scale so quantity x price is exact.
const DecimalPlaces = 4

// FitsScale reports whether d is stored without rounding. Trailing zeros past
// the scale are fine.
func FitsScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(DecimalPlaces))
}

// CheckScale returns a ValidationError for field when d would be rounded on write.
func CheckScale(field string, d decimal.Decimal) error {
	if !FitsScale(d) {
		return Invalid(field, "must have at most 4 decimal places")
	}
	return nil
}
