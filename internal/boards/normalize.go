package boards

import (
	"math"
	"strconv"
	"strings"
)

// RatePerMile computes payment/mileage rounded to 2 decimals. Returns nil
// unless both inputs are positive, so a missing rate is never reported as a
// spurious zero and mileage zero never divides.
func RatePerMile(payment, mileage float64) *float64 {
	if payment <= 0 || mileage <= 0 {
		return nil
	}
	r := math.Round(payment/mileage*100) / 100
	return &r
}

// ParseMoney parses a currency string, tolerating "$" and "," decoration.
// Returns 0 for anything unparseable.
func ParseMoney(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// IntPtr returns a pointer to n, or nil when n is zero or negative. Used to
// map "omitted upstream" numerics to null instead of zero.
func IntPtr(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}
