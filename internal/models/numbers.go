package models

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseNumber coerces an upstream numeric string to float64.
// Empty, "-", and otherwise unparseable values report ok=false.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" || s == "-" {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	f, _ := d.Float64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseNumberPtr is ParseNumber returning nil when the value is absent.
func ParseNumberPtr(s string) *float64 {
	f, ok := ParseNumber(s)
	if !ok {
		return nil
	}
	return &f
}

// Float returns a pointer to f.
func Float(f float64) *float64 {
	return &f
}
