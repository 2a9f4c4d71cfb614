// Package core holds the cost manager's domain model: cost entries, rate
// tables, reports and the conversion arithmetic shared by every component.
package core

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// RatesTable maps a currency code to how many units of it one USD buys.
// USD itself maps to exactly 1.
type RatesTable map[string]float64

// ParseSum converts a numeric-looking string into a sum. Both dot and comma
// decimal separators are accepted. Range checks are left to CostInput.Validate.
//
//	ParseSum("12.34") -> 12.34
//	ParseSum(" 12,5 ") -> 12.5
//	ParseSum("abc") -> validation error
func ParseSum(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, NewValidationError("sum is required", ErrInvalidSum)
	}
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, NewValidationError(fmt.Sprintf("sum %q is not a number", s), ErrInvalidSum)
	}
	return v, nil
}

// Convert moves amount from one currency to another through USD. Identical
// codes return amount untouched, even with an empty table.
func Convert(amount float64, from, to string, rates RatesTable) (float64, error) {
	if from == to {
		return amount, nil
	}
	fromRate := rates[from]
	toRate := rates[to]
	// zero is never a valid multiplier and would divide by zero
	if fromRate == 0 || toRate == 0 {
		missing := from
		if fromRate != 0 {
			missing = to
		}
		return 0, NewMissingRateError(fmt.Sprintf("missing currency rate for %s", missing))
	}
	usd := amount / fromRate
	return usd * toRate, nil
}

// Round2 rounds to two decimals, halves away from zero. The scaling by 100
// is done on the shortest decimal form of v, so 1.005 rounds to 1.01 even
// though its binary value lies just below the half.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	intPart, frac, _ := strings.Cut(s, ".")
	if len(frac) <= 2 {
		return v
	}
	shifted, err := strconv.ParseFloat(intPart+frac[:2]+"."+frac[2:], 64)
	if err != nil {
		return math.Round(v*100) / 100
	}
	return math.Round(shifted) / 100
}

// Validate checks that every multiplier is a finite positive number and that
// USD is the unit currency.
func (t RatesTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("rates table is empty")
	}
	for code, rate := range t {
		if strings.TrimSpace(code) == "" {
			return fmt.Errorf("rates table has an empty currency code")
		}
		if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
			return fmt.Errorf("rate for %s must be a positive number, got %v", code, rate)
		}
	}
	usd, ok := t[USD]
	if !ok {
		return fmt.Errorf("rates table has no %s entry", USD)
	}
	if usd != 1 {
		return fmt.Errorf("rate for %s must be 1, got %v", USD, usd)
	}
	return nil
}

// Currencies returns the table's codes in lexical order.
func (t RatesTable) Currencies() []string {
	out := make([]string, 0, len(t))
	for code := range t {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (t RatesTable) Clone() RatesTable {
	if t == nil {
		return nil
	}
	out := make(RatesTable, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}
