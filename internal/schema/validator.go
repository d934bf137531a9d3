package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValidationError describes why a row failed validation. The field name
// is the canonical field, not the source header.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Validate checks a canonically-mapped record against the rule set.
// Rules run in order and short-circuit on the first failure: required
// fields, numeric parsing with positivity, date parsing, then the
// cross-field total check. Returns nil for a valid row. No side effects.
func Validate(rec RawRecord, rules RuleSet) error {
	for _, field := range rules.RequiredFields {
		if strings.TrimSpace(rec[field]) == "" {
			return &ValidationError{Field: field, Reason: "required field is missing or empty"}
		}
	}

	positive := make(map[string]bool, len(rules.PositiveFields))
	for _, field := range rules.PositiveFields {
		positive[field] = true
	}

	for _, field := range rules.NumericFields {
		raw, ok := rec[field]
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		n, err := ParseNumber(raw)
		if err != nil {
			return &ValidationError{Field: field, Reason: fmt.Sprintf("not a number: %q", raw)}
		}
		if positive[field] && n <= 0 {
			return &ValidationError{Field: field, Reason: fmt.Sprintf("must be positive, got %v", n)}
		}
	}

	for _, field := range rules.DateFields {
		raw, ok := rec[field]
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		if _, err := ParseDate(raw); err != nil {
			return &ValidationError{Field: field, Reason: err.Error()}
		}
	}

	if err := validateTotal(rec, rules); err != nil {
		return err
	}

	return nil
}

// validateTotal checks declared total against quantity * unit_price when
// all three fields are present, within the rule set's epsilon.
func validateTotal(rec RawRecord, rules RuleSet) error {
	totalRaw, qtyRaw, priceRaw := rec[FieldTotal], rec[FieldQuantity], rec[FieldUnitPrice]
	if totalRaw == "" || qtyRaw == "" || priceRaw == "" {
		return nil
	}

	total, err := ParseNumber(totalRaw)
	if err != nil {
		return nil // already caught by the numeric rule when configured
	}
	qty, err := ParseNumber(qtyRaw)
	if err != nil {
		return nil
	}
	price, err := ParseNumber(priceRaw)
	if err != nil {
		return nil
	}

	epsilon := rules.Epsilon
	if epsilon <= 0 {
		epsilon = 0.01
	}
	if math.Abs(total-qty*price) > epsilon {
		return &ValidationError{
			Field:  FieldTotal,
			Reason: fmt.Sprintf("declared total %v does not match quantity %v * unit price %v", total, qty, price),
		}
	}
	return nil
}

// currencyStripper removes currency symbols, thousands separators, and
// surrounding whitespace before numeric parsing.
var currencyStripper = strings.NewReplacer("$", "", "€", "", "£", "", "₹", "", ",", "", " ", "")

// ParseNumber parses a numeric field after stripping currency formatting.
// "$1,234.50" parses as 1234.5.
func ParseNumber(s string) (float64, error) {
	cleaned := currencyStripper.Replace(strings.TrimSpace(s))
	if cleaned == "" {
		return 0, fmt.Errorf("empty number")
	}
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("not a finite number: %q", s)
	}
	return n, nil
}
