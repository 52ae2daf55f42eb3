package tool

import (
	"fmt"
	"slices"
	"strings"

	"pplx-mcp/internal/domain"
)

// InvalidField returns a domain.ErrInvalidInput error naming field.
func InvalidField(field, format string, args ...any) error {
	return domain.NewDomainError("validate", domain.ErrInvalidInput, field+": "+fmt.Sprintf(format, args...))
}

// RequireNonBlank fails when value is empty or whitespace only.
func RequireNonBlank(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return InvalidField(name, "must not be empty")
	}
	return nil
}

// ValidateFloatRange checks that value is within [min, max].
func ValidateFloatRange(name string, value, min, max float64) error {
	if value < min || value > max {
		return InvalidField(name, "must be between %g and %g, got %g", min, max, value)
	}
	return nil
}

// ValidatePositive checks that value is > 0.
func ValidatePositive(name string, value int) error {
	if value <= 0 {
		return InvalidField(name, "must be > 0, got %d", value)
	}
	return nil
}

// ValidateEnum checks that value is one of the allowed values.
// An empty value is allowed (treated as "not set").
func ValidateEnum(name, value string, allowed ...string) error {
	if value == "" || slices.Contains(allowed, value) {
		return nil
	}
	return InvalidField(name, "unsupported value %q (want: %s)", value, joinComma(allowed))
}

// ValidateAll returns the first non-nil error from the given list.
//
//	if err := ValidateAll(RequireNonBlank("query", p.Query), ValidatePositive("max_tokens", n)); err != nil { ... }
func ValidateAll(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
