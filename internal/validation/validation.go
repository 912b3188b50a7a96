// Package validation provides input validation for the EscrowPi API.
package validation

import (
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/escrowpi/escrowpi/internal/fees"
)

// MaxRequestSize is the maximum request body size (64KB)
const MaxRequestSize = 64 << 10

// MaxNoteLength caps the free-text note on an order.
const MaxNoteLength = 280

// Pi usernames: letters, digits, underscore, dot and dash.
var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_.\-]{1,64}$`)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidUsername checks a Pi username.
func IsValidUsername(s string) bool {
	return usernameRegex.MatchString(s)
}

// SanitizeString trims, drops NUL bytes and limits s to maxLen runes.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
	if utf8.RuneCountInString(s) > maxLen {
		s = string([]rune(s)[:maxLen])
	}
	return s
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs validators and collects their errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidUsername checks a Pi username field. Empty passes; use Required.
func ValidUsername(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsValidUsername(value) {
			return &ValidationError{Field: field, Message: "must be a valid Pi username"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max runes
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if utf8.RuneCountInString(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// ValidAmount checks for a positive decimal amount.
func ValidAmount(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if _, err := fees.ParseAmount(value); err != nil {
			return &ValidationError{Field: field, Message: "must be a number greater than zero with at most 7 decimal places"}
		}
		return nil
	}
}

// ValidPercent checks a refund percent in [0,100].
func ValidPercent(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if _, err := fees.ParsePercent(value); err != nil {
			return &ValidationError{Field: field, Message: "must be a number between 0 and 100"}
		}
		return nil
	}
}

// OneOf checks that value is one of allowed.
func OneOf(field, value string, allowed ...string) func() *ValidationError {
	return func() *ValidationError {
		for _, a := range allowed {
			if value == a {
				return nil
			}
		}
		return &ValidationError{Field: field, Message: "must be one of " + strings.Join(allowed, ", ")}
	}
}
