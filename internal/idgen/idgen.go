// Package idgen generates identifiers for orders, comments and requests.
package idgen

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// New returns a random (version 4) UUID string.
func New() string {
	return uuid.NewString()
}

// WithPrefix returns prefix followed by 24 hex chars of a random UUID,
// e.g. "cmt_3f0c9a...".
func WithPrefix(prefix string) string {
	u := uuid.New()
	return prefix + hex.EncodeToString(u[:12])
}

// OrderNo returns a human-friendly order number: "EP" and 12 upper-case
// hex chars.
func OrderNo() string {
	u := uuid.New()
	return "EP" + strings.ToUpper(hex.EncodeToString(u[:6]))
}

// Valid reports whether s parses as a UUID.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
