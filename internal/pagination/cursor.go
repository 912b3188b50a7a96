// Package pagination implements keyset cursors over (created_at, id),
// the order in which order lists are returned newest first.
package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCursor is returned for a cursor this package did not produce.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is the key of the last item on a page. The next page holds items
// strictly older than it.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// After reports whether an item keyed (createdAt, id) belongs on the page
// following c. Ties on created_at fall back to descending id.
func (c *Cursor) After(createdAt time.Time, id string) bool {
	if c == nil {
		return true
	}
	if createdAt.Equal(c.CreatedAt) {
		return id < c.ID
	}
	return createdAt.Before(c.CreatedAt)
}

// Encode returns an opaque, URL-safe cursor.
func Encode(createdAt time.Time, id string) string {
	raw := strconv.FormatInt(createdAt.UnixNano(), 10) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode parses a cursor from Encode. An empty string is the first page
// and decodes to nil.
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	nanos, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{CreatedAt: time.Unix(0, n).UTC(), ID: id}, nil
}

// Page trims items fetched with limit+1 rows down to limit and returns the
// cursor for the next page, or "" when this is the last one.
func Page[T any](items []T, limit int, key func(T) (time.Time, string)) ([]T, string) {
	if limit <= 0 || len(items) <= limit {
		return items, ""
	}
	items = items[:limit]
	createdAt, id := key(items[len(items)-1])
	return items, Encode(createdAt, id)
}
