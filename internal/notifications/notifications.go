// Package notifications is the per-user inbox of order events.
//
// The order workflow writes one notification to the counterparty of every
// committed transition and dispute event. Users list their inbox filtered
// by cleared state and toggle entries between cleared and uncleared.
package notifications

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/escrowpi/escrowpi/internal/idgen"
)

var (
	ErrNotFound      = errors.New("notification not found")
	ErrInvalidStatus = errors.New(`status must be "cleared" or "uncleared"`)
	ErrIncomplete    = errors.New("notification needs a recipient and a reason")
)

// Status filters a listing by cleared state. The zero value matches all.
type Status string

const (
	StatusAll       Status = ""
	StatusCleared   Status = "cleared"
	StatusUncleared Status = "uncleared"
)

// ParseStatus accepts "", "cleared" and "uncleared".
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusAll, StatusCleared, StatusUncleared:
		return st, nil
	}
	return "", ErrInvalidStatus
}

// Matches reports whether n passes the filter.
func (s Status) Matches(n *Notification) bool {
	switch s {
	case StatusCleared:
		return n.Cleared
	case StatusUncleared:
		return !n.Cleared
	}
	return true
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Notification tells Username that something happened on OrderID.
type Notification struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	OrderID   string    `json:"orderId,omitempty"`
	Reason    string    `json:"reason"`
	Cleared   bool      `json:"cleared"`
	CreatedAt time.Time `json:"createdAt"`
}

// Query selects one page of a user's inbox, newest first.
type Query struct {
	Username string
	Status   Status
	Skip     int
	Limit    int
}

// Store persists notifications.
type Store interface {
	Add(ctx context.Context, n *Notification) error
	// List returns the page q selects, newest first.
	List(ctx context.Context, q Query) ([]*Notification, error)
	// CountUncleared counts the user's unread notifications.
	CountUncleared(ctx context.Context, username string) (int, error)
	// Toggle flips the cleared flag of a notification username owns. A
	// notification owned by someone else is reported as ErrNotFound.
	Toggle(ctx context.Context, id, username string) (*Notification, error)
}

// Page is one listing plus the unread badge count.
type Page struct {
	Notifications []*Notification `json:"notifications"`
	Uncleared     int             `json:"uncleared"`
}

// Service provides notification operations.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a new notification service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Notify builds a notification for username about orderID.
func (s *Service) Notify(ctx context.Context, username, orderID, reason string) error {
	_, err := s.Build(ctx, &Notification{Username: username, OrderID: orderID, Reason: reason})
	return err
}

// Build fills in the id and timestamp of n and stores it uncleared.
func (s *Service) Build(ctx context.Context, n *Notification) (*Notification, error) {
	n.Username = strings.TrimSpace(n.Username)
	n.Reason = strings.TrimSpace(n.Reason)
	if n.Username == "" || n.Reason == "" {
		return nil, ErrIncomplete
	}
	if n.ID == "" {
		n.ID = idgen.WithPrefix("ntf_")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	n.Cleared = false
	if err := s.store.Add(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// List returns a page of the user's inbox. limit is clamped to
// [1, MaxListLimit] with DefaultListLimit for non-positive values.
func (s *Service) List(ctx context.Context, username string, status Status, skip, limit int) (*Page, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	list, err := s.store.List(ctx, Query{Username: username, Status: status, Skip: skip, Limit: limit})
	if err != nil {
		return nil, err
	}
	unread, err := s.store.CountUncleared(ctx, username)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*Notification{}
	}
	return &Page{Notifications: list, Uncleared: unread}, nil
}

// Toggle flips a notification between cleared and uncleared.
func (s *Service) Toggle(ctx context.Context, id, username string) (*Notification, error) {
	return s.store.Toggle(ctx, id, username)
}
