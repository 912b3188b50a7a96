package orderapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/escrowpi/escrowpi/internal/notifications"
	"github.com/escrowpi/escrowpi/internal/orders"
)

var _ notifications.Store = (*NotificationStore)(nil)

// Notifications returns the notification inbox backed by the same backend.
func (c *Client) Notifications() *NotificationStore {
	return &NotificationStore{client: c}
}

// NotificationStore is the per-user inbox in the backend. The backend keys
// inboxes by owner; EscrowPi uses the Pi username as that key.
type NotificationStore struct {
	client *Client
}

type wireNotification struct {
	ID        string    `json:"_id,omitempty"`
	Owner     string    `json:"pi_uid"`
	OrderNo   string    `json:"order_no,omitempty"`
	Reason    string    `json:"reason"`
	IsCleared bool      `json:"is_cleared"`
	CreatedAt time.Time `json:"createdAt"`
}

func (w *wireNotification) toNotification() *notifications.Notification {
	return &notifications.Notification{
		ID:        w.ID,
		Username:  w.Owner,
		OrderID:   w.OrderNo,
		Reason:    w.Reason,
		Cleared:   w.IsCleared,
		CreatedAt: w.CreatedAt,
	}
}

// Add posts a notification.
func (s *NotificationStore) Add(ctx context.Context, n *notifications.Notification) error {
	return s.client.doRequest(ctx, http.MethodPost, "/notifications", nil, wireNotification{
		ID:        n.ID,
		Owner:     n.Username,
		OrderNo:   n.OrderID,
		Reason:    n.Reason,
		IsCleared: n.Cleared,
		CreatedAt: n.CreatedAt,
	}, nil)
}

// List fetches one page of an inbox. A limit of 0 asks the backend for
// every match.
func (s *NotificationStore) List(ctx context.Context, q notifications.Query) ([]*notifications.Notification, error) {
	query := url.Values{}
	query.Set("skip", strconv.Itoa(q.Skip))
	query.Set("limit", strconv.Itoa(q.Limit))
	if q.Status != notifications.StatusAll {
		query.Set("status", string(q.Status))
	}

	var resp []wireNotification
	err := s.client.doRequest(ctx, http.MethodGet, "/notifications/"+url.PathEscape(q.Username), query, nil, &resp)
	if err != nil {
		// A user nobody has notified yet has an empty inbox.
		if errors.Is(err, orders.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]*notifications.Notification, 0, len(resp))
	for i := range resp {
		out = append(out, resp[i].toNotification())
	}
	return out, nil
}

// CountUncleared lists every uncleared notification and counts them.
func (s *NotificationStore) CountUncleared(ctx context.Context, username string) (int, error) {
	list, err := s.List(ctx, notifications.Query{Username: username, Status: notifications.StatusUncleared})
	return len(list), err
}

// Toggle flips a notification. The backend toggles by id alone, so the
// owner's inbox is read first and a notification outside it is not found.
func (s *NotificationStore) Toggle(ctx context.Context, id, username string) (*notifications.Notification, error) {
	inbox, err := s.List(ctx, notifications.Query{Username: username})
	if err != nil {
		return nil, err
	}
	owned := false
	for _, n := range inbox {
		if n.ID == id {
			owned = true
			break
		}
	}
	if !owned {
		return nil, notifications.ErrNotFound
	}

	var resp wireNotification
	err = s.client.doRequest(ctx, http.MethodPut, "/notifications/update/"+url.PathEscape(id), nil, nil, &resp)
	if errors.Is(err, orders.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", notifications.ErrNotFound, err)
	}
	if err != nil {
		return nil, err
	}
	return resp.toNotification(), nil
}
