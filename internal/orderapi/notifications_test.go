package orderapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escrowpi/escrowpi/internal/notifications"
)

const sampleInbox = `[
	{"_id":"n2","pi_uid":"bob","order_no":"EP2","reason":"User alice has proposed a 20.00% refund","is_cleared":false,"createdAt":"2026-05-01T11:00:00Z"},
	{"_id":"n1","pi_uid":"bob","order_no":"EP1","reason":"User alice has marked the transaction as Paid","is_cleared":true,"createdAt":"2026-05-01T10:00:00Z"}
]`

func TestNotificationStore_AddAndList(t *testing.T) {
	var posted wireNotification
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/notifications":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/notifications/bob":
			assert.Equal(t, "5", r.URL.Query().Get("skip"))
			assert.Equal(t, "10", r.URL.Query().Get("limit"))
			assert.Equal(t, "cleared", r.URL.Query().Get("status"))
			_, _ = w.Write([]byte(sampleInbox))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	store := c.Notifications()
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, &notifications.Notification{
		ID: "n3", Username: "alice", OrderID: "EP1", Reason: "paid",
		CreatedAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}))
	assert.Equal(t, "alice", posted.Owner)
	assert.Equal(t, "EP1", posted.OrderNo)
	assert.Equal(t, "paid", posted.Reason)

	list, err := store.List(ctx, notifications.Query{Username: "bob", Status: notifications.StatusCleared, Skip: 5, Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "n2", list[0].ID)
	assert.Equal(t, "bob", list[0].Username)
	assert.True(t, list[1].Cleared)

	list, err = store.List(ctx, notifications.Query{Username: "carol"})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestNotificationStore_CountUncleared(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "uncleared", r.URL.Query().Get("status"))
		assert.Equal(t, "0", r.URL.Query().Get("limit"), "limit 0 returns every match")
		_, _ = w.Write([]byte(`[{"_id":"n2","pi_uid":"bob","reason":"x"},{"_id":"n4","pi_uid":"bob","reason":"y"}]`))
	})

	n, err := c.Notifications().CountUncleared(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNotificationStore_ToggleChecksOwner(t *testing.T) {
	var toggled []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/notifications/bob":
			_, _ = w.Write([]byte(sampleInbox))
		case r.Method == http.MethodPut && r.URL.Path == "/notifications/update/n2":
			toggled = append(toggled, "n2")
			_, _ = w.Write([]byte(`{"_id":"n2","pi_uid":"bob","order_no":"EP2","reason":"r","is_cleared":true}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	store := c.Notifications()
	ctx := context.Background()

	n, err := store.Toggle(ctx, "n2", "bob")
	require.NoError(t, err)
	assert.True(t, n.Cleared)

	_, err = store.Toggle(ctx, "n9", "bob")
	assert.ErrorIs(t, err, notifications.ErrNotFound)
	_, err = store.Toggle(ctx, "n2", "mallory")
	assert.ErrorIs(t, err, notifications.ErrNotFound)

	assert.Equal(t, []string{"n2"}, toggled)
}
