package orderapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escrowpi/escrowpi/internal/comments"
	"github.com/escrowpi/escrowpi/internal/dispute"
	"github.com/escrowpi/escrowpi/internal/orders"
	"github.com/escrowpi/escrowpi/internal/payments"
	"github.com/escrowpi/escrowpi/internal/retry"
	"github.com/escrowpi/escrowpi/internal/txstate"
)

const sampleOrder = `{
	"order_no": "EP0123456789ab",
	"order_type": "request",
	"payer_username": "alice",
	"payee_username": "bob",
	"amount": 74.61,
	"status": "disputed",
	"description": "two loaves",
	"dispute": {"status": "proposed", "proposal_percent": "20", "proposed_by": "payer", "proposed_by_user": "alice"},
	"created_at": "2026-05-01T10:00:00Z",
	"updated_at": "2026-05-01T11:00:00Z"
}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", "svc-token").WithReadRetry(retry.Once)
}

func TestClient_Get(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/orders/EP0123456789ab", r.URL.Path)
		assert.Equal(t, "Bearer svc-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"order":` + sampleOrder + `,"comments":[]}`))
	})

	o, err := c.Get(context.Background(), "EP0123456789ab")
	require.NoError(t, err)

	assert.Equal(t, orders.TypeRequest, o.Type)
	assert.Equal(t, "alice", o.PayerUsername)
	assert.True(t, o.Amount.Equal(decimal.RequireFromString("74.61")))
	assert.Equal(t, txstate.StatusDisputed, o.Status)
	assert.Equal(t, "two loaves", o.Note)
	assert.Equal(t, dispute.StatusProposed, o.Dispute.Status)
	assert.Equal(t, txstate.RolePayer, o.Dispute.ProposedBy)
	assert.True(t, o.Dispute.ProposalPercent.Equal(decimal.NewFromInt(20)))
}

func TestClient_ErrorTranslation(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"not found", http.StatusNotFound, `{"message":"no such order"}`, orders.ErrNotFound},
		{"stale", http.StatusConflict, `{"error":"stale_state","message":"status changed"}`, orders.ErrStaleState},
		{"proposal changed", http.StatusConflict, `{"error":"proposal_changed"}`, orders.ErrProposalChanged},
		{"invalid", http.StatusConflict, `{"error":"invalid_transition"}`, txstate.ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Get(context.Background(), "EP1")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClient_ServerErrorIsPlain(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	_, err := c.Get(context.Background(), "EP1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, orders.ErrNotFound)
	assert.NotErrorIs(t, err, orders.ErrStaleState)
	assert.Contains(t, err.Error(), "boom")
}

func TestClient_ReadsRetryTransientFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"order":` + sampleOrder + `}`))
	}).WithReadRetry(retry.Policy{Attempts: 3, BaseDelay: time.Millisecond})

	o, err := c.Get(context.Background(), "EP0123456789ab")
	require.NoError(t, err)
	assert.Equal(t, "EP0123456789ab", o.ID)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_RetryLeavesClientErrorsAndWritesAlone(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		http.Error(w, "down", http.StatusBadGateway)
	}).WithReadRetry(retry.Policy{Attempts: 3, BaseDelay: time.Millisecond})

	_, err := c.Get(context.Background(), "EP1")
	assert.ErrorIs(t, err, orders.ErrNotFound)
	assert.EqualValues(t, 1, calls.Load())

	calls.Store(0)
	_, _, err = c.UpdateStatus(context.Background(), "EP1", orders.StatusUpdate{From: txstate.StatusRequested, To: txstate.StatusPaid})
	assert.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_UpdateStatus(t *testing.T) {
	var got statusRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/orders/update-status/EP1", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{
			"order": {"order_no":"EP1","order_type":"request","payer_username":"alice","payee_username":"bob","amount":"10","status":"paid","payment_id":"pi-1","txid":"tx-1"},
			"comment": {"id":"c1","order_no":"EP1","author":"alice","description":"User alice has marked the transaction as Paid","is_system":true}
		}`))
	})

	o, cm, err := c.UpdateStatus(context.Background(), "EP1", orders.StatusUpdate{
		From: txstate.StatusRequested, To: txstate.StatusPaid, Actor: "alice",
		Receipt: &payments.Receipt{PaymentID: "pi-1", TxID: "tx-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, txstate.StatusPaid, got.Status)
	assert.Equal(t, txstate.StatusRequested, got.ExpectedStatus)
	assert.Equal(t, "pi-1", got.PaymentID)
	assert.Equal(t, txstate.StatusPaid, o.Status)
	assert.Equal(t, "tx-1", o.TxID)
	require.NotNil(t, cm)
	assert.True(t, cm.System)
	assert.Equal(t, "EP1", cm.OrderID)
}

func TestClient_Dispute(t *testing.T) {
	var got disputeRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/EP1/dispute", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got.Op == "clear" {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"proposal_changed"}`))
			return
		}
		_, _ = w.Write([]byte(`{"order":` + sampleOrder + `}`))
	})
	ctx := context.Background()
	none := dispute.Dispute{Status: dispute.StatusNone}
	proposal := dispute.Dispute{
		Status: dispute.StatusProposed, ProposalPercent: decimal.NewFromInt(20),
		ProposedBy: txstate.RolePayer, ProposedByUser: "alice",
	}

	o, err := c.ProposeDispute(ctx, "EP1", none, proposal)
	require.NoError(t, err)
	assert.Equal(t, "propose", got.Op)
	assert.Equal(t, "none", got.Expected.Status)
	assert.False(t, got.Expected.Percent.Valid)
	assert.True(t, got.Dispute.Percent.Decimal.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, dispute.StatusProposed, o.Dispute.Status)

	_, err = c.ClearDispute(ctx, "EP1", proposal)
	assert.ErrorIs(t, err, orders.ErrProposalChanged)
	assert.ErrorIs(t, err, txstate.ErrInvalidTransition)
}

func TestClient_ListStale(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/orders/", r.URL.Path)
		assert.Equal(t, []string{"initiated", "requested"}, q["status"])
		assert.Equal(t, "2026-05-01T00:00:00Z", q.Get("created_before"))
		assert.Equal(t, "50", q.Get("limit"))
		_, _ = w.Write([]byte(`[` + sampleOrder + `]`))
	})

	list, err := c.ListStale(context.Background(), txstate.Expirable,
		time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), 50)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "EP0123456789ab", list[0].ID)
}

func TestClient_ListRejectsUnknownStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"order_no":"EP1","status":"teleported","amount":"1"}]`))
	})
	_, err := c.ListByUser(context.Background(), "alice", nil, 10)
	assert.Error(t, err)
}

func TestCommentStore(t *testing.T) {
	var posted wireComment
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/comments/":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/comments/EP1":
			_, _ = w.Write([]byte(`[{"id":"c1","order_no":"EP1","author":"bob","description":"hi"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	store := c.Comments()
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, &comments.Comment{ID: "c2", OrderID: "EP1", Author: "alice", Text: "hello"}))
	assert.Equal(t, "hello", posted.Description)
	assert.Equal(t, "EP1", posted.OrderNo)

	list, err := store.List(ctx, "EP1", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "hi", list[0].Text)

	list, err = store.List(ctx, "EP2", 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCommentStore_ListKeepsNewest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("limit"), "whole thread is fetched")
		_, _ = w.Write([]byte(`[
			{"id":"c3","order_no":"EP1","author":"EscrowPi","description":"expired","is_system":true,"created_at":"2026-03-01T12:00:03Z"},
			{"id":"c1","order_no":"EP1","author":"bob","description":"first","created_at":"2026-03-01T12:00:01Z"},
			{"id":"c2","order_no":"EP1","author":"alice","description":"second","created_at":"2026-03-01T12:00:02Z"}
		]`))
	})

	list, err := c.Comments().List(context.Background(), "EP1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c2", list[0].ID)
	assert.Equal(t, "c3", list[1].ID)
}

func TestClient_ServesOrderService(t *testing.T) {
	var created wireOrder
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/orders/":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		case r.Method == http.MethodGet && r.URL.Path == "/comments/"+created.OrderNo:
			_, _ = w.Write([]byte(`[]`))
		default:
			w.WriteHeader(http.StatusOK)
		}
	})
	svc := orders.NewService(c, comments.NewService(c.Comments()), payments.NewSandbox())

	v, err := svc.Create(context.Background(), "bob", orders.CreateRequest{
		Counterparty: "alice", Type: "request", Amount: "12.5",
	})
	require.NoError(t, err)

	assert.Equal(t, txstate.StatusRequested, v.Status)
	assert.Equal(t, v.ID, created.OrderNo)
	assert.Equal(t, "alice", created.PayerUsername)
	assert.Equal(t, "requested", created.Status)
	assert.True(t, created.Amount.Equal(decimal.RequireFromString("12.5")))
}
