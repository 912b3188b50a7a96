//go:build integration

package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escrowpi/escrowpi/internal/comments"
	"github.com/escrowpi/escrowpi/internal/dispute"
	"github.com/escrowpi/escrowpi/internal/pagination"
	"github.com/escrowpi/escrowpi/internal/payments"
	"github.com/escrowpi/escrowpi/internal/testutil"
	"github.com/escrowpi/escrowpi/internal/txstate"
)

func pgOrder(id string, status txstate.Status, created time.Time) *Order {
	return &Order{
		ID: id, Type: TypeRequest, PayerUsername: "alice", PayeeUsername: "bob",
		Amount: decimal.RequireFromString("74.61"), Status: status, Note: "bread",
		CreatedAt: created, UpdatedAt: created,
	}
}

func TestPostgresStore_CreateGetList(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, store.Create(ctx, pgOrder("EPpg1", txstate.StatusRequested, now.Add(-time.Hour))))
	require.NoError(t, store.Create(ctx, pgOrder("EPpg2", txstate.StatusRequested, now)))

	o, err := store.Get(ctx, "EPpg1")
	require.NoError(t, err)
	assert.True(t, o.Amount.Equal(decimal.RequireFromString("74.61")))
	assert.Equal(t, "bread", o.Note)
	assert.Equal(t, dispute.StatusNone, o.Dispute.Status)

	_, err = store.Get(ctx, "EPmissing")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := store.ListByUser(ctx, "bob", nil, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "EPpg2", list[0].ID, "newest first")

	list, err = store.ListByUser(ctx, "bob", &pagination.Cursor{CreatedAt: list[0].CreatedAt, ID: list[0].ID}, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "EPpg1", list[0].ID)

	stale, err := store.ListStale(ctx, txstate.Expirable, now.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "EPpg1", stale[0].ID)
}

func TestPostgresStore_UpdateStatusIsCompareAndSet(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, pgOrder("EPcas", txstate.StatusRequested, time.Now())))

	o, _, err := store.UpdateStatus(ctx, "EPcas", StatusUpdate{
		From: txstate.StatusRequested, To: txstate.StatusPaid, Actor: "alice",
		Receipt: &payments.Receipt{PaymentID: "pi-1", TxID: "tx-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, txstate.StatusPaid, o.Status)
	assert.Equal(t, "pi-1", o.PaymentID)

	_, _, err = store.UpdateStatus(ctx, "EPcas", StatusUpdate{From: txstate.StatusRequested, To: txstate.StatusDeclined})
	assert.ErrorIs(t, err, ErrStaleState)

	_, _, err = store.UpdateStatus(ctx, "EPnone", StatusUpdate{From: txstate.StatusRequested, To: txstate.StatusDeclined})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_PaymentIDIsUnique(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, pgOrder("EPu1", txstate.StatusRequested, time.Now())))
	require.NoError(t, store.Create(ctx, pgOrder("EPu2", txstate.StatusRequested, time.Now())))

	paid := StatusUpdate{
		From: txstate.StatusRequested, To: txstate.StatusPaid, Actor: "alice",
		Receipt: &payments.Receipt{PaymentID: "pi-dup", TxID: "tx-dup"},
	}
	_, _, err := store.UpdateStatus(ctx, "EPu1", paid)
	require.NoError(t, err)

	_, _, err = store.UpdateStatus(ctx, "EPu2", paid)
	assert.ErrorIs(t, err, ErrPaymentReused)
	assert.ErrorIs(t, err, ErrStaleState)

	o, err := store.Get(ctx, "EPu2")
	require.NoError(t, err)
	assert.Equal(t, txstate.StatusRequested, o.Status)
	assert.Empty(t, o.PaymentID)
}

func TestPostgresStore_DisputeRace(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, pgOrder("EPrace", txstate.StatusPaid, time.Now())))
	_, _, err := store.UpdateStatus(ctx, "EPrace", StatusUpdate{From: txstate.StatusPaid, To: txstate.StatusDisputed})
	require.NoError(t, err)

	none := dispute.Dispute{Status: dispute.StatusNone}
	proposals := []dispute.Dispute{
		{Status: dispute.StatusProposed, ProposalPercent: decimal.NewFromInt(20), ProposedBy: txstate.RolePayer, ProposedByUser: "alice"},
		{Status: dispute.StatusProposed, ProposalPercent: decimal.NewFromInt(60), ProposedBy: txstate.RolePayee, ProposedByUser: "bob"},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(proposals))
	for i, p := range proposals {
		wg.Add(1)
		go func(i int, p dispute.Dispute) {
			defer wg.Done()
			_, errs[i] = store.ProposeDispute(ctx, "EPrace", none, p)
		}(i, p)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			assert.ErrorIs(t, err, ErrProposalChanged)
			lost++
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)
}

func TestPostgresStore_ServiceDisputeFlow(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	svc := NewService(store, comments.NewService(comments.NewPostgresStore(db)), payments.NewSandbox())
	ctx := context.Background()

	v, err := svc.Create(ctx, "bob", CreateRequest{Counterparty: "alice", Type: "request", Amount: "50"})
	require.NoError(t, err)
	id := v.ID

	steps := []struct {
		viewer string
		action string
		from   string
	}{
		{"alice", "accept", "requested"},
		{"alice", "dispute", "paid"},
	}
	for _, s := range steps {
		_, err := svc.Act(ctx, id, s.viewer, ActionRequest{Action: s.action, ExpectedStatus: s.from})
		require.NoError(t, err, s.action)
	}

	_, err = svc.ProposeRefund(ctx, id, "alice", "20")
	require.NoError(t, err)
	v, err = svc.AcceptRefund(ctx, id, "bob", "20")
	require.NoError(t, err)
	assert.Equal(t, txstate.StatusReleased, v.Status)

	o, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, dispute.StatusAccepted, o.Dispute.Status)
	assert.Equal(t, "bob", o.Dispute.AcceptedBy)
	assert.True(t, o.Dispute.ProposalPercent.Equal(decimal.NewFromInt(20)))

	thread, err := svc.Comments(ctx, id, "alice")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(thread), 4)
}
