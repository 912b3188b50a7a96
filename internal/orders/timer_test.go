package orders

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escrowpi/escrowpi/internal/txstate"
)

func TestTimer_SweepExpiresStaleOrders(t *testing.T) {
	f := newFixture()
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	f.svc.WithClock(func() time.Time { return now })
	ctx := context.Background()

	add := func(id string, status txstate.Status, age time.Duration) {
		require.NoError(t, f.store.Create(ctx, &Order{
			ID: id, PayerUsername: "alice", PayeeUsername: "bob",
			Amount: decimal.NewFromInt(3), Status: status, CreatedAt: now.Add(-age),
		}))
	}
	add("old-requested", txstate.StatusRequested, 80*time.Hour)
	add("old-initiated", txstate.StatusInitiated, 73*time.Hour)
	add("fresh-requested", txstate.StatusRequested, time.Hour)
	add("old-paid", txstate.StatusPaid, 200*time.Hour)

	timer := NewTimer(f.svc, f.store, time.Minute, 72*time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, 2, timer.Sweep(ctx))

	for id, want := range map[string]txstate.Status{
		"old-requested":   txstate.StatusExpired,
		"old-initiated":   txstate.StatusExpired,
		"fresh-requested": txstate.StatusRequested,
		"old-paid":        txstate.StatusPaid,
	} {
		o, err := f.store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, o.Status, id)
	}

	sys := f.systemComments(t, "old-requested")
	require.Len(t, sys, 1)
	assert.Equal(t, SystemActor, sys[0].Author)

	assert.Equal(t, 0, timer.Sweep(ctx), "second sweep finds nothing")
}

func TestTimer_StartStop(t *testing.T) {
	f := newFixture()
	timer := NewTimer(f.svc, f.store, 10*time.Millisecond, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		timer.Start(ctx)
		close(done)
	}()

	require.Eventually(t, timer.Running, time.Second, 5*time.Millisecond)
	timer.Stop()
	timer.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not stop")
	}
	assert.False(t, timer.Running())
}

func TestTimer_StopBeforeStart(t *testing.T) {
	f := newFixture()
	timer := NewTimer(f.svc, f.store, time.Hour, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	timer.Stop()

	done := make(chan struct{})
	go func() {
		timer.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start ignored an earlier Stop")
	}
}
