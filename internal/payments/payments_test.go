package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escrowpi/escrowpi/internal/circuitbreaker"
)

func TestSandbox_Pay(t *testing.T) {
	s := NewSandbox()
	r, err := s.Pay(context.Background(), Request{
		OrderID: "EP1",
		Amount:  decimal.RequireFromString("84.3393"),
	})
	require.NoError(t, err)

	assert.Equal(t, "sandbox-1", r.PaymentID)
	assert.Equal(t, "sandbox-tx-sandbox-1", r.TxID)
	assert.True(t, r.Amount.Equal(decimal.RequireFromString("84.3393")))
	assert.Len(t, s.Receipts(), 1)
}

func TestSandbox_KeepsClientIdentifiers(t *testing.T) {
	s := NewSandbox()
	r, err := s.Pay(context.Background(), Request{Amount: decimal.NewFromInt(2), PaymentID: "pi-123", TxID: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "pi-123", r.PaymentID)
	assert.Equal(t, "abc", r.TxID)
}

func TestSandbox_Fail(t *testing.T) {
	s := NewSandbox()
	s.Fail(ErrDeclined)

	_, err := s.Pay(context.Background(), Request{Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrDeclined)
	assert.Empty(t, s.Receipts())

	s.Fail(nil)
	_, err = s.Pay(context.Background(), Request{Amount: decimal.NewFromInt(1)})
	assert.NoError(t, err)
}

func TestSandbox_RejectsNonPositive(t *testing.T) {
	_, err := NewSandbox().Pay(context.Background(), Request{Amount: decimal.Zero})
	assert.ErrorIs(t, err, ErrAmountMismatch)
}

func TestSandbox_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSandbox().Pay(ctx, Request{Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGuarded_OpensOnTransportFailures(t *testing.T) {
	sandbox := NewSandbox()
	sandbox.Fail(errors.New("connection reset"))
	g := NewGuarded(sandbox, circuitbreaker.New(2, time.Hour))

	req := Request{Amount: decimal.NewFromInt(1)}
	_, err := g.Pay(context.Background(), req)
	assert.Error(t, err)
	_, err = g.Pay(context.Background(), req)
	assert.Error(t, err)

	sandbox.Fail(nil)
	_, err = g.Pay(context.Background(), req)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, circuitbreaker.StateOpen, g.State())
	assert.Empty(t, sandbox.Receipts(), "open circuit must not reach the rail")
}

func TestGuarded_DeclinesDoNotTrip(t *testing.T) {
	sandbox := NewSandbox()
	sandbox.Fail(ErrDeclined)
	g := NewGuarded(sandbox, circuitbreaker.New(1, time.Hour))

	for i := 0; i < 3; i++ {
		_, err := g.Pay(context.Background(), Request{Amount: decimal.NewFromInt(1)})
		assert.ErrorIs(t, err, ErrDeclined)
	}
	assert.Equal(t, circuitbreaker.StateClosed, g.State())
}
