// Package payments is the boundary to the Pi payment rail. The rail itself
// is opaque: a Provider either settles a payment for the requested amount
// or reports why it did not.
package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/escrowpi/escrowpi/internal/circuitbreaker"
	"github.com/escrowpi/escrowpi/internal/metrics"
	"github.com/escrowpi/escrowpi/internal/traces"
)

var (
	// ErrDeclined means the payer cancelled or the rail refused the payment.
	// It does not count against the circuit breaker.
	ErrDeclined = errors.New("payment declined")
	// ErrAmountMismatch means the payment on the rail is not for the amount
	// the order requires.
	ErrAmountMismatch = errors.New("payment amount does not match order total")
	// ErrUnavailable wraps transport failures and an open circuit.
	ErrUnavailable = errors.New("payment provider unavailable")
)

// Request asks the provider to settle Amount for an order. PaymentID and
// TxID come from the Pi SDK on the payer's device when available.
type Request struct {
	OrderID   string            `json:"orderId"`
	Amount    decimal.Decimal   `json:"amount"`
	Memo      string            `json:"memo"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	PaymentID string            `json:"paymentId,omitempty"`
	TxID      string            `json:"txid,omitempty"`
}

// Receipt is the proof of a settled payment.
type Receipt struct {
	PaymentID string          `json:"paymentId"`
	TxID      string          `json:"txid"`
	Amount    decimal.Decimal `json:"amount"`
	PaidAt    time.Time       `json:"paidAt"`
}

// Provider settles payments.
type Provider interface {
	Pay(ctx context.Context, req Request) (Receipt, error)
}

// breakerKey names the payment rail in the circuit breaker.
const breakerKey = "pi_payments"

// Guarded wraps a Provider with a circuit breaker, metrics and tracing. It
// never retries; an open circuit fails fast with ErrUnavailable.
type Guarded struct {
	provider Provider
	breaker  *circuitbreaker.Breaker
}

// NewGuarded creates a guarded provider.
func NewGuarded(provider Provider, breaker *circuitbreaker.Breaker) *Guarded {
	breaker.WithFailureFilter(func(err error) bool {
		return !errors.Is(err, ErrDeclined) && !errors.Is(err, ErrAmountMismatch)
	})
	return &Guarded{provider: provider, breaker: breaker}
}

// Pay implements Provider.
func (g *Guarded) Pay(ctx context.Context, req Request) (Receipt, error) {
	ctx, span := traces.StartSpan(ctx, "payments.Pay",
		traces.OrderID(req.OrderID),
		traces.Amount(req.Amount.String()),
	)

	var receipt Receipt
	err := g.breaker.Execute(breakerKey, func() error {
		var perr error
		receipt, perr = g.provider.Pay(ctx, req)
		return perr
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		err = fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	traces.End(span, err)

	switch {
	case err == nil:
		metrics.PaymentsTotal.WithLabelValues("settled").Inc()
	case errors.Is(err, ErrDeclined), errors.Is(err, ErrAmountMismatch):
		metrics.PaymentsTotal.WithLabelValues("declined").Inc()
	case errors.Is(err, circuitbreaker.ErrOpen):
		metrics.PaymentsTotal.WithLabelValues("circuit_open").Inc()
	default:
		metrics.PaymentsTotal.WithLabelValues("failed").Inc()
	}
	return receipt, err
}

// State exposes the breaker state for health reporting.
func (g *Guarded) State() circuitbreaker.State {
	return g.breaker.State(breakerKey)
}

// Sandbox settles every payment instantly. It backs DEMO_MODE and tests;
// Fail makes the next payments return err.
type Sandbox struct {
	mu       sync.Mutex
	fail     error
	receipts []Receipt
	now      func() time.Time
}

// NewSandbox creates a sandbox provider.
func NewSandbox() *Sandbox {
	return &Sandbox{now: time.Now}
}

// Fail makes subsequent payments fail with err; nil restores success.
func (s *Sandbox) Fail(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

// Pay implements Provider.
func (s *Sandbox) Pay(ctx context.Context, req Request) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if !req.Amount.IsPositive() {
		return Receipt{}, ErrAmountMismatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return Receipt{}, s.fail
	}

	paymentID := req.PaymentID
	if paymentID == "" {
		paymentID = fmt.Sprintf("sandbox-%d", len(s.receipts)+1)
	}
	txid := req.TxID
	if txid == "" {
		txid = "sandbox-tx-" + paymentID
	}
	r := Receipt{PaymentID: paymentID, TxID: txid, Amount: req.Amount, PaidAt: s.now()}
	s.receipts = append(s.receipts, r)
	return r, nil
}

// Receipts returns a copy of every settled payment.
func (s *Sandbox) Receipts() []Receipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Receipt, len(s.receipts))
	copy(out, s.receipts)
	return out
}

// Compile-time assertions.
var (
	_ Provider = (*Guarded)(nil)
	_ Provider = (*Sandbox)(nil)
)
