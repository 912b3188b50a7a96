package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/escrowpi/escrowpi/internal/txstate"
)

// sweepBatch bounds how many orders one sweep expires.
const sweepBatch = 100

// Timer periodically expires orders nobody acted on. It is the only
// producer of the expired status.
type Timer struct {
	service  *Service
	store    Store
	interval time.Duration
	ttl      time.Duration
	logger   *slog.Logger

	running  atomic.Bool
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewTimer creates an expiry sweeper. Orders still initiated or requested
// ttl after creation are expired every interval.
func NewTimer(service *Service, store Store, interval, ttl time.Duration, logger *slog.Logger) *Timer {
	return &Timer{
		service:  service,
		store:    store,
		interval: interval,
		ttl:      ttl,
		logger:   logger,
		stopped:  make(chan struct{}),
	}
}

// Running reports whether the sweep loop is live.
func (t *Timer) Running() bool {
	return t.running.Load()
}

// Start runs the sweep loop until ctx is done or Stop is called. It blocks.
func (t *Timer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	tick := time.NewTicker(t.interval)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			t.safeSweep(ctx)
		case <-t.stopped:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends the loop. It is safe to call more than once, and before Start.
func (t *Timer) Stop() {
	t.stopOnce.Do(func() { close(t.stopped) })
}

func (t *Timer) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in order expiry timer", "panic", fmt.Sprint(r))
		}
	}()
	t.Sweep(ctx)
}

// Sweep expires one batch of stale orders and returns how many moved.
func (t *Timer) Sweep(ctx context.Context) int {
	cutoff := t.service.now().Add(-t.ttl)
	stale, err := t.store.ListStale(ctx, txstate.Expirable, cutoff, sweepBatch)
	if err != nil {
		t.logger.Warn("failed to list stale orders", "error", err)
		return 0
	}

	expired := 0
	for _, o := range stale {
		if _, err := t.service.Expire(ctx, o.ID); err != nil {
			// Someone acted on the order after it was listed.
			if errors.Is(err, ErrStaleState) || errors.Is(err, txstate.ErrInvalidTransition) {
				t.logger.Debug("order moved on before expiry", "orderId", o.ID, "error", err)
				continue
			}
			t.logger.Warn("failed to expire order", "orderId", o.ID, "error", err)
			continue
		}
		expired++
		t.logger.Info("expired order",
			"orderId", o.ID,
			"status", o.Status,
			"payer", o.PayerUsername,
			"payee", o.PayeeUsername,
			"age", t.service.now().Sub(o.CreatedAt).Round(time.Second).String(),
		)
	}
	if expired > 0 {
		t.logger.Info("order expiry sweep finished", "expired", expired, "candidates", len(stale))
	}
	return expired
}
