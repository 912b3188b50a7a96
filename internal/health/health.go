// Package health aggregates the health of the order store, the payment
// rail and background workers for /health.
package health

import (
	"context"
	"sync"
	"time"
)

// DefaultTimeout bounds a single check.
const DefaultTimeout = 2 * time.Second

// Status is one subsystem's result.
type Status struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

// Checker reports on one subsystem. It must honour ctx's deadline.
type Checker func(ctx context.Context) Status

type entry struct {
	name  string
	check Checker
}

// Registry runs named checkers concurrently, each under its own deadline.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
	timeout time.Duration
}

// NewRegistry returns an empty registry using DefaultTimeout.
func NewRegistry() *Registry {
	return &Registry{timeout: DefaultTimeout}
}

// Register adds a checker. Results keep registration order.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{name: name, check: check})
}

// CheckAll runs every checker and reports healthy only if all of them are.
func (r *Registry) CheckAll(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	entries := append([]entry(nil), r.entries...)
	r.mu.RUnlock()

	statuses := make([]Status, len(entries))
	var wg sync.WaitGroup
	for i, e := range entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			start := time.Now()
			st := e.check(cctx)
			st.LatencyMS = time.Since(start).Milliseconds()
			if st.Name == "" {
				st.Name = e.name
			}
			statuses[i] = st
		}()
	}
	wg.Wait()

	healthy := true
	for _, st := range statuses {
		healthy = healthy && st.Healthy
	}
	return healthy, statuses
}

// Pinger is satisfied by *sql.DB and the order API client.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingChecker is healthy while p answers a ping.
func PingChecker(name string, p Pinger) Checker {
	return func(ctx context.Context) Status {
		if err := p.PingContext(ctx); err != nil {
			return Status{Name: name, Detail: err.Error()}
		}
		return Status{Name: name, Healthy: true}
	}
}

// RunningChecker is healthy while a background worker runs.
func RunningChecker(name string, running func() bool) Checker {
	return func(context.Context) Status {
		if !running() {
			return Status{Name: name, Detail: "not running"}
		}
		return Status{Name: name, Healthy: true}
	}
}

// StateChecker is healthy while state() is one of ok; otherwise the state
// is reported as the detail. The payment rail uses it for its breaker.
func StateChecker[S ~int | ~string](name string, state func() S, describe func(S) string, ok ...S) Checker {
	return func(context.Context) Status {
		s := state()
		for _, want := range ok {
			if s == want {
				return Status{Name: name, Healthy: true}
			}
		}
		return Status{Name: name, Detail: describe(s)}
	}
}
