// Package circuitbreaker stops calling a collaborator that keeps failing.
// EscrowPi keys circuits by collaborator name; today that is only the Pi
// payment rail, so a dead rail rejects payments at once instead of holding
// every pay and accept request open until its timeout.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrOpen is returned by Execute while the circuit for a key is open.
var ErrOpen = errors.New("circuit open")

// State of one circuit.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half_open",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrowpi_circuitbreaker_transitions_total",
		Help: "Circuit state changes by key and target state.",
	}, []string{"key", "from_state", "to_state"})

	stateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "escrowpi_circuitbreaker_state",
		Help: "Current circuit state by key (0 closed, 1 open, 2 half-open).",
	}, []string{"key"})
)

// circuit is the per-key record. failures counts consecutive countable
// failures while closed; openedAt is when the circuit last opened.
type circuit struct {
	state    State
	failures int
	openedAt time.Time
}

// Breaker holds one circuit per key. A circuit opens after threshold
// consecutive failures, rejects calls for cooldown, then admits a single
// probe whose outcome closes or reopens it.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	countable func(error) bool

	mu       sync.Mutex
	circuits map[string]*circuit
	notify   func(key string, from, to State)
}

// New returns a breaker. Non-positive arguments fall back to 5 failures
// and a 30s cooldown.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		countable: func(error) bool { return true },
		circuits:  map[string]*circuit{},
	}
}

// WithClock replaces the time source.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// WithFailureFilter decides which Execute errors count as failures. An
// error the filter rejects is treated as a healthy response: a declined
// payment proves the rail is up.
func (b *Breaker) WithFailureFilter(countable func(error) bool) *Breaker {
	b.countable = countable
	return b
}

// OnTransition registers fn to be called, on its own goroutine, after
// every state change.
func (b *Breaker) OnTransition(fn func(key string, from, to State)) {
	b.mu.Lock()
	b.notify = fn
	b.mu.Unlock()
}

// Execute runs fn if the circuit for key admits it and records the result.
func (b *Breaker) Execute(key string, fn func() error) error {
	if !b.Allow(key) {
		return ErrOpen
	}
	err := fn()
	if err != nil && b.countable(err) {
		b.RecordFailure(key)
	} else {
		b.RecordSuccess(key)
	}
	return err
}

// Allow reports whether a call to key may proceed. The first call after
// the cooldown becomes the probe; others are refused until it reports.
func (b *Breaker) Allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuits[key]
	if c == nil {
		return true
	}
	switch c.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(c.openedAt) < b.cooldown {
			return false
		}
		b.move(key, c, StateHalfOpen)
		return true
	default:
		return false
	}
}

// RecordSuccess clears the failure streak and closes a half-open circuit.
func (b *Breaker) RecordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuits[key]
	if c == nil {
		return
	}
	c.failures = 0
	if c.state == StateHalfOpen {
		b.move(key, c, StateClosed)
	}
}

// RecordFailure extends the failure streak. The circuit opens when the
// streak reaches the threshold, or at once if the failure was the probe.
func (b *Breaker) RecordFailure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuits[key]
	if c == nil {
		c = &circuit{}
		b.circuits[key] = c
	}
	c.failures++

	switch {
	case c.state == StateHalfOpen,
		c.state == StateClosed && c.failures >= b.threshold:
		c.openedAt = b.now()
		b.move(key, c, StateOpen)
	}
}

// State returns the state of key; keys never seen are closed.
func (b *Breaker) State(key string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c := b.circuits[key]; c != nil {
		return c.state
	}
	return StateClosed
}

// move sets c to state to. b.mu must be held.
func (b *Breaker) move(key string, c *circuit, to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	transitionsTotal.WithLabelValues(key, from.String(), to.String()).Inc()
	stateGauge.WithLabelValues(key).Set(float64(to))
	if fn := b.notify; fn != nil {
		go fn(key, from, to)
	}
}
