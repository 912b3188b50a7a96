// Package ratelimit throttles API clients with a token bucket per caller.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/escrowpi/escrowpi/internal/auth"
)

// Config configures rate limiting
type Config struct {
	// RequestsPerMinute is the sustained rate per caller
	RequestsPerMinute int
	// BurstSize allows brief bursts above the rate
	BurstSize int
	// CleanupInterval is how often idle callers are forgotten
	CleanupInterval time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		BurstSize:         10,
		CleanupInterval:   time.Minute,
	}
}

// Limiter tracks one bucket per key.
type Limiter struct {
	cfg     Config
	now     func() time.Time
	mu      sync.Mutex
	buckets map[string]*bucket
	stop    chan struct{}
	once    sync.Once
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// New creates a limiter and starts its cleanup loop.
func New(cfg Config) *Limiter {
	l := &Limiter{
		cfg:     cfg,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// WithClock replaces the time source, for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.evictIdle()
		case <-l.stop:
			return
		}
	}
}

// evictIdle drops buckets that have refilled completely; they carry no
// state a fresh bucket would not.
func (l *Limiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, b := range l.buckets {
		if l.refill(b, now) >= float64(l.cfg.BurstSize) {
			delete(l.buckets, key)
		}
	}
}

// Stop ends the cleanup loop. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) rate() float64 {
	return float64(l.cfg.RequestsPerMinute) / 60.0
}

func (l *Limiter) refill(b *bucket, now time.Time) float64 {
	elapsed := now.Sub(b.lastSeen).Seconds()
	return math.Min(float64(l.cfg.BurstSize), b.tokens+elapsed*l.rate())
}

// Allow takes a token for key. When none is left it reports how long
// until one is.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.BurstSize), lastSeen: now}
		l.buckets[key] = b
	}
	b.tokens = l.refill(b, now)
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	wait := time.Duration((1 - b.tokens) / l.rate() * float64(time.Second))
	return false, wait
}

// Key identifies the caller: the authenticated Pi username when auth
// middleware ran first, the client IP otherwise.
func Key(c *gin.Context) string {
	if u := auth.GetUsername(c); u != "" {
		return "user:" + u
	}
	return "ip:" + c.ClientIP()
}

// Middleware rejects callers over their rate with 429 and Retry-After.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, wait := l.Allow(Key(c))
		if !ok {
			secs := int(math.Ceil(wait.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests. Please slow down.",
				"retry_after": secs,
			})
			return
		}
		c.Next()
	}
}
