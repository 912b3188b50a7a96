// Package auth resolves the viewer of a request.
//
// Authentication model:
// - Fee calculators and health endpoints: no auth required
// - Order endpoints: a Pi access token, resolved to a username through the
//   Pi Platform; in demo mode the X-Pi-Username header is trusted instead
// - Resolved tokens are cached briefly, keyed by their SHA-256 hash
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"
)

// Errors
var (
	ErrNoToken      = errors.New("pi access token required")
	ErrInvalidToken = errors.New("invalid or expired pi access token")
)

// IdentityProvider resolves an access token to a Pi username.
type IdentityProvider interface {
	CurrentUsername(ctx context.Context, token string) (string, error)
}

// DefaultCacheTTL bounds how long a resolved token is trusted without
// asking the platform again.
const DefaultCacheTTL = 5 * time.Minute

type cached struct {
	username  string
	expiresAt time.Time
}

// Manager resolves tokens through an IdentityProvider with a TTL cache.
type Manager struct {
	provider IdentityProvider
	ttl      time.Duration
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cached
}

// NewManager creates a new auth manager
func NewManager(provider IdentityProvider) *Manager {
	return &Manager{
		provider: provider,
		ttl:      DefaultCacheTTL,
		now:      time.Now,
		cache:    make(map[string]cached),
	}
}

// WithTTL sets the cache TTL; zero disables caching.
func (m *Manager) WithTTL(ttl time.Duration) *Manager {
	m.ttl = ttl
	return m
}

// CurrentUsername implements IdentityProvider. rawToken may carry a
// "Bearer " prefix.
func (m *Manager) CurrentUsername(ctx context.Context, rawToken string) (string, error) {
	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rawToken), "Bearer "))
	if token == "" {
		return "", ErrNoToken
	}

	key := hashToken(token)
	now := m.now()

	m.mu.Lock()
	if c, ok := m.cache[key]; ok && now.Before(c.expiresAt) {
		m.mu.Unlock()
		return c.username, nil
	}
	m.mu.Unlock()

	username, err := m.provider.CurrentUsername(ctx, token)
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}
	if username == "" {
		return "", ErrInvalidToken
	}

	if m.ttl > 0 {
		m.mu.Lock()
		m.cache[key] = cached{username: username, expiresAt: now.Add(m.ttl)}
		m.evictExpiredLocked(now)
		m.mu.Unlock()
	}
	return username, nil
}

// evictExpiredLocked drops stale cache entries. Caller holds m.mu.
func (m *Manager) evictExpiredLocked(now time.Time) {
	if len(m.cache) < 1024 {
		return
	}
	for k, c := range m.cache {
		if !now.Before(c.expiresAt) {
			delete(m.cache, k)
		}
	}
}

func hashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
