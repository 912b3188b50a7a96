// Package server wires the EscrowPi collaborators together and serves the
// HTTP API.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/escrowpi/escrowpi/internal/auth"
	"github.com/escrowpi/escrowpi/internal/circuitbreaker"
	"github.com/escrowpi/escrowpi/internal/comments"
	"github.com/escrowpi/escrowpi/internal/config"
	"github.com/escrowpi/escrowpi/internal/health"
	"github.com/escrowpi/escrowpi/internal/logging"
	"github.com/escrowpi/escrowpi/internal/notifications"
	"github.com/escrowpi/escrowpi/internal/orders"
	"github.com/escrowpi/escrowpi/internal/payments"
	"github.com/escrowpi/escrowpi/internal/pinetwork"
	"github.com/escrowpi/escrowpi/internal/ratelimit"
	"github.com/escrowpi/escrowpi/internal/security"
	"github.com/escrowpi/escrowpi/internal/traces"
)

// Version is reported by /health and the info endpoint. cmd/server
// overrides it with the linker-stamped build version.
var Version = "dev"

// Server owns the order service, its collaborators and the HTTP listener.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	// Collaborators. Options may preset any of them; New fills the rest.
	orderStore   orders.Store
	commentStore comments.Store
	inboxStore   notifications.Store
	payments     payments.Provider
	identity     auth.IdentityProvider

	orderService *orders.Service
	inbox        *notifications.Service
	expiryTimer  *orders.Timer
	authMgr      *auth.Manager
	health       *health.Registry
	rateLimiter  *ratelimit.Limiter
	db           *sql.DB // set only for the PostgreSQL backend

	router        *gin.Engine
	httpSrv       *http.Server
	traceShutdown func(context.Context) error
	drainDelay    time.Duration

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets the root logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithPaymentProvider replaces the Pi payment rail.
func WithPaymentProvider(p payments.Provider) Option {
	return func(s *Server) { s.payments = p }
}

// WithIdentityProvider replaces Pi token resolution.
func WithIdentityProvider(p auth.IdentityProvider) Option {
	return func(s *Server) { s.identity = p }
}

// WithStores replaces the order and comment stores.
func WithStores(o orders.Store, c comments.Store) Option {
	return func(s *Server) {
		s.orderStore, s.commentStore = o, c
	}
}

// WithNotificationStore replaces the notification store.
func WithNotificationStore(n notifications.Store) Option {
	return func(s *Server) { s.inboxStore = n }
}

// New builds a server from cfg. Nothing listens until Run.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		logger:     logging.New(cfg.LogLevel, cfg.LogFormat),
		health:     health.NewRegistry(),
		drainDelay: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	shutdown, err := traces.Init(context.Background(), cfg.OTLPEndpoint, Version, s.logger)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	s.traceShutdown = shutdown

	if err := s.setupStorage(); err != nil {
		return nil, err
	}
	if err := s.setupCollaborators(); err != nil {
		return nil, err
	}

	s.inbox = notifications.NewService(s.inboxStore)
	s.orderService = orders.NewService(s.orderStore, comments.NewService(s.commentStore), s.payments).
		WithLogger(s.logger).
		WithNotifier(s.inbox)
	s.expiryTimer = orders.NewTimer(s.orderService, s.orderStore, cfg.ExpirySweepInterval, cfg.OrderExpiry, s.logger)
	s.health.Register("expiry_timer", health.RunningChecker("expiry_timer", s.expiryTimer.Running))

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

// setupCollaborators resolves identity and payments. Both default to the
// Pi Platform client; demo mode swaps payments for the sandbox rail.
func (s *Server) setupCollaborators() error {
	cfg := s.cfg
	if err := security.CheckUpstream(cfg.PiAPIURL, cfg.IsProduction()); err != nil {
		return fmt.Errorf("PI_API_URL: %w", err)
	}
	pi := pinetwork.NewClient(pinetwork.Config{APIURL: cfg.PiAPIURL, APIKey: cfg.PiAPIKey})

	if s.identity == nil {
		s.identity = pi
	}
	s.authMgr = auth.NewManager(s.identity)

	switch {
	case s.payments != nil:
	case cfg.DemoMode:
		s.payments = payments.NewSandbox()
		s.logger.Warn("demo mode: payments settle in the sandbox")
	default:
		breaker := circuitbreaker.New(cfg.PaymentBreakerThreshold, cfg.PaymentBreakerCooldown)
		breaker.OnTransition(func(key string, from, to circuitbreaker.State) {
			s.logger.Warn("payment circuit changed", "key", key, "from", from.String(), "to", to.String())
		})
		s.payments = payments.NewGuarded(pi, breaker)
	}

	if g, ok := s.payments.(*payments.Guarded); ok {
		s.health.Register("payments", health.StateChecker("payments", g.State, circuitbreaker.State.String,
			circuitbreaker.StateClosed, circuitbreaker.StateHalfOpen))
	}
	return nil
}

// Router exposes the gin engine, mainly to tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
