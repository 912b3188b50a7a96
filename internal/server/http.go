package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/escrowpi/escrowpi/internal/auth"
	"github.com/escrowpi/escrowpi/internal/fees"
	"github.com/escrowpi/escrowpi/internal/health"
	"github.com/escrowpi/escrowpi/internal/idgen"
	"github.com/escrowpi/escrowpi/internal/logging"
	"github.com/escrowpi/escrowpi/internal/metrics"
	"github.com/escrowpi/escrowpi/internal/notifications"
	"github.com/escrowpi/escrowpi/internal/orders"
	"github.com/escrowpi/escrowpi/internal/ratelimit"
	"github.com/escrowpi/escrowpi/internal/security"
	"github.com/escrowpi/escrowpi/internal/validation"
)

const requestIDHeader = "X-Request-ID"

func (s *Server) setupMiddleware() {
	s.router.Use(
		gin.CustomRecovery(s.recoverPanic),
		security.HeadersMiddleware(),
		security.CORSMiddleware(s.cfg.CORSOrigins),
		validation.RequestSizeMiddleware(validation.MaxRequestSize),
		metrics.Middleware(),
		s.requestContext(),
		accessLog(),
	)
}

func (s *Server) recoverPanic(c *gin.Context, recovered any) {
	logging.L(c.Request.Context()).Error("panic in handler",
		"panic", recovered,
		"route", c.FullPath(),
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error":   "internal",
		"message": "An unexpected error occurred",
	})
}

// requestContext tags the request context with a request id (the
// caller's X-Request-ID when present) and the root logger.
func (s *Server) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = idgen.New()
		}
		ctx := logging.WithLogger(logging.WithRequestID(c.Request.Context(), id), s.logger)
		c.Request = c.Request.WithContext(ctx)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// accessLog writes one line per request; 4xx at warn, 5xx at error.
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		logger := logging.L(c.Request.Context())
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		if u := auth.GetUsername(c); u != "" {
			attrs = append(attrs, "viewer", u)
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("request", append(attrs, "client_ip", c.ClientIP())...)
		case status >= http.StatusBadRequest:
			logger.Warn("request", attrs...)
		default:
			logger.Info("request", attrs...)
		}
	}
}

func (s *Server) setupRoutes() {
	r := s.router
	r.GET("/", s.infoHandler)
	r.GET("/health", s.healthHandler)
	r.GET("/health/live", s.livenessHandler)
	r.GET("/health/ready", s.readinessHandler)
	r.GET("/metrics", metrics.Handler())

	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: s.cfg.RateLimitPerMinute,
		BurstSize:         s.cfg.RateLimitBurst,
		CleanupInterval:   time.Minute,
	})

	v1 := r.Group("/v1", auth.Middleware(s.authMgr, s.cfg.DemoMode), s.rateLimiter.Middleware())
	fees.NewHandler().RegisterRoutes(v1)

	member := v1.Group("", auth.RequireAuth())
	member.GET("/me", s.meHandler)
	orders.NewHandler(s.orderService).RegisterProtectedRoutes(member)
	notifications.NewHandler(s.inbox).RegisterProtectedRoutes(member)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK
	var ok bool
	if ok, resp.Checks = s.health.CheckAll(ctx); !ok {
		resp.Status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

func (s *Server) livenessHandler(c *gin.Context) {
	probe(c, s.healthy.Load(), "alive", "unhealthy")
}

func (s *Server) readinessHandler(c *gin.Context) {
	probe(c, s.ready.Load(), "ready", "not_ready")
}

func probe(c *gin.Context, up bool, upStatus, downStatus string) {
	if !up {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": downStatus})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": upStatus})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "EscrowPi",
		"description": "Escrow transactions between Pi Network users",
		"version":     Version,
		"currency":    "PI",
		"demoMode":    s.cfg.DemoMode,
	})
}

// meHandler handles GET /v1/me
func (s *Server) meHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"username": auth.GetUsername(c)})
}
