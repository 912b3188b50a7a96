// Package metrics exposes EscrowPi's Prometheus series: HTTP traffic,
// order transitions, dispute events and collaborator health.
package metrics

import (
	"database/sql"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "escrowpi"

// HTTP traffic, labelled by route pattern so order ids never become labels.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "http", Name: "requests_total",
		Help: "HTTP requests by method, route and status class.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 15},
	}, []string{"method", "path"})
)

// Order workflow.
var (
	// TransitionsTotal results are committed, invalid, stale or failed.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "orders", Name: "transitions_total",
		Help: "Lifecycle actions by action and result.",
	}, []string{"action", "result"})

	DisputeEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "orders", Name: "dispute_events_total",
		Help: "Refund proposals, acceptances, withdrawals and declines by result.",
	}, []string{"event", "result"})

	OrdersExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "orders", Name: "expired_total",
		Help: "Orders moved to expired by the sweeper.",
	})

	OrderSettlementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "orders", Name: "settlement_seconds",
		Help:    "Time from creation to a terminal status.",
		Buckets: []float64{60, 600, 3600, 6 * 3600, 86400, 3 * 86400, 7 * 86400},
	})
)

// Collaborators.
var (
	PaymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "payments", Name: "total",
		Help: "Payment attempts by result.",
	}, []string{"result"})

	CollaboratorErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "collaborator_errors_total",
		Help: "Failed calls to the order store, comment store, payment rail and identity provider.",
	}, []string{"collaborator"})
)

// RegisterDB exports connection pool stats for db. Registering the same
// pool name twice is a no-op.
func RegisterDB(db *sql.DB, name string) error {
	err := prometheus.Register(collectors.NewDBStatsCollector(db, name))
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return nil
	}
	return err
}

// Middleware records latency and a status-class counter per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(c.Request.Method, route))
		c.Next()
		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, statusClass(c.Writer.Status())).Inc()
	}
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// statusClass maps 404 to "4xx" and so on.
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}
