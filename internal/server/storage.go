package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/escrowpi/escrowpi/internal/comments"
	"github.com/escrowpi/escrowpi/internal/health"
	"github.com/escrowpi/escrowpi/internal/metrics"
	"github.com/escrowpi/escrowpi/internal/notifications"
	"github.com/escrowpi/escrowpi/internal/orderapi"
	"github.com/escrowpi/escrowpi/internal/orders"
	"github.com/escrowpi/escrowpi/internal/security"
	"github.com/escrowpi/escrowpi/migrations"
)

// setupStorage picks the order backend named by cfg.StorageBackend unless
// options already supplied the order and comment stores. Notifications
// follow the same backend and fall back to memory.
func (s *Server) setupStorage() error {
	if s.orderStore != nil && s.commentStore != nil {
		if s.inboxStore == nil {
			s.inboxStore = notifications.NewMemoryStore()
		}
		return nil
	}
	cfg := s.cfg

	switch cfg.StorageBackend() {
	case "postgres":
		db, err := s.openPostgres(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		s.db = db
		s.orderStore = orders.NewPostgresStore(db)
		s.commentStore = comments.NewPostgresStore(db)
		if s.inboxStore == nil {
			s.inboxStore = notifications.NewPostgresStore(db)
		}
		s.health.Register("database", health.PingChecker("database", db))
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

	case "orderapi":
		if err := security.CheckUpstream(cfg.OrderAPIURL, cfg.IsProduction()); err != nil {
			return fmt.Errorf("ORDER_API_URL: %w", err)
		}
		client := orderapi.New(cfg.OrderAPIURL, cfg.OrderAPIToken)
		s.orderStore = client
		s.commentStore = client.Comments()
		if s.inboxStore == nil {
			s.inboxStore = client.Notifications()
		}
		s.health.Register("order_api", health.PingChecker("order_api", client))
		s.logger.Info("using EscrowPi order backend", "url", cfg.OrderAPIURL)

	default:
		s.orderStore = orders.NewMemoryStore()
		s.commentStore = comments.NewMemoryStore()
		if s.inboxStore == nil {
			s.inboxStore = notifications.NewMemoryStore()
		}
		s.logger.Warn("using in-memory storage; orders are lost on restart")
	}
	return nil
}

func (s *Server) openPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if s.cfg.AutoMigrate {
		if err := migrations.Up(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		s.logger.Info("database schema migrated")
	}
	if err := metrics.RegisterDB(db, "escrowpi"); err != nil {
		s.logger.Warn("db stats not exported", "error", err)
	}
	return db, nil
}

// maskDSN replaces the password in a connection URL for logging.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
