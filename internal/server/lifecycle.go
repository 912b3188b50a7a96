package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// Run serves HTTP and runs the expiry timer until ctx is cancelled, SIGINT
// or SIGTERM arrives, or the listener fails. It then shuts down.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", ":"+s.cfg.Port)
	if err != nil {
		return fmt.Errorf("listen on :%s: %w", s.cfg.Port, err)
	}
	s.httpSrv = &http.Server{
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.httpSrv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.expiryTimer.Start(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down", "cause", context.Cause(gctx))
		return s.Shutdown()
	})

	s.ready.Store(true)
	s.logger.Info("server ready", "addr", ln.Addr().String(), "storage", s.cfg.StorageBackend())
	return g.Wait()
}

// Shutdown drains traffic and releases every resource New acquired. The
// HTTP server gets 30s to finish in-flight requests.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.expiryTimer.Stop()

	// Readiness is already failing; let load balancers notice before
	// the listener closes.
	time.Sleep(s.drainDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs []error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if err := s.traceShutdown(ctx); err != nil {
		s.logger.Error("trace shutdown failed", "error", err)
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	s.logger.Info("server stopped")
	return errors.Join(errs...)
}
