// Package server is the HTTP sink that receives interaction batches and
// serves the stored analytics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vincentbai/classtrace/internal/clock"
	"github.com/vincentbai/classtrace/internal/config"
	"github.com/vincentbai/classtrace/internal/database"
	"github.com/vincentbai/classtrace/internal/logging"
	"github.com/vincentbai/classtrace/internal/models"
)

// Store is the persistence the sink needs. *database.Database satisfies it.
type Store interface {
	Health(ctx context.Context) error
	InsertBatch(ctx context.Context, batch database.StoredBatch) (int, error)
	Behavior(ctx context.Context, userID string, since time.Time) (*database.BehaviorAnalysis, error)
	Users(ctx context.Context) ([]database.UserSummary, error)
	PageViews(ctx context.Context, since time.Time) ([]models.PageView, error)
}

type Server struct {
	db       Store
	address  string
	cfg      config.ServerConfig
	clock    clock.Clock
	validate *validator.Validate
	log      zerolog.Logger
}

func NewServer(db Store, cfg config.ServerConfig, clk clock.Clock) *Server {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Server{
		db:       db,
		address:  cfg.Address,
		cfg:      cfg,
		clock:    clk,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      logging.Component("server"),
	}
}

func (s *Server) setupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", chimiddleware.RequestIDHeader},
			MaxAge:         300,
		}))
	}

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(httprate.LimitByIP(s.cfg.RateLimit, s.cfg.RateLimitWindow))
		}
		r.Get("/health", s.handleHealth)
		r.Post("/interactions", s.handleInteractions)
		r.Get("/analytics", s.handleAnalytics)
		r.Get("/analytics/dashboards", s.handleDashboards)
		r.Get("/users", s.handleUsers)
	})
	return r
}

// Serve runs the server until ctx is canceled, then shuts it down within
// the configured timeout. It satisfies suture.Service.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}
	return s.serve(ctx, listener)
}

func (s *Server) serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:      s.setupRoutes(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("address", listener.Addr().String()).Msg("classtrace sink listening")
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.log.Info().Msg("shutting down server")
		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		<-errCh
		s.log.Info().Msg("server exited")
		return ctx.Err()
	}
}

func (s *Server) String() string {
	return "classtrace-sink"
}
