package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/covidtrack/apiserver/config"
	"github.com/covidtrack/apiserver/internal/cache"
	"github.com/covidtrack/apiserver/internal/db"
	"github.com/covidtrack/apiserver/internal/handlers"
	"github.com/covidtrack/apiserver/internal/mq"
	"github.com/covidtrack/apiserver/internal/services"
	"github.com/covidtrack/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Server wraps the HTTP server, router and the connections it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	cache      *cache.RedisCache
	events     *mq.MQ
	logger     *slog.Logger
}

// New connects to the configured dependencies and builds the router.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	jwtSecret := strings.TrimSpace(cfg.Auth.JWTSecret)
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{db: dbConn, logger: logger}

	var observationOpts []services.ObservationOption
	statsCache, err := cache.NewRedisCache(ctx, cfg.Redis)
	if err != nil {
		s.close()
		return nil, err
	}
	if statsCache != nil {
		s.cache = statsCache
		observationOpts = append(observationOpts, services.WithStatsCache(statsCache))
		logger.Info("stats cache enabled", "ttl", cfg.Redis.StatsTTL)
	}

	events, err := mq.NewFromConfig(ctx, cfg.MQ)
	if err != nil {
		s.close()
		return nil, err
	}
	if events != nil {
		s.events = events
		observationOpts = append(observationOpts, services.WithEventPublisher(events, cfg.MQ.Channel))
		logger.Info("observation events enabled", "backend", cfg.MQ.Backend, "channel", cfg.MQ.Channel)
	}

	userRepo := store.NewUserRepository(dbConn)
	observationRepo := store.NewObservationRepository(dbConn)

	userService := services.NewUserService(userRepo)
	observationService := services.NewObservationService(observationRepo, logger, observationOpts...)
	tokens := services.NewTokenService([]byte(jwtSecret), cfg.Auth.TokenTTL)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(dbConn, cfg.Database.DBName),
	)
	metrics, err := handlers.NewMetrics(registry)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	authMiddleware := handlers.RequireAuth(tokens, logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		metrics.Middleware,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Get("/readyz", handlers.Readyz(s.readinessChecks()))
	router.Handle("/metrics", metrics.Handler())
	router.Route("/api/auth", func(r chi.Router) {
		handlers.AuthRouter(r, userService, tokens, logger)
	})
	router.Route("/api/data", func(r chi.Router) {
		handlers.ObservationRouter(r, observationService, logger, authMiddleware)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start runs the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and then releases the connections
// the server owns.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.close()
	return err
}

func (s *Server) readinessChecks() map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{
		"database": s.db.PingContext,
	}
	if s.cache != nil {
		checks["redis"] = s.cache.Health
	}
	return checks
}

func (s *Server) close() {
	if s.events != nil {
		if err := s.events.Close(); err != nil {
			s.logger.Warn("close event publisher", "error", err)
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Warn("close stats cache", "error", err)
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
