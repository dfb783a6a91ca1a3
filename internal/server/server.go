// Package server wires storage, service, handlers and middleware into an
// HTTP server.
//
// DEPENDENCY FLOW:
//
//	config.Config → storage (memory | sqlite | postgres)
//	              → auth.PasswordService, auth.TokenService (optional)
//	              → service.UserService → handler.UserHandler → /api/users
//
// This is the composition root: nothing below this package knows which
// storage driver is in use.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mipt-portal/userservice/internal/auth"
	"github.com/mipt-portal/userservice/internal/config"
	"github.com/mipt-portal/userservice/internal/handler"
	"github.com/mipt-portal/userservice/internal/middleware"
	"github.com/mipt-portal/userservice/internal/repository"
	"github.com/mipt-portal/userservice/internal/repository/memory"
	"github.com/mipt-portal/userservice/internal/repository/postgres"
	sqliteRepo "github.com/mipt-portal/userservice/internal/repository/sqlite"
	"github.com/mipt-portal/userservice/internal/service"
)

// store is what the server needs from a storage backend. Close is a no-op
// for the in-memory store.
type store interface {
	repository.UserRepository
	io.Closer
}

type pinger interface {
	Ping(ctx context.Context) error
}

// memoryStore adapts memory.UserStore to the store interface.
type memoryStore struct{ *memory.UserStore }

func (memoryStore) Close() error { return nil }

// Server represents the HTTP server and everything it owns.
//
// The Server owns the storage handle; Start closes it after shutdown.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	store  store
}

// New opens storage and builds the router.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	st, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  st,
	}

	if err := s.setupRoutes(); err != nil {
		st.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memoryStore{memory.NewUserStore()}, nil
	case config.DriverSQLite:
		db, err := sqliteRepo.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite database: %w", err)
		}
		return db, nil
	case config.DriverPostgres:
		db, err := postgres.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("opening postgres database: %w", err)
		}
		return db, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures middleware and routes.
//
// ROUTES:
// GET  /healthz      → storage ping
// *    /api/users/*  → account routes, see handler.UserHandler.Routes
//
// MIDDLEWARE ORDER:
// 1. RequestID, so the logger can print it
// 2. RealIP
// 3. Recoverer, turns panics into 500
// 4. Logger
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	passwords, err := auth.NewPasswordServiceWithCost(s.config.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("creating password service: %w", err)
	}

	// A nil *TokenService must not reach the handler as a non-nil interface.
	var tokens handler.TokenIssuer
	if s.config.Auth.JWTSecret != "" {
		ts, err := auth.NewTokenService(s.config.Auth.JWTSecret, s.config.Auth.TokenTTL)
		if err != nil {
			return fmt.Errorf("creating token service: %w", err)
		}
		tokens = ts
	} else {
		s.logger.Warn("jwt_secret not set, login will not issue a token cookie")
	}

	userService := service.NewUserService(s.store, passwords, auth.NewLegacySalt, s.logger)
	userHandler := handler.NewUserHandler(userService, tokens, s.logger)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/api/users", userHandler.Routes)

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			s.logger.Error("storage ping failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// Close releases the storage handle. Start calls it on the way out.
func (s *Server) Close() error {
	return s.store.Close()
}

// Start serves until SIGINT/SIGTERM, then shuts down gracefully:
// 1. stop accepting connections
// 2. wait for in-flight requests, up to shutdown_timeout
// 3. close storage
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("storage", s.config.Storage.Driver),
			slog.Bool("token_cookie", s.config.Auth.JWTSecret != ""),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
