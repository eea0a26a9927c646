package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/isdmx/evalbox/config"
	"github.com/isdmx/evalbox/sandbox"
)

const (
	readTimeout = 15 * time.Second
	idleTimeout = 60 * time.Second
	// writeMargin is added to the execution timeout so slow snippets can
	// still deliver their result.
	writeMargin = 15 * time.Second
)

// Server is the REST transport.
type Server struct {
	config     *config.Config
	logger     *zap.Logger
	router     *chi.Mux
	httpServer *http.Server
}

// New creates the REST server and its routes.
func New(cfg *config.Config, logger *zap.Logger, exec sandbox.SandboxExecutor) *Server {
	s := &Server{
		config: cfg,
		logger: logger,
		router: chi.NewRouter(),
	}

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(RequestLogger(logger))

	execute := NewExecuteHandler(exec, logger)
	s.router.Get("/healthz", handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Post("/execute", execute.HandleExecute)
	})

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: cfg.GetTimeout() + writeMargin,
		IdleTimeout:  idleTimeout,
	}

	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("starting REST server", zap.Int("port", s.config.Server.HTTPPort))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight executions.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	s.logger.Info("REST server stopped")
	return nil
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
