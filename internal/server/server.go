package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"deployhook/internal/bus"
	"deployhook/internal/config"
	"deployhook/internal/deploy"
	"deployhook/internal/history"
	"deployhook/pkg/cmdutil"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// HTTP server timeouts
	HTTPReadHeaderTimeout = 5 * time.Second
	HTTPReadTimeout       = 10 * time.Second
	HTTPWriteTimeout      = 10 * time.Second
	HTTPIdleTimeout       = 60 * time.Second

	// Request timeout for middleware
	RequestTimeout = 30 * time.Second
)

// Launcher starts the deploy action for a trigger without waiting for it.
type Launcher interface {
	Launch(t deploy.Trigger) (*cmdutil.Process, error)
}

// Server represents the HTTP server
type Server struct {
	Config   *config.Config
	Launcher Launcher
	History  *history.History // optional
	Bus      bus.Bus          // optional
	Logger   *slog.Logger

	httpServer *http.Server
	launchWg   sync.WaitGroup // Tracks in-flight spawns, not the deploy processes

	mu      sync.Mutex
	closing bool
}

// NewServer creates a new server instance. hist and b may be nil.
func NewServer(cfg *config.Config, launcher Launcher, hist *history.History, b bus.Bus, logger *slog.Logger) *Server {
	s := &Server{
		Config:   cfg,
		Launcher: launcher,
		History:  hist,
		Bus:      b,
		Logger:   logger,
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.Router(),
		ReadHeaderTimeout: HTTPReadHeaderTimeout,
		ReadTimeout:       HTTPReadTimeout,
		WriteTimeout:      HTTPWriteTimeout,
		IdleTimeout:       HTTPIdleTimeout,
	}

	return s
}

// Router creates and configures the HTTP router
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	if s.Config.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))
	r.Use(NewLoggingMiddleware(s.Logger))

	// Unknown paths and wrong methods on known paths both answer a bare 404
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	r.Get(s.Config.HealthPath, s.HandleHealth)

	if s.Config.RateLimit > 0 {
		r.With(NewRateLimitMiddleware(s.Config.RateLimit, s.Logger)).Post(s.Config.DeployPath, s.HandleDeploy)
	} else {
		r.Post(s.Config.DeployPath, s.HandleDeploy)
	}

	return r
}

// Start listens on the configured address and blocks until Shutdown.
func (s *Server) Start() error {
	s.Logger.Info("starting server",
		"addr", s.httpServer.Addr,
		"deploy_path", s.Config.DeployPath,
		"health_path", s.Config.HealthPath,
		"branch", s.Config.Branch)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// beginLaunch registers a pending launch. It reports false once Shutdown has
// started waiting, so no launch is added behind the wait.
func (s *Server) beginLaunch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.launchWg.Add(1)
	return true
}

// WaitForLaunches waits for all in-flight launch goroutines. The deploy
// processes themselves are never waited on.
func (s *Server) WaitForLaunches() {
	s.launchWg.Wait()
}

// Shutdown stops accepting requests, waits for pending launches and closes the
// history and bus handles.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.launchWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.Logger.Warn("shutdown timed out waiting for deploy launches")
		if err == nil {
			err = ctx.Err()
		}
	}

	if s.Bus != nil {
		s.Bus.Close()
	}

	if s.History != nil {
		if closeErr := s.History.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}

	return err
}
