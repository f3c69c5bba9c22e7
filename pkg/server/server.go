// Package server exposes the chat service as a JSON HTTP API with an
// embedded single-page front-end.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/entrhq/aqlmind/pkg/chat"
	"github.com/entrhq/aqlmind/pkg/logging"
	"golang.org/x/sync/errgroup"
)

//go:embed static
var staticFS embed.FS

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Settings controls the HTTP listener.
type Settings struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server owns the HTTP handlers and the listener.
type Server struct {
	svc      *chat.Service
	logger   *logging.Logger
	settings Settings

	mux    *http.ServeMux
	server *http.Server
}

// NewServer registers the API routes for svc.
func NewServer(svc *chat.Service, settings Settings, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard("server")
	}
	if settings.ShutdownTimeout <= 0 {
		settings.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		svc:      svc,
		logger:   logger,
		settings: settings,
		mux:      http.NewServeMux(),
	}
	s.registerHTTPHandlers()

	s.server = &http.Server{
		Addr:              settings.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       settings.ReadTimeout,
		WriteTimeout:      settings.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) registerHTTPHandlers() {
	s.mux.HandleFunc("POST /api/load-url", s.handleLoadURL)
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("GET /api/session/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /api/session/{id}", s.handleDeleteSession)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// The embed directive guarantees the directory exists
		panic(fmt.Sprintf("static assets missing: %v", err))
	}
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		b, err := fs.ReadFile(staticSub, "index.html")
		if err != nil {
			writeError(w, http.StatusInternalServerError, "index not found")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(b)
	})
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.settings.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.settings.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		s.logger.Infof("Starting AqlMind API on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("Server listen error: %v", err)
			return err
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		s.logger.Infof("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.settings.ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Errorf("Server shutdown error: %v", err)
			return err
		}
		s.logger.Infof("Server shutdown complete")
		return nil
	})

	return eg.Wait()
}
