// Package web provides the HTTP and websocket surface of the dashboard backend.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/justestif/go-spotify-dashboard/internal/auth"
	"github.com/justestif/go-spotify-dashboard/internal/logging"
	"github.com/justestif/go-spotify-dashboard/internal/playback"
)

// DefaultAddr is the default server address.
const DefaultAddr = ":3000"

// ServerConfig holds server configuration and dependencies.
type ServerConfig struct {
	Addr        string
	FrontendURI string

	Auth      *auth.Authenticator
	Tokens    *auth.TokenManager
	Sync      *playback.SyncServer
	Lyrics    LyricsResolver
	NewClient ClientFactory

	Logger *log.Logger
}

// Server is the HTTP server for the dashboard backend.
type Server struct {
	router   chi.Router
	server   *http.Server
	handlers *Handlers
	sync     *playback.SyncServer
	logger   *log.Logger
}

// NewServer creates a new web server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Auth == nil || cfg.Tokens == nil || cfg.Sync == nil || cfg.Lyrics == nil || cfg.NewClient == nil {
		return nil, errors.New("web: missing server dependency")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	handlers := NewHandlers(HandlersConfig{
		Auth:        cfg.Auth,
		Tokens:      cfg.Tokens,
		Sync:        cfg.Sync,
		Lyrics:      cfg.Lyrics,
		NewClient:   cfg.NewClient,
		FrontendURI: cfg.FrontendURI,
		Logger:      cfg.Logger,
	})

	s := &Server{
		router:   chi.NewRouter(),
		handlers: handlers,
		sync:     cfg.Sync,
		logger:   cfg.Logger,
	}

	// Configure middleware
	s.setupMiddleware(cfg.FrontendURI)

	// Configure routes
	s.setupRoutes()

	// Create HTTP server. No write timeout: websocket connections are long-lived.
	s.server = &http.Server{
		Addr:        cfg.Addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return s, nil
}

// setupMiddleware configures middleware for the router.
func (s *Server) setupMiddleware(frontendURI string) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{frontendURI},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// setupRoutes configures routes for the application.
func (s *Server) setupRoutes() {
	s.router.Get("/", s.handlers.Status)

	// Auth routes
	s.router.Get("/login", s.handlers.Login)
	s.router.Get("/callback", s.handlers.Callback)

	// API
	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Get("/data", s.handlers.Data)
		r.Get("/lyrics", s.handlers.Lyrics)
	})

	// Playback sync
	s.router.Get("/ws", s.handlers.Socket)
}

// Handler returns the root handler (used in tests).
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("server running", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown stops playback sync, closes open sockets and gracefully shuts
// down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.sync.Close()
	s.handlers.sockets.closeAll()
	return s.server.Shutdown(ctx)
}

// Run starts the server and handles graceful shutdown on interrupt signals.
func (s *Server) Run() error {
	// Channel to receive shutdown signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt or error
	select {
	case err := <-errCh:
		return err
	case <-stop:
		s.logger.Info("shutting down server")
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// upgrader accepts websocket connections from the frontend origin only.
func newUpgrader(frontendURI string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origin == frontendURI
		},
	}
}
