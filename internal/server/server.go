package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/gatehouse/internal/avatar"
	"github.com/me/gatehouse/internal/config"
	"github.com/me/gatehouse/internal/password"
	"github.com/me/gatehouse/internal/ratelimit"
	"github.com/me/gatehouse/internal/session"
	"github.com/me/gatehouse/internal/store"
	"github.com/me/gatehouse/internal/ui"
	"github.com/rs/cors"
)

// Version is reported by the health and discovery endpoints.
var Version = "0.1.0"

// Server is the Gatehouse HTTP server: the HTML interface plus a small
// JSON API under /api/v1.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	users     store.UserStore
	sessions  *session.Manager
	limiter   *ratelimit.Limiter // optional; throttles POST /login
	ui        *ui.UI             // UI handler for web interface
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithLoginLimiter throttles login attempts per client address.
func WithLoginLimiter(l *ratelimit.Limiter) Option {
	return func(s *Server) {
		s.limiter = l
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, users store.UserStore, sessions *session.Manager, avatars *avatar.Storage, hasher *password.Hasher, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		users:     users,
		sessions:  sessions,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.ui = ui.New(users, sessions, avatars, hasher, logger, ui.Config{
		Secure:    cfg.Session.SecureCookies,
		StaticDir: cfg.StaticDir,
	})
	if s.limiter != nil {
		s.ui.WithLoginLimiter(s.limiter)
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	if len(s.config.CORS.AllowedOrigins) > 0 {
		r.Use(apiCORS(s.config.CORS.AllowedOrigins))
	}
	r.Use(s.ui.SessionMiddleware)

	// API routes (JSON)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)
		r.Get("/me", s.handleMe)

		r.Group(func(r chi.Router) {
			r.Use(requireAdminJSON)
			r.Get("/users", s.handleListUsers)
			r.Get("/sessions", s.handleSessionStats)
		})
	})

	// UI routes (HTML), static files, and the 404 page.
	s.ui.RegisterRoutes(r)
}

// apiCORS applies CORS headers to /api/v1 only. Preflight requests are
// answered here, before the session gate.
func apiCORS(origins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})
	return func(next http.Handler) http.Handler {
		withCORS := c.Handler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/api/v1") {
				withCORS.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
