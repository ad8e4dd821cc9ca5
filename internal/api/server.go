// Package api exposes the build pipeline over HTTP: build creation, the
// worker status callback, log access, and the GitHub webhook receiver.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/5l1v3r1/federalist/internal/auth"
	"github.com/5l1v3r1/federalist/internal/build"
	"github.com/5l1v3r1/federalist/internal/errors"
	"github.com/5l1v3r1/federalist/internal/site"
)

// Server is the HTTP front of the build pipeline.
type Server struct {
	Addr   string
	router *chi.Mux
	server *http.Server

	builds        *build.Service
	authz         *auth.Authorizer
	sites         site.Store
	webhookSecret string
	registry      *prom.Registry
}

// Options configures a Server.
type Options struct {
	Addr          string
	Builds        *build.Service
	Authorizer    *auth.Authorizer
	Sites         site.Store
	WebhookSecret string
	Registry      *prom.Registry
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// NewServer wires the routes and returns a server ready to start.
func NewServer(opts Options) *Server {
	s := &Server{
		Addr:          opts.Addr,
		router:        chi.NewRouter(),
		builds:        opts.Builds,
		authz:         opts.Authorizer,
		sites:         opts.Sites,
		webhookSecret: opts.WebhookSecret,
		registry:      opts.Registry,
	}

	s.setupRoutes()

	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 15 * time.Second
	}
	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Get("/health", s.handleHealth)
	if s.registry != nil {
		s.router.Get("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}).ServeHTTP)
	}

	s.router.Route("/v0", func(r chi.Router) {
		r.Post("/build", s.handleCreateBuild)
		r.Get("/site/{site_id}/build", s.handleListBuilds)

		// Worker callbacks authenticate with the per-build capability
		// token carried in the path, not a header.
		r.Post("/build/{id}/status/{token}", s.handleBuildStatus)
		r.Post("/build/{id}/log/{token}", s.handleCreateBuildLog)

		r.Get("/build/{build_id}/log", s.handleGetBuildLogs)
	})

	s.router.Post("/webhook/github", s.handleWebhook)
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start starts the server and blocks until it stops.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Response is the standard JSON envelope.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Success writes a success envelope.
func (s *Server) Success(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(Response{Success: true, Data: data})
}

// Error maps err to a status code and writes a generic error envelope.
// Forbidden responses deliberately carry no detail about why.
func (s *Server) Error(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.HTTPStatus(err)
	var message string
	switch code {
	case http.StatusNotFound:
		message = "not found"
	case http.StatusForbidden:
		message = "forbidden"
	case http.StatusBadRequest:
		message = "bad request"
	default:
		message = "internal server error"
		slog.Error("request failed", "path", r.URL.Path, "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(Response{Success: false, Error: message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// currentUser resolves the authenticated principal. Session handling lives in
// the fronting application; it asserts the user id in a trusted header.
func currentUser(r *http.Request) (int64, bool) {
	raw := r.Header.Get("X-Federalist-User")
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// pathID parses a numeric path parameter. Non-numeric ids behave exactly
// like missing entities.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, errors.NotFound("invalid id")
	}
	return id, nil
}
