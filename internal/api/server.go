// Package api wires the HTTP surface: ephemeris query routes, derived
// position routes, the SSE stream, probes, metrics, and the admin
// refresh trigger. Data routes are mounted both at the root and under
// /api/v1.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arshansani/ISS-Tracker/internal/auth"
	"github.com/arshansani/ISS-Tracker/internal/geocode"
	"github.com/arshansani/ISS-Tracker/internal/health"
	"github.com/arshansani/ISS-Tracker/internal/metrics"
	"github.com/arshansani/ISS-Tracker/internal/observability"
	"github.com/arshansani/ISS-Tracker/internal/oem"
	"github.com/arshansani/ISS-Tracker/internal/query"
	"github.com/arshansani/ISS-Tracker/internal/stream"
)

// RefreshTrigger requests an immediate feed refresh.
type RefreshTrigger interface {
	TriggerRefresh()
}

// Deps bundles the collaborators the HTTP layer serves.
type Deps struct {
	Logger   *slog.Logger
	Query    *query.Service
	Store    *oem.Store
	Resolver geocode.Resolver
	Stream   *stream.Handler
	Refresh  RefreshTrigger
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, authCfg auth.Config, deps Deps) *Server {
	h := &handlers{
		logger:   deps.Logger,
		query:    deps.Query,
		resolver: deps.Resolver,
		refresh:  deps.Refresh,
	}

	r := chi.NewRouter()

	// Middleware chain: tracing -> metrics -> logging -> auth.
	r.Use(observability.HTTPMiddleware)
	r.Use(metrics.Middleware)
	r.Use(loggingMiddleware(deps.Logger))
	r.Use(auth.Middleware(authCfg))

	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz(deps.Store))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	registerData := func(r chi.Router) {
		r.Get("/comment", h.comment)
		r.Get("/header", h.header)
		r.Get("/metadata", h.metadata)
		r.Get("/epochs", h.epochs)
		r.Get("/epochs/{epoch}", h.epochByID)
		r.Get("/epochs/{epoch}/speed", h.epochSpeed)
		r.Get("/epochs/{epoch}/location", h.epochLocation)
		r.Get("/now", h.now)
		r.Get("/passes", h.passes)
		if deps.Stream != nil {
			r.Get("/stream/position", deps.Stream.HandlePosition)
		}
		r.Post("/admin/refresh", h.adminRefresh)
	}

	registerData(r)
	r.Route("/api/v1", registerData)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: deps.Logger,
	}
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush passes through so the SSE stream can flush through the recorder.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
