// Package httpapi exposes the job registry over HTTP: start a build by
// name, query its status, and stream its captured log as a chunked byte
// stream that follows the run live until it completes.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nixpig/buildhook/internal/jobs"
	"go.uber.org/zap"
)

// NewRouter wires the HTTP routes onto the given registry.
func NewRouter(registry *jobs.Registry, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	h := &handlers{registry: registry, logger: logger}

	r.Get("/healthz", h.health)

	r.Post("/start/{name}", h.start)

	r.Get("/logs/{name}", h.logsByName)
	r.Get("/logs/by-id/{id}", h.logsByID)

	r.Get("/jobs/{name}", h.status)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})

	return r
}

// requestLogger logs one line per completed request.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.String("requestId", middleware.GetReqID(r.Context())))
		})
	}
}
