// Package router assembles the inference server routes.
package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vektralab/embedgate/internal/correlation"
	"github.com/vektralab/embedgate/internal/inference/handler"
)

// Deps carries the wired dependencies for the router.
type Deps struct {
	Logger   zerolog.Logger
	Handler  *handler.Handler
	Registry *prometheus.Registry
}

// New returns the configured chi router for the inference server.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(correlation.Middleware(d.Logger, "inf"))
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(d.Logger))

	r.Get("/health", d.Handler.Health)
	r.Get("/ready", d.Handler.Ready)
	r.Post("/embed", d.Handler.Embed)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))

	return r
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("correlation_id", correlation.FromContext(r.Context())).
				Int("status", rw.Status()).
				Dur("duration", time.Since(start)).
				Msg("request completed")
		})
	}
}
