// Package router assembles the gateway middleware chain and routes.
package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/vektralab/embedgate/internal/apierror"
	"github.com/vektralab/embedgate/internal/correlation"
	"github.com/vektralab/embedgate/internal/gateway/auth"
	"github.com/vektralab/embedgate/internal/gateway/handler"
)

// Deps carries the wired dependencies for the router.
type Deps struct {
	Logger        zerolog.Logger
	Handler       *handler.Handler
	Authenticator *auth.Authenticator
	MaxBodyBytes  int64
}

// New returns the configured chi router with the full middleware chain.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	// Order matters: correlation first so every later log line carries the
	// ID, then recovery, then the request logger.
	r.Use(correlation.Middleware(d.Logger, "gw"))
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(d.Logger))
	r.Use(maxBodySize(d.MaxBodyBytes))

	// Public endpoints.
	r.Get("/health", d.Handler.Health)
	r.Get("/ready", d.Handler.Ready)

	// Protected endpoints.
	r.Route("/v1", func(r chi.Router) {
		r.Use(d.Authenticator.Handler)
		r.Post("/embed", d.Handler.Embed)
		r.Get("/usage", d.Handler.Usage)
	})

	return r
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("correlation_id", correlation.FromContext(r.Context())).
				Int("status", rw.Status()).
				Dur("duration", time.Since(start)).
				Msg("request completed")
		})
	}
}

func maxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = 1 * 1024 * 1024
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > 0 && r.ContentLength > maxBytes {
				apierror.Write(w, http.StatusRequestEntityTooLarge, "Request too large", "", "BODY_TOO_LARGE")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
