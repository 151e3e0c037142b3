// Package correlation carries a per-request tracing identifier through the
// request context, across service boundaries, and into every log record.
package correlation

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// Header is the preferred correlation header.
	Header = "X-Correlation-ID"
	// FallbackHeader is an alternative name some clients use.
	FallbackHeader = "X-Request-ID"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// Generate mints a new correlation ID. The prefix distinguishes where the
// ID was generated ("gw" for the gateway, "inf" for the inference server).
func Generate(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// FromContext returns the correlation ID for the current request, or ""
// if none was set.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(correlationIDKey).(string); ok {
		return v
	}
	return ""
}

// WithID returns a context carrying the given correlation ID.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// Middleware extracts the correlation ID from the incoming request (or
// mints one with the given prefix), stores it in the request context,
// attaches it to the request-scoped logger, and echoes it in the response
// header. The header is set before the handler runs so streaming responses
// are not buffered.
func Middleware(log zerolog.Logger, prefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(Header)
			if id == "" {
				id = r.Header.Get(FallbackHeader)
			}
			if id == "" {
				id = Generate(prefix)
			}

			w.Header().Set(Header, id)

			ctx := WithID(r.Context(), id)
			reqLog := log.With().Str("correlation_id", id).Logger()
			ctx = reqLog.WithContext(ctx)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
