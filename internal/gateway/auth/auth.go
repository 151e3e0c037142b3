// Package auth validates bearer API keys and enforces per-user rate limits
// before requests reach the proxy handlers.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vektralab/embedgate/internal/apierror"
	"github.com/vektralab/embedgate/internal/gateway/keystore"
	"github.com/vektralab/embedgate/internal/gateway/ratelimit"
)

type contextKey string

// UserContextKey stores the authenticated user in the request context.
const UserContextKey contextKey = "auth_user"

// RateInfo reports the rate-limit outcome attached to an admitted request.
type RateInfo struct {
	RequestsThisMinute int  `json:"requests_this_minute"`
	RequestsThisHour   int  `json:"requests_this_hour"`
	MinuteLimit        int  `json:"minute_limit"`
	HourLimit          int  `json:"hour_limit"`
	Unlimited          bool `json:"unlimited,omitempty"`
}

// User is the authenticated caller attached to the request context.
type User struct {
	ID        string
	Name      string
	PerMinute int
	PerHour   int
	Rate      RateInfo
}

// Authenticator is the bearer-token authentication middleware.
type Authenticator struct {
	keys    *keystore.Store
	limiter ratelimit.Limiter
	bypass  bool
	log     zerolog.Logger
}

// New creates an authenticator. With bypass set, admitted requests report
// unlimited limits and zero usage.
func New(keys *keystore.Store, limiter ratelimit.Limiter, bypass bool, log zerolog.Logger) *Authenticator {
	a := &Authenticator{
		keys:    keys,
		limiter: limiter,
		bypass:  bypass,
		log:     log.With().Str("component", "auth").Logger(),
	}
	a.log.Info().Bool("bypass_rate_limits", bypass).Msg("authenticator initialized")
	return a
}

// Handler validates the Authorization header, checks rate limits, and
// attaches the user to the request context.
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			apierror.Write(w, http.StatusUnauthorized, "Missing API key", "Authorization: Bearer header required", "AUTH_MISSING")
			return
		}

		rec, ok := a.keys.Lookup(rawKey)
		if !ok {
			a.log.Warn().Str("key_prefix", keyPrefix(rawKey)).Msg("invalid api key attempt")
			w.Header().Set("WWW-Authenticate", "Bearer")
			apierror.Write(w, http.StatusUnauthorized, "Invalid API key", "", "AUTH_INVALID")
			return
		}

		user := User{
			ID:        rec.UserID,
			Name:      rec.Name,
			PerMinute: rec.PerMinute,
			PerHour:   rec.PerHour,
		}

		if a.bypass {
			user.Rate = RateInfo{Unlimited: true}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
			return
		}

		res, err := a.limiter.Check(r.Context(), rec.UserID, rec.PerMinute, rec.PerHour)
		if err != nil {
			var le *ratelimit.LimitError
			if errors.As(err, &le) {
				w.Header().Set("Retry-After", strconv.Itoa(le.RetryAfter))
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(le.Limit))
				w.Header().Set("X-RateLimit-Reset", strconv.Itoa(le.RetryAfter))
				apierror.WriteRateLimit(w, le.Error(), le.RetryAfter, le.Limit, le.LimitType)
				return
			}
			a.log.Error().Err(err).Str("user_id", rec.UserID).Msg("rate limiter failure")
			apierror.Write(w, http.StatusInternalServerError, "Internal server error", "", "INTERNAL_ERROR")
			return
		}

		user.Rate = RateInfo{
			RequestsThisMinute: res.MinuteCount,
			RequestsThisHour:   res.HourCount,
			MinuteLimit:        res.MinuteLimit,
			HourLimit:          res.HourLimit,
		}

		a.log.Debug().
			Str("user_id", rec.UserID).
			Int("requests_minute", res.MinuteCount).
			Int("requests_hour", res.HourCount).
			Msg("request authenticated")

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, UserContextKey, u)
}

// GetUser extracts the authenticated user from the request context.
func GetUser(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(UserContextKey).(User)
	return u, ok
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	if !strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(h[7:])
	if token == "" {
		return "", false
	}
	return token, true
}

// keyPrefix returns a short prefix of the raw key for log lines.
func keyPrefix(rawKey string) string {
	if len(rawKey) >= 16 {
		return rawKey[:16]
	}
	return "***"
}
