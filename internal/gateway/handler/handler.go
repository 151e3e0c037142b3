// Package handler implements the gateway HTTP endpoints.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/vektralab/embedgate/internal/apierror"
	"github.com/vektralab/embedgate/internal/gateway/auth"
	"github.com/vektralab/embedgate/internal/gateway/ratelimit"
	"github.com/vektralab/embedgate/internal/gateway/upstream"
)

// GatewayVersion is reported by the health endpoint.
const GatewayVersion = "1.0.0"

const maxInputLen = 1024

// EmbedRequest is the public request schema.
type EmbedRequest struct {
	InputText string `json:"input_text"`
}

// EmbedResponse is the public response schema.
type EmbedResponse struct {
	Embedding []float64 `json:"embedding"`
	Model     string    `json:"model"`
}

// Handler serves the gateway API. Dependencies are injected at startup.
type Handler struct {
	upstream *upstream.Client
	limiter  ratelimit.Limiter
	log      zerolog.Logger
}

// New creates the gateway handler set.
func New(client *upstream.Client, limiter ratelimit.Limiter, log zerolog.Logger) *Handler {
	return &Handler{
		upstream: client,
		limiter:  limiter,
		log:      log.With().Str("component", "handler").Logger(),
	}
}

// ready reports whether startup wiring completed.
func (h *Handler) ready() bool {
	return h.upstream != nil && h.limiter != nil
}

// Health handles GET /health. The inference service status is embedded;
// a failing upstream probe does not fail the gateway's own health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if !h.ready() {
		apierror.Write(w, http.StatusServiceUnavailable, "Gateway not ready", "", "NOT_READY")
		return
	}

	inference := map[string]interface{}{"status": "unknown"}
	doc, err := h.upstream.Health(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("inference health check failed")
		inference = map[string]interface{}{"status": "unhealthy", "error": err.Error()}
	} else {
		inference = doc
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "healthy",
		"gateway_version":   GatewayVersion,
		"inference_service": inference,
	})
}

// Ready handles GET /ready for load balancers.
func (h *Handler) Ready(w http.ResponseWriter, _ *http.Request) {
	if !h.ready() {
		apierror.Write(w, http.StatusServiceUnavailable, "Gateway not ready", "", "NOT_READY")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Embed handles POST /v1/embed: validate, forward, classify failures.
func (h *Handler) Embed(w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())

	var req EmbedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.Write(w, http.StatusUnprocessableEntity, "Validation error", "request body must be JSON with input_text", "VALIDATION_ERROR")
		return
	}

	text := strings.TrimSpace(req.InputText)
	if text == "" {
		apierror.Write(w, http.StatusUnprocessableEntity, "Validation error", "input_text cannot be empty", "VALIDATION_ERROR")
		return
	}
	if utf8.RuneCountInString(text) > maxInputLen {
		apierror.Write(w, http.StatusUnprocessableEntity, "Validation error", "input_text exceeds 1024 characters", "VALIDATION_ERROR")
		return
	}

	result, err := h.upstream.Embed(r.Context(), text)
	if err != nil {
		switch {
		case errors.Is(err, upstream.ErrUpstreamTimeout):
			log.Error().Err(err).Msg("inference service timeout")
			apierror.Write(w, http.StatusGatewayTimeout, "Inference service timeout", "", "UPSTREAM_TIMEOUT")
		case errors.Is(err, upstream.ErrUpstream):
			log.Error().Err(err).Msg("inference service error")
			apierror.Write(w, http.StatusBadGateway, "Inference service error", "", "UPSTREAM_ERROR")
		default:
			log.Error().Err(err).Msg("embedding generation failed")
			apierror.Write(w, http.StatusInternalServerError, "Embedding generation failed", "", "INTERNAL_ERROR")
		}
		return
	}

	user, _ := auth.GetUser(r.Context())
	log.Info().
		Str("user_id", user.ID).
		Int("text_length", len(text)).
		Msg("embedding generated")

	writeJSON(w, http.StatusOK, EmbedResponse{
		Embedding: result.Embedding,
		Model:     result.Model,
	})
}

// Usage handles GET /v1/usage for the authenticated user. Counts are read
// without incrementing.
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.GetUser(r.Context())
	if !ok {
		apierror.Write(w, http.StatusUnauthorized, "Invalid API key", "", "AUTH_INVALID")
		return
	}

	usage, err := h.limiter.Usage(r.Context(), user.ID)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("user_id", user.ID).Msg("usage lookup failed")
		apierror.Write(w, http.StatusInternalServerError, "Usage lookup failed", "", "INTERNAL_ERROR")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": user.ID,
		"usage":   usage,
		"limits": map[string]int{
			"per_minute": user.PerMinute,
			"per_hour":   user.PerHour,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
