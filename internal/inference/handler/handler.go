// Package handler implements the inference server HTTP endpoints.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vektralab/embedgate/internal/apierror"
	"github.com/vektralab/embedgate/internal/inference/batcher"
	"github.com/vektralab/embedgate/internal/inference/model"
)

// EmbedRequest is the internal request schema.
type EmbedRequest struct {
	InputText string `json:"input_text"`
}

// EmbedResponse is the internal response schema.
type EmbedResponse struct {
	Embedding []float64 `json:"embedding"`
	Model     string    `json:"model"`
}

// HealthResponse reports model identity and scheduler load.
type HealthResponse struct {
	Status          string `json:"status"`
	Model           string `json:"model"`
	Device          string `json:"device"`
	QueueSize       int    `json:"queue_size"`
	InflightBatches int    `json:"inflight_batches"`
}

// Handler serves the inference API.
type Handler struct {
	model     model.EmbeddingModel
	scheduler batcher.Scheduler
	log       zerolog.Logger
}

// New creates the inference handler set.
func New(m model.EmbeddingModel, s batcher.Scheduler, log zerolog.Logger) *Handler {
	return &Handler{
		model:     m,
		scheduler: s,
		log:       log.With().Str("component", "handler").Logger(),
	}
}

func (h *Handler) ready() bool {
	return h.model != nil && h.scheduler != nil && h.scheduler.Started()
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	if !h.ready() {
		apierror.Write(w, http.StatusServiceUnavailable, "Service not ready", "", "NOT_READY")
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:          "healthy",
		Model:           h.model.Name(),
		Device:          h.model.Device(),
		QueueSize:       h.scheduler.QueueSize(),
		InflightBatches: h.scheduler.InflightBatches(),
	})
}

// Ready handles GET /ready.
func (h *Handler) Ready(w http.ResponseWriter, _ *http.Request) {
	if !h.ready() {
		apierror.Write(w, http.StatusServiceUnavailable, "Service not ready", "", "NOT_READY")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Embed handles POST /embed. Requests are batched transparently.
func (h *Handler) Embed(w http.ResponseWriter, r *http.Request) {
	if !h.ready() {
		apierror.Write(w, http.StatusServiceUnavailable, "Service not ready", "", "NOT_READY")
		return
	}

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

	vec, err := h.scheduler.Predict(r.Context(), text)
	if err != nil {
		log := zerolog.Ctx(r.Context())
		switch {
		case errors.Is(err, batcher.ErrNotStarted), errors.Is(err, batcher.ErrShutdown):
			apierror.Write(w, http.StatusServiceUnavailable, "Service not ready", "", "NOT_READY")
		case errors.Is(err, batcher.ErrQueueFull):
			log.Warn().Msg("request queue full")
			apierror.Write(w, http.StatusServiceUnavailable, "Server overloaded", "", "QUEUE_FULL")
		default:
			log.Error().Err(err).Msg("embedding generation failed")
			apierror.Write(w, http.StatusInternalServerError, "Embedding generation failed", "", "INTERNAL_ERROR")
		}
		return
	}

	writeJSON(w, http.StatusOK, EmbedResponse{
		Embedding: vec,
		Model:     h.model.Name(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
