package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vektralab/embedgate/internal/gateway/auth"
	"github.com/vektralab/embedgate/internal/gateway/ratelimit"
	"github.com/vektralab/embedgate/internal/gateway/upstream"
)

func newHandler(t *testing.T, inference http.HandlerFunc) *Handler {
	t.Helper()
	srv := httptest.NewServer(inference)
	t.Cleanup(srv.Close)
	log := zerolog.New(io.Discard)
	return New(upstream.New(srv.URL), ratelimit.NewMemory(log), log)
}

func postEmbed(h *Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/embed", strings.NewReader(body))
	req = req.WithContext(auth.WithUser(req.Context(), auth.User{ID: "u1", PerMinute: 60, PerHour: 1000}))
	rw := httptest.NewRecorder()
	h.Embed(rw, req)
	return rw
}

func okInference(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"embedding":[0.5,0.5],"model":"m"}`))
}

func TestEmbedValidation(t *testing.T) {
	h := newHandler(t, okInference)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"valid single char", `{"input_text":"a"}`, http.StatusOK},
		{"valid max length", `{"input_text":"` + strings.Repeat("a", 1024) + `"}`, http.StatusOK},
		{"too long", `{"input_text":"` + strings.Repeat("a", 1025) + `"}`, http.StatusUnprocessableEntity},
		{"empty", `{"input_text":""}`, http.StatusUnprocessableEntity},
		{"whitespace only", `{"input_text":"   "}`, http.StatusUnprocessableEntity},
		{"not json", `input_text=hello`, http.StatusUnprocessableEntity},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rw := postEmbed(h, tc.body)
			if rw.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rw.Code, rw.Body.String())
			}
		})
	}
}

func TestEmbedTrimsInput(t *testing.T) {
	var seen string
	h := newHandler(t, func(w http.ResponseWriter, r *http.Request) {
		var req EmbedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		seen = req.InputText
		okInference(w, r)
	})

	rw := postEmbed(h, `{"input_text":"  hello  "}`)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if seen != "hello" {
		t.Fatalf("expected trimmed input forwarded, got %q", seen)
	}
}

func TestEmbedUpstreamNon2xxMapsTo502(t *testing.T) {
	h := newHandler(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	rw := postEmbed(h, `{"input_text":"hello"}`)
	if rw.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rw.Code)
	}
}

func TestEmbedMalformedUpstreamBodyMapsTo502(t *testing.T) {
	h := newHandler(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"unexpected":"shape"}`))
	})
	rw := postEmbed(h, `{"input_text":"hello"}`)
	if rw.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rw.Code)
	}
}

func TestEmbedConnectionErrorMapsTo502(t *testing.T) {
	log := zerolog.New(io.Discard)
	// Nothing listens on this port.
	h := New(upstream.New("http://127.0.0.1:1"), ratelimit.NewMemory(log), log)
	rw := postEmbed(h, `{"input_text":"hello"}`)
	if rw.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rw.Code)
	}
}

func TestEmbedTimeoutMapsTo504(t *testing.T) {
	h := newHandler(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/embed", strings.NewReader(`{"input_text":"hello"}`))
	ctx, cancel := context.WithTimeout(req.Context(), 100*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)
	rw := httptest.NewRecorder()
	h.Embed(rw, req)

	if rw.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d: %s", rw.Code, rw.Body.String())
	}
}

func TestReadyStates(t *testing.T) {
	log := zerolog.New(io.Discard)

	notReady := New(nil, nil, log)
	rw := httptest.NewRecorder()
	notReady.Ready(rw, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when not wired, got %d", rw.Code)
	}

	ready := newHandler(t, okInference)
	rw = httptest.NewRecorder()
	ready.Ready(rw, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200 when wired, got %d", rw.Code)
	}
}
