package correlation

import (
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/rs/zerolog"
)

func TestGenerateFormat(t *testing.T) {
	re := regexp.MustCompile(`^gw-[0-9a-f-]{36}$`)
	for i := 0; i < 10; i++ {
		id := Generate("gw")
		if !re.MatchString(id) {
			t.Fatalf("unexpected correlation id format: %q", id)
		}
	}
}

func TestGenerateUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := Generate("inf")
		if seen[id] {
			t.Fatalf("duplicate correlation id: %q", id)
		}
		seen[id] = true
	}
}

func TestMiddleware(t *testing.T) {
	log := zerolog.New(io.Discard)

	tests := []struct {
		name     string
		header   string
		value    string
		wantSame bool
	}{
		{"preferred header passes through", Header, "gw-abc123", true},
		{"fallback header passes through", FallbackHeader, "req-xyz", true},
		{"absent header mints new id", "", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seenInCtx string
			h := Middleware(log, "gw")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seenInCtx = FromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			rw := httptest.NewRecorder()
			h.ServeHTTP(rw, req)

			echoed := rw.Header().Get(Header)
			if echoed == "" {
				t.Fatal("response missing correlation header")
			}
			if echoed != seenInCtx {
				t.Fatalf("context id %q does not match echoed header %q", seenInCtx, echoed)
			}
			if tc.wantSame && echoed != tc.value {
				t.Fatalf("expected %q to pass through, got %q", tc.value, echoed)
			}
			if !tc.wantSame {
				re := regexp.MustCompile(`^gw-[0-9a-f-]{36}$`)
				if !re.MatchString(echoed) {
					t.Fatalf("minted id has unexpected format: %q", echoed)
				}
			}
		})
	}
}

func TestFromContextEmpty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := FromContext(req.Context()); got != "" {
		t.Fatalf("expected empty id on bare context, got %q", got)
	}
}
