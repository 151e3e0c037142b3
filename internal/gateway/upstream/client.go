// Package upstream owns the persistent HTTP client used to reach the
// inference service.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/vektralab/embedgate/internal/correlation"
)

const (
	embedTimeout  = 30 * time.Second
	healthTimeout = 2 * time.Second
)

// Classified upstream failures. The handler maps these to HTTP statuses.
var (
	ErrUpstreamTimeout = errors.New("inference service timeout")
	ErrUpstream        = errors.New("inference service error")
)

// EmbedResult is the well-formed upstream response body.
type EmbedResult struct {
	Embedding []float64 `json:"embedding"`
	Model     string    `json:"model"`
}

// Client is a pooled HTTP client for the inference service. One instance
// is created at startup and reused for every request.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds the client with a keep-alive connection pool sized for high
// request concurrency against a single upstream host.
func New(baseURL string) *Client {
	transport := &http.Transport{
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 200,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Transport: transport,
			Timeout:   embedTimeout,
		},
	}
}

// Embed forwards one embedding request. The correlation ID from ctx is
// propagated on the wire. Failure classification: transport timeouts →
// ErrUpstreamTimeout; other transport failures, non-2xx statuses and
// malformed bodies → ErrUpstream. Errors building the request are returned
// unclassified.
func (c *Client) Embed(ctx context.Context, inputText string) (EmbedResult, error) {
	body, err := json.Marshal(map[string]string{"input_text": inputText})
	if err != nil {
		return EmbedResult{}, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return EmbedResult{}, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if id := correlation.FromContext(ctx); id != "" {
		req.Header.Set(correlation.Header, id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return EmbedResult{}, fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
		}
		return EmbedResult{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return EmbedResult{}, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, payload)
	}

	var result EmbedResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return EmbedResult{}, fmt.Errorf("%w: malformed response body: %v", ErrUpstream, err)
	}
	if len(result.Embedding) == 0 || result.Model == "" {
		return EmbedResult{}, fmt.Errorf("%w: incomplete response body", ErrUpstream)
	}
	return result, nil
}

// Health probes the inference /health endpoint with a short timeout and
// returns the raw status document.
func (c *Client) Health(ctx context.Context) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var doc map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: malformed health body: %v", ErrUpstream, err)
	}
	return doc, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}
