// Package cloud routes recorded audio to a cloud transcription provider.
// Dispatch is a switch on the closed provider set; each provider has its
// own request shape.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chaz8081/gostt-overlay/internal/artifact"
	"github.com/chaz8081/gostt-overlay/internal/provider"
)

// Endpoints are the provider base URLs. Zero fields use the defaults.
type Endpoints struct {
	OpenAI     string // API base, e.g. https://api.openai.com/v1
	Google     string // full speech:recognize URL
	OpenRouter string // full chat completions URL
}

var defaultEndpoints = Endpoints{
	OpenAI:     "https://api.openai.com/v1",
	Google:     "https://speech.googleapis.com/v1/speech:recognize",
	OpenRouter: "https://openrouter.ai/api/v1/chat/completions",
}

// Router sends artifacts to the provider named in a Selection.
// It never retries.
type Router struct {
	client    *http.Client
	endpoints Endpoints
}

// Option configures a Router.
type Option func(*Router)

// WithHTTPClient sets the client used for all provider calls.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Router) { r.client = c }
}

// WithEndpoints overrides provider URLs.
func WithEndpoints(e Endpoints) Option {
	return func(r *Router) {
		if e.OpenAI != "" {
			r.endpoints.OpenAI = e.OpenAI
		}
		if e.Google != "" {
			r.endpoints.Google = e.Google
		}
		if e.OpenRouter != "" {
			r.endpoints.OpenRouter = e.OpenRouter
		}
	}
}

// NewRouter creates a router using http.DefaultClient.
func NewRouter(opts ...Option) *Router {
	r := &Router{
		client:    http.DefaultClient,
		endpoints: defaultEndpoints,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Transcribe sends the artifact to sel.Provider and returns its transcript.
// An empty transcript is not an error.
func (r *Router) Transcribe(ctx context.Context, ref artifact.Ref, sel provider.Selection) (string, error) {
	if !sel.Provider.IsCloud() {
		return "", fmt.Errorf("%w: %s", ErrProviderUnsupported, sel.Provider)
	}
	if !sel.HasAPIKey() {
		return "", fmt.Errorf("%w for %s", ErrNoAPIKey, sel.Provider)
	}

	data, err := ref.Bytes()
	if err != nil {
		return "", fmt.Errorf("cloud: reading artifact: %w", err)
	}

	start := time.Now()
	var text string
	switch sel.Provider {
	case provider.OpenAI:
		text, err = r.openAI(ctx, ref, data, sel)
	case provider.Google:
		text, err = r.google(ctx, ref, data, sel)
	case provider.OpenRouter:
		text, err = r.openRouter(ctx, data, sel)
	default:
		return "", fmt.Errorf("%w: %s", ErrProviderUnsupported, sel.Provider)
	}
	if err != nil {
		slog.Warn("[cloud] transcription failed", "provider", sel.Provider, "error", err)
		return "", err
	}

	slog.Debug("[cloud] transcription done", "provider", sel.Provider, "elapsed", time.Since(start), "chars", len(text))
	return strings.TrimSpace(text), nil
}

// postJSON sends body as JSON and returns the response payload of a 2xx
// reply. Anything else becomes an *HTTPError.
func (r *Router) postJSON(ctx context.Context, p provider.Provider, url string, header http.Header, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("cloud: encoding %s request: %w", p, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("cloud: building %s request: %w", p, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &HTTPError{Provider: p, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &HTTPError{Provider: p, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{Provider: p, Status: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}
