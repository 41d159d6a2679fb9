package cloud

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/chaz8081/gostt-overlay/internal/artifact"
	"github.com/chaz8081/gostt-overlay/internal/provider"
)

func testArtifact(t *testing.T, sampleRate int) artifact.Ref {
	t.Helper()
	samples := make([]float32, sampleRate/10)
	for i := range samples {
		samples[i] = 0.1
	}
	ref, err := artifact.WriteWAV(filepath.Join(t.TempDir(), "speech.wav"), samples, sampleRate, 1)
	if err != nil {
		t.Fatalf("WriteWAV() error = %v", err)
	}
	return ref
}

// countingServer counts requests and always answers 500.
func countingServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func routerFor(srv *httptest.Server) *Router {
	return NewRouter(
		WithHTTPClient(srv.Client()),
		WithEndpoints(Endpoints{
			OpenAI:     srv.URL + "/v1",
			Google:     srv.URL + "/v1/speech:recognize",
			OpenRouter: srv.URL + "/api/v1/chat/completions",
		}),
	)
}

func TestTranscribeNoAPIKeySkipsNetwork(t *testing.T) {
	srv, hits := countingServer(t)
	r := routerFor(srv)
	ref := testArtifact(t, 16000)

	for _, p := range []provider.Provider{provider.OpenAI, provider.Google, provider.OpenRouter} {
		t.Run(p.String(), func(t *testing.T) {
			_, err := r.Transcribe(context.Background(), ref, provider.Selection{Provider: p, Language: "en-US", APIKey: " "})
			if !errors.Is(err, ErrNoAPIKey) {
				t.Fatalf("Transcribe() error = %v, want ErrNoAPIKey", err)
			}
		})
	}
	if n := hits.Load(); n != 0 {
		t.Errorf("server received %d requests, want 0", n)
	}
}

func TestTranscribeProviderUnsupported(t *testing.T) {
	srv, hits := countingServer(t)
	r := routerFor(srv)
	ref := testArtifact(t, 16000)

	for _, p := range []provider.Provider{provider.CustomLocal, provider.Provider(42)} {
		_, err := r.Transcribe(context.Background(), ref, provider.Selection{Provider: p, APIKey: "k"})
		if !errors.Is(err, ErrProviderUnsupported) {
			t.Errorf("Transcribe(%v) error = %v, want ErrProviderUnsupported", p, err)
		}
	}
	if n := hits.Load(); n != 0 {
		t.Errorf("server received %d requests, want 0", n)
	}
}

func TestOpenAIMultipart(t *testing.T) {
	ref := testArtifact(t, 16000)
	want, _ := ref.Bytes()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model = %q, want whisper-1", got)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("language = %q, want base subtag en", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer f.Close()
		if hdr.Filename != "speech.wav" {
			t.Errorf("filename = %q", hdr.Filename)
		}
		got, _ := io.ReadAll(f)
		if !bytes.Equal(got, want) {
			t.Error("uploaded file differs from artifact")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":" hello there "}`))
	}))
	defer srv.Close()

	text, err := routerFor(srv).Transcribe(context.Background(), ref, provider.Selection{
		Provider: provider.OpenAI,
		Model:    "whisper-1",
		APIKey:   "sk-test",
		Language: "en-US",
	})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "hello there" {
		t.Errorf("Transcribe() = %q, want %q", text, "hello there")
	}
}

func TestOpenAIHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := routerFor(srv).Transcribe(context.Background(), testArtifact(t, 16000), provider.Selection{
		Provider: provider.OpenAI, APIKey: "bad", Language: "en-US",
	})
	var herr *HTTPError
	if !errors.As(err, &herr) {
		t.Fatalf("Transcribe() error = %v, want *HTTPError", err)
	}
	if herr.Status != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", herr.Status)
	}
	if !strings.Contains(herr.Body, "Incorrect API key") {
		t.Errorf("Body = %q", herr.Body)
	}
}

func TestGoogleRequest(t *testing.T) {
	ref := testArtifact(t, 22050)
	want, _ := ref.Bytes()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/speech:recognize" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("key"); got != "g-key" {
			t.Errorf("key = %q", got)
		}
		var req googleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding body: %v", err)
			return
		}
		c := req.Config
		if c.Encoding != "LINEAR16" || c.SampleRateHertz != 22050 || c.AudioChannelCount != 1 {
			t.Errorf("config = %+v, want LINEAR16 22050 Hz mono", c)
		}
		if c.LanguageCode != "pt-BR" {
			t.Errorf("languageCode = %q, want full locale", c.LanguageCode)
		}
		if c.Model != "phone_call" || !c.UseEnhanced {
			t.Errorf("model = %q enhanced = %v, want phone_call/true", c.Model, c.UseEnhanced)
		}
		audio, err := base64.StdEncoding.DecodeString(req.Audio.Content)
		if err != nil || !bytes.Equal(audio, want) {
			t.Error("audio content does not round-trip")
		}
		w.Write([]byte(`{"results":[
			{"alternatives":[{"transcript":"olá","confidence":0.9},{"transcript":"ola"}]},
			{"alternatives":[{"transcript":" mundo "}]}
		]}`))
	}))
	defer srv.Close()

	text, err := routerFor(srv).Transcribe(context.Background(), ref, provider.Selection{
		Provider: provider.Google, Model: "enhanced", APIKey: "g-key", Language: "pt-BR",
	})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "olá mundo" {
		t.Errorf("Transcribe() = %q, want %q", text, "olá mundo")
	}
}

func TestGoogleEmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	text, err := routerFor(srv).Transcribe(context.Background(), testArtifact(t, 16000), provider.Selection{
		Provider: provider.Google, APIKey: "k", Language: "en-US",
	})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "" {
		t.Errorf("Transcribe() = %q, want empty", text)
	}
}

func TestGoogleRejectsSampleRate(t *testing.T) {
	srv, hits := countingServer(t)
	_, err := routerFor(srv).Transcribe(context.Background(), testArtifact(t, 96000), provider.Selection{
		Provider: provider.Google, APIKey: "k", Language: "en-US",
	})
	if !errors.Is(err, ErrInvalidAudio) {
		t.Fatalf("Transcribe() error = %v, want ErrInvalidAudio", err)
	}
	if hits.Load() != 0 {
		t.Error("request sent for invalid audio")
	}
}

func TestGoogleHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"API key not valid"}}`))
	}))
	defer srv.Close()

	_, err := routerFor(srv).Transcribe(context.Background(), testArtifact(t, 16000), provider.Selection{
		Provider: provider.Google, APIKey: "k", Language: "en-US",
	})
	var herr *HTTPError
	if !errors.As(err, &herr) || herr.Status != http.StatusForbidden {
		t.Fatalf("Transcribe() error = %v, want HTTP 403", err)
	}
	if !strings.Contains(herr.Body, "API key not valid") {
		t.Errorf("Body = %q, want raw response", herr.Body)
	}
}

func TestGoogleModel(t *testing.T) {
	tests := []struct {
		tier     string
		model    string
		enhanced bool
	}{
		{"", "default", false},
		{"standard", "default", false},
		{"Enhanced", "phone_call", true},
		{"latest_long", "latest_long", false},
	}
	for _, tt := range tests {
		model, enhanced := googleModel(tt.tier)
		if model != tt.model || enhanced != tt.enhanced {
			t.Errorf("googleModel(%q) = %q, %v, want %q, %v", tt.tier, model, enhanced, tt.model, tt.enhanced)
		}
	}
}

func TestOpenRouterRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer or-key" {
			t.Errorf("Authorization = %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding body: %v", err)
			return
		}
		if req.Model != "openai/gpt-4o-audio-preview" {
			t.Errorf("model = %q", req.Model)
		}
		parts := req.Messages[0].Content
		if len(parts) != 2 || parts[1].Type != "input_audio" || parts[1].InputAudio.Format != "wav" {
			t.Errorf("content parts = %+v", parts)
			return
		}
		if !strings.Contains(parts[0].Text, "fr-FR") {
			t.Errorf("prompt %q does not name the locale", parts[0].Text)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"bonjour tout le monde\n"}}]}`))
	}))
	defer srv.Close()

	text, err := routerFor(srv).Transcribe(context.Background(), testArtifact(t, 16000), provider.Selection{
		Provider: provider.OpenRouter, Model: "openai/gpt-4o-audio-preview", APIKey: "or-key", Language: "fr-FR",
	})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "bonjour tout le monde" {
		t.Errorf("Transcribe() = %q", text)
	}
}

func TestOpenRouterErrorInBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"code":429,"message":"rate limited upstream"}}`))
	}))
	defer srv.Close()

	_, err := routerFor(srv).Transcribe(context.Background(), testArtifact(t, 16000), provider.Selection{
		Provider: provider.OpenRouter, APIKey: "k", Language: "en-US",
	})
	var herr *HTTPError
	if !errors.As(err, &herr) || herr.Status != 429 {
		t.Fatalf("Transcribe() error = %v, want HTTP 429", err)
	}
}

func TestNetworkErrorHasZeroStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	r := routerFor(srv)
	srv.Close()

	_, err := r.Transcribe(context.Background(), testArtifact(t, 16000), provider.Selection{
		Provider: provider.OpenRouter, APIKey: "k", Language: "en-US",
	})
	var herr *HTTPError
	if !errors.As(err, &herr) {
		t.Fatalf("Transcribe() error = %v, want *HTTPError", err)
	}
	if herr.Status != 0 {
		t.Errorf("Status = %d, want 0 for a network failure", herr.Status)
	}
}
