// Package transcribe runs on-device speech-to-text with whisper.cpp.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime"
	"strings"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/chaz8081/gostt-overlay/internal/artifact"
	"github.com/chaz8081/gostt-overlay/internal/models"
	"github.com/chaz8081/gostt-overlay/internal/provider"
)

// ErrInferenceFailed wraps any failure after the model was located.
var ErrInferenceFailed = models.ErrInferenceFailed

// ModelLocator resolves an installed model name to its file.
// *models.Manager implements it.
type ModelLocator interface {
	Path(name string) (string, error)
}

// WhisperEngine transcribes artifacts with whisper.cpp models, loading each
// model on first use and keeping it for later calls.
type WhisperEngine struct {
	models ModelLocator

	mu     sync.Mutex
	loaded map[string]whisper.Model
}

// NewWhisperEngine creates an engine resolving models through loc.
// The caller must call Close() when done.
func NewWhisperEngine(loc ModelLocator) *WhisperEngine {
	return &WhisperEngine{
		models: loc,
		loaded: make(map[string]whisper.Model),
	}
}

// Infer transcribes the artifact with the named model. lang is a BCP-47
// locale; it is ignored by English-only models. A missing model yields the
// locator's not-installed error and no transcript.
func (e *WhisperEngine) Infer(ctx context.Context, ref artifact.Ref, model, lang string) (string, error) {
	path, err := e.models.Path(model)
	if err != nil {
		return "", err
	}

	samples, rate, err := ref.Samples()
	if err != nil {
		return "", fmt.Errorf("%w: decoding %s: %v", ErrInferenceFailed, ref.Name(), err)
	}
	samples = resample(samples, rate, int(whisper.SampleRate))

	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.load(model, path)
	if err != nil {
		return "", err
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	text, err := process(ctx, m, samples, provider.BaseLanguage(lang))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", ErrInferenceFailed, err)
	}
	slog.Debug("[transcribe] inference done", "model", model, "samples", len(samples), "chars", len(text))
	return text, nil
}

// load must be called with e.mu held.
func (e *WhisperEngine) load(name, path string) (whisper.Model, error) {
	if m, ok := e.loaded[name]; ok {
		return m, nil
	}
	slog.Info("[transcribe] loading model", "model", name, "path", path)
	m, err := whisper.New(path)
	if err != nil {
		return nil, fmt.Errorf("%w: load model %q: %v", ErrInferenceFailed, path, err)
	}
	e.loaded[name] = m
	return m, nil
}

func process(ctx context.Context, m whisper.Model, samples []float32, lang string) (string, error) {
	wctx, err := m.NewContext()
	if err != nil {
		return "", fmt.Errorf("create context: %w", err)
	}
	wctx.SetThreads(uint(runtime.NumCPU()))

	if m.IsMultilingual() {
		if lang == "" {
			lang = "auto"
		}
		if err := wctx.SetLanguage(lang); err != nil {
			return "", fmt.Errorf("set language %q: %w", lang, err)
		}
	}

	abort := func() bool { return ctx.Err() == nil }
	if err := wctx.Process(samples, abort, nil, nil); err != nil {
		return "", fmt.Errorf("process: %w", err)
	}

	var segments []string
	for {
		seg, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("next segment: %w", err)
		}
		if s := strings.TrimSpace(seg.Text); s != "" {
			segments = append(segments, s)
		}
	}

	return strings.TrimSpace(strings.Join(segments, " ")), nil
}

// Close releases all loaded models.
func (e *WhisperEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	for name, m := range e.loaded {
		if err := m.Close(); err != nil {
			errs = append(errs, fmt.Errorf("transcribe: closing %s: %w", name, err))
		}
		delete(e.loaded, name)
	}
	return errors.Join(errs...)
}

// resample converts mono samples to dstRate by linear interpolation.
func resample(src []float32, srcRate, dstRate int) []float32 {
	if len(src) == 0 || srcRate <= 0 || srcRate == dstRate {
		return src
	}

	step := float64(srcRate) / float64(dstRate)
	n := int(math.Ceil(float64(len(src)) / step))
	out := make([]float32, n)
	last := len(src) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = src[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = src[j] + (src[j+1]-src[j])*frac
	}
	return out
}
