package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chaz8081/gostt-overlay/internal/audio"
	"github.com/chaz8081/gostt-overlay/internal/capture"
	"github.com/chaz8081/gostt-overlay/internal/cloud"
	"github.com/chaz8081/gostt-overlay/internal/config"
	"github.com/chaz8081/gostt-overlay/internal/models"
	"github.com/chaz8081/gostt-overlay/internal/provider"
	"github.com/chaz8081/gostt-overlay/internal/session"
	"github.com/chaz8081/gostt-overlay/internal/silence"
	"github.com/chaz8081/gostt-overlay/internal/state"
	"github.com/chaz8081/gostt-overlay/internal/transcribe"
)

// app holds the wired pipeline for one command invocation.
type app struct {
	path string

	mu  sync.RWMutex
	cfg *config.Config

	store  *state.Store
	models *models.Manager
	engine *transcribe.WhisperEngine
	router *cloud.Router

	recorder *audio.Recorder
	monitor  *silence.Monitor
	ctrl     *session.Controller
}

// newApp loads the config, API keys and persisted state.
func newApp() (*app, error) {
	cfg, path, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	setupLogging(cfg.LogLevel)

	envPath := filepath.Join(config.DefaultConfigDir(), ".env")
	if path != "" {
		envPath = filepath.Join(filepath.Dir(path), ".env")
	}
	if err := config.LoadEnv(envPath); err != nil {
		slog.Warn("[main] loading .env", "error", err)
	}

	store, err := state.Open(cfg.StatePath)
	if err != nil {
		return nil, err
	}

	a := &app{
		path:   path,
		cfg:    cfg,
		store:  store,
		router: cloud.NewRouter(),
	}
	a.models = models.NewManager(cfg.Models.Dir, cfg.Models.BaseURL, store)
	a.engine = transcribe.NewWhisperEngine(a.models)
	return a, nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults. The returned path is
// empty when no file was read.
func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, "", fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, defaultPath, nil
	}

	return config.Default(), "", nil
}

// setupLogging installs the default slog handler at the configured level.
func setupLogging(level string) {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.ParseLogLevel(level)})
	slog.SetDefault(slog.New(h))
}

func (a *app) current() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// selection resolves the provider selection for one session from the
// current config.
func (a *app) selection() (provider.Selection, error) {
	return a.current().Selection()
}

// startPipeline opens the microphone host and builds the session
// controller. A missing capture device only disables native mode.
func (a *app) startPipeline() error {
	cfg := a.current()
	mode, err := capture.ParseKind(cfg.Capture.Mode)
	if err != nil {
		return err
	}

	rec, err := audio.NewRecorder(cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.ArtifactsDir)
	switch {
	case err == nil:
		a.recorder = rec
	case mode == capture.NativeRecorder:
		return fmt.Errorf("initializing audio recorder: %w", err)
	default:
		slog.Warn("[main] audio recorder unavailable, native mode disabled", "error", err)
	}

	if a.recorder != nil && cfg.Capture.Silence.Enabled {
		hold := time.Duration(cfg.Capture.Silence.HoldSeconds * float64(time.Second))
		det := silence.NewDetector(int(cfg.Audio.SampleRate), int(cfg.Audio.Channels), cfg.Capture.Silence.ThresholdDBFS, hold)
		a.recorder.SetSink(det)
		a.monitor = silence.NewMonitor(det)
	}

	a.ctrl = session.New(session.Options{
		Mode:        mode,
		Backends:    a.backend,
		Local:       a.engine,
		Cloud:       a.router,
		Models:      a.models,
		Advisory:    a.store,
		Silence:     a.monitor,
		MinDuration: time.Duration(cfg.Audio.MinDuration * float64(time.Second)),
	})
	return nil
}

// backend builds the capture backend for one session.
func (a *app) backend(kind capture.Kind, sel provider.Selection) (capture.Backend, error) {
	switch kind {
	case capture.NativeRecorder:
		if a.recorder == nil {
			return nil, fmt.Errorf("no audio recorder: %w", capture.ErrDeviceUnavailable)
		}
		return capture.NewNative(a.recorder), nil
	case capture.BrowserRecognizer:
		return capture.NewBrowser(a.current().Capture.RecognizerURL, sel.Language), nil
	default:
		return nil, fmt.Errorf("unknown capture mode %v", kind)
	}
}

// watchConfig applies config edits while the process runs. Provider and
// language changes take effect on the next session.
func (a *app) watchConfig(ctx context.Context) {
	if a.path == "" {
		return
	}
	err := config.Watch(ctx, a.path, func(cfg *config.Config) {
		a.mu.Lock()
		prev := a.cfg
		a.cfg = cfg
		a.mu.Unlock()

		slog.Info("[main] config reloaded", "provider", cfg.Provider.Name, "mode", cfg.Capture.Mode)
		if cfg.LogLevel != prev.LogLevel {
			setupLogging(cfg.LogLevel)
		}
		if a.ctrl == nil || cfg.Capture.Mode == prev.Capture.Mode {
			return
		}
		kind, err := capture.ParseKind(cfg.Capture.Mode)
		if err != nil {
			return
		}
		if err := a.ctrl.SetMode(kind); errors.Is(err, session.ErrModeSwitchActive) {
			slog.Warn("[main] capture mode change ignored during an active session")
		}
	})
	if err != nil {
		slog.Warn("[main] config watch stopped", "error", err)
	}
}

func (a *app) Close() {
	if a.monitor != nil {
		a.monitor.Close()
	}
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			slog.Warn("[main] closing recorder", "error", err)
		}
	}
	if err := a.engine.Close(); err != nil {
		slog.Warn("[main] closing engine", "error", err)
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("[main] closing state", "error", err)
	}
}
