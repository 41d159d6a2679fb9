package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/gostt-overlay/internal/provider"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Capture.Mode != "native" {
		t.Errorf("Capture.Mode = %q, want %q", cfg.Capture.Mode, "native")
	}
	if !cfg.Capture.Silence.Enabled {
		t.Error("Capture.Silence.Enabled should default to true")
	}
	if cfg.Capture.Silence.HoldSeconds != 3 {
		t.Errorf("Capture.Silence.HoldSeconds = %g, want 3", cfg.Capture.Silence.HoldSeconds)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("Audio.SampleRate = %d, want 16000", cfg.Audio.SampleRate)
	}
	if cfg.Audio.Channels != 1 {
		t.Errorf("Audio.Channels = %d, want 1", cfg.Audio.Channels)
	}
	if cfg.Provider.Name != "local" {
		t.Errorf("Provider.Name = %q, want %q", cfg.Provider.Name, "local")
	}
	if cfg.Models.Dir == "" {
		t.Error("Models.Dir should not be empty")
	}
	if cfg.Hotkey.Mode != "toggle" {
		t.Errorf("Hotkey.Mode = %q, want %q", cfg.Hotkey.Mode, "toggle")
	}
	if cfg.Inject.Method != "type" {
		t.Errorf("Inject.Method = %q, want %q", cfg.Inject.Method, "type")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
capture:
  mode: browser
  recognizer_url: ws://localhost:9000/rec
  silence:
    enabled: false
audio:
  sample_rate: 44100
  channels: 2
provider:
  name: google
  model: enhanced
  language: de-DE
models:
  dir: /tmp/models
hotkey:
  keys: ["alt", "d"]
  mode: hold
inject:
  method: paste
log_level: debug
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Capture.Mode != "browser" {
		t.Errorf("Capture.Mode = %q, want %q", cfg.Capture.Mode, "browser")
	}
	if cfg.Capture.RecognizerURL != "ws://localhost:9000/rec" {
		t.Errorf("Capture.RecognizerURL = %q", cfg.Capture.RecognizerURL)
	}
	if cfg.Capture.Silence.Enabled {
		t.Error("Capture.Silence.Enabled = true, want false")
	}
	if cfg.Audio.SampleRate != 44100 {
		t.Errorf("Audio.SampleRate = %d, want 44100", cfg.Audio.SampleRate)
	}
	if cfg.Provider.Name != "google" || cfg.Provider.Model != "enhanced" || cfg.Provider.Language != "de-DE" {
		t.Errorf("Provider = %+v", cfg.Provider)
	}
	if cfg.Models.Dir != "/tmp/models" {
		t.Errorf("Models.Dir = %q, want /tmp/models", cfg.Models.Dir)
	}
	if len(cfg.Hotkey.Keys) != 2 || cfg.Hotkey.Keys[0] != "alt" || cfg.Hotkey.Keys[1] != "d" {
		t.Errorf("Hotkey.Keys = %v, want [alt d]", cfg.Hotkey.Keys)
	}
	if cfg.Inject.Method != "paste" {
		t.Errorf("Inject.Method = %q, want %q", cfg.Inject.Method, "paste")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	// Unset sections keep their defaults.
	if cfg.Audio.MinDuration != 0.3 {
		t.Errorf("Audio.MinDuration = %g, want default 0.3", cfg.Audio.MinDuration)
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	yamlContent := `
models:
  dir: ~/models
state_path: ~/state/state.db
audio:
  artifacts_dir: ~/recordings
`
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if want := filepath.Join(home, "models"); cfg.Models.Dir != want {
		t.Errorf("Models.Dir = %q, want %q", cfg.Models.Dir, want)
	}
	if want := filepath.Join(home, "state/state.db"); cfg.StatePath != want {
		t.Errorf("StatePath = %q, want %q", cfg.StatePath, want)
	}
	if want := filepath.Join(home, "recordings"); cfg.Audio.ArtifactsDir != want {
		t.Errorf("Audio.ArtifactsDir = %q, want %q", cfg.Audio.ArtifactsDir, want)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid capture mode",
			modify:  func(c *Config) { c.Capture.Mode = "webrtc" },
			wantErr: true,
		},
		{
			name: "browser mode without recognizer url",
			modify: func(c *Config) {
				c.Capture.Mode = "browser"
				c.Capture.RecognizerURL = ""
			},
			wantErr: true,
		},
		{
			name:    "zero silence hold",
			modify:  func(c *Config) { c.Capture.Silence.HoldSeconds = 0 },
			wantErr: true,
		},
		{
			name: "zero silence hold ignored when disabled",
			modify: func(c *Config) {
				c.Capture.Silence.Enabled = false
				c.Capture.Silence.HoldSeconds = 0
			},
			wantErr: false,
		},
		{
			name:    "positive silence threshold",
			modify:  func(c *Config) { c.Capture.Silence.ThresholdDBFS = 3 },
			wantErr: true,
		},
		{
			name:    "zero sample rate",
			modify:  func(c *Config) { c.Audio.SampleRate = 0 },
			wantErr: true,
		},
		{
			name:    "zero channels",
			modify:  func(c *Config) { c.Audio.Channels = 0 },
			wantErr: true,
		},
		{
			name:    "unknown provider",
			modify:  func(c *Config) { c.Provider.Name = "azure" },
			wantErr: true,
		},
		{
			name: "cloud provider without model",
			modify: func(c *Config) {
				c.Provider.Name = "openai"
				c.Provider.Model = ""
			},
			wantErr: true,
		},
		{
			name:    "empty models dir",
			modify:  func(c *Config) { c.Models.Dir = "" },
			wantErr: true,
		},
		{
			name:    "empty state path",
			modify:  func(c *Config) { c.StatePath = "" },
			wantErr: true,
		},
		{
			name:    "invalid hotkey mode",
			modify:  func(c *Config) { c.Hotkey.Mode = "invalid" },
			wantErr: true,
		},
		{
			name:    "empty hotkey keys",
			modify:  func(c *Config) { c.Hotkey.Keys = nil },
			wantErr: true,
		},
		{
			name:    "invalid inject method",
			modify:  func(c *Config) { c.Inject.Method = "ble" },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "invalid" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSelectionReadsKeyFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GOOGLE_API_KEY", "")

	cfg := Default()
	cfg.Provider.Name = "openai"
	cfg.Provider.Model = "whisper-1"

	sel, err := cfg.Selection()
	if err != nil {
		t.Fatalf("Selection() error = %v", err)
	}
	if sel.Provider != provider.OpenAI {
		t.Errorf("Provider = %v, want openai", sel.Provider)
	}
	if sel.APIKey != "sk-test" || !sel.HasAPIKey() {
		t.Errorf("APIKey = %q, want sk-test", sel.APIKey)
	}

	cfg.Provider.Name = "google"
	sel, err = cfg.Selection()
	if err != nil {
		t.Fatalf("Selection() error = %v", err)
	}
	if sel.HasAPIKey() {
		t.Error("google selection should have no API key")
	}

	cfg.Provider.Name = "local"
	sel, err = cfg.Selection()
	if err != nil {
		t.Fatalf("Selection() error = %v", err)
	}
	if sel.Provider != provider.CustomLocal || sel.APIKey != "" {
		t.Errorf("local selection = %+v", sel)
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("OPENROUTER_API_KEY=or-key\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPENROUTER_API_KEY", "")
	os.Unsetenv("OPENROUTER_API_KEY")

	if err := LoadEnv(envPath); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if got := os.Getenv("OPENROUTER_API_KEY"); got != "or-key" {
		t.Errorf("OPENROUTER_API_KEY = %q, want or-key", got)
	}

	if err := LoadEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("LoadEnv() on missing file error = %v, want nil", err)
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expectedPath := filepath.Join(tmpHome, ".config", "gostt-overlay", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# gostt-overlay") {
		t.Error("written config should start with header comment")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if cfg.Capture.Mode != "native" {
		t.Errorf("written config Capture.Mode = %q, want %q", cfg.Capture.Mode, "native")
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("written config Audio.SampleRate = %d, want 16000", cfg.Audio.SampleRate)
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "gostt-overlay")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	existing := []byte("log_level: debug\n")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, existing, 0644); err != nil {
		t.Fatalf("failed to write existing config: %v", err)
	}

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != "" {
		t.Errorf("WriteDefault() path = %q, want empty string for existing file", path)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(data) != string(existing) {
		t.Error("WriteDefault() should not overwrite existing config file")
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("log_level: info\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, cfgPath, func(c *Config) {
			select {
			case reloaded <- c:
			default:
			}
		})
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(cfgPath, []byte("log_level: debug\n"), 0644); err != nil {
		t.Fatal(err)
	}

	// A single write can surface as several events (truncate, then data),
	// so wait for the reload that carries the new value.
	deadline := time.After(5 * time.Second)
	for found := false; !found; {
		select {
		case c := <-reloaded:
			found = c.LogLevel == "debug"
		case <-deadline:
			t.Fatal("Watch did not report the rewritten config")
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
