package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/chaz8081/gostt-overlay/internal/provider"
)

// Config holds all application configuration.
type Config struct {
	Capture   CaptureConfig  `yaml:"capture"`
	Audio     AudioConfig    `yaml:"audio"`
	Provider  ProviderConfig `yaml:"provider"`
	Models    ModelsConfig   `yaml:"models"`
	StatePath string         `yaml:"state_path"`
	Hotkey    HotkeyConfig   `yaml:"hotkey"`
	Inject    InjectConfig   `yaml:"inject"`
	API       APIConfig      `yaml:"api"`
	LogLevel  string         `yaml:"log_level"`
}

// CaptureConfig selects and tunes the capture backend.
type CaptureConfig struct {
	Mode          string        `yaml:"mode"` // "native" or "browser"
	RecognizerURL string        `yaml:"recognizer_url"`
	Silence       SilenceConfig `yaml:"silence"`
}

// SilenceConfig controls silence-triggered auto-stop for native capture.
type SilenceConfig struct {
	Enabled       bool    `yaml:"enabled"`
	ThresholdDBFS float64 `yaml:"threshold_dbfs"`
	HoldSeconds   float64 `yaml:"hold_seconds"`
}

// AudioConfig holds audio capture settings.
type AudioConfig struct {
	SampleRate   uint32  `yaml:"sample_rate"`
	Channels     uint32  `yaml:"channels"`
	ArtifactsDir string  `yaml:"artifacts_dir"`
	MinDuration  float64 `yaml:"min_duration"` // seconds
}

// ProviderConfig names the transcription provider. API keys are read from
// the environment, never from this file.
type ProviderConfig struct {
	Name     string `yaml:"name"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

// ModelsConfig locates local whisper models.
type ModelsConfig struct {
	Dir     string `yaml:"dir"`
	BaseURL string `yaml:"base_url"`
}

// HotkeyConfig holds hotkey-related settings.
type HotkeyConfig struct {
	Keys []string `yaml:"keys"`
	Mode string   `yaml:"mode"` // "hold" or "toggle"
}

// InjectConfig holds text injection settings.
type InjectConfig struct {
	Method string `yaml:"method"` // "type" or "paste"
}

// APIConfig holds the local control API settings.
type APIConfig struct {
	Listen string `yaml:"listen"`
}

// API key environment variables per cloud provider.
var apiKeyEnv = map[provider.Provider]string{
	provider.OpenAI:     "OPENAI_API_KEY",
	provider.Google:     "GOOGLE_API_KEY",
	provider.OpenRouter: "OPENROUTER_API_KEY",
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gostt-overlay")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultDataDir returns the directory for models, artifacts and state.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "gostt-overlay")
}

// DefaultModelsDir returns the default whisper model directory.
func DefaultModelsDir() string {
	return filepath.Join(DefaultDataDir(), "models")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	data := DefaultDataDir()
	return &Config{
		Capture: CaptureConfig{
			Mode:          "native",
			RecognizerURL: "ws://127.0.0.1:8765/recognizer",
			Silence: SilenceConfig{
				Enabled:       true,
				ThresholdDBFS: -45,
				HoldSeconds:   3,
			},
		},
		Audio: AudioConfig{
			SampleRate:   16000,
			Channels:     1,
			ArtifactsDir: filepath.Join(data, "recordings"),
			MinDuration:  0.3,
		},
		Provider: ProviderConfig{
			Name:     "local",
			Model:    "whisper-1",
			Language: "en-US",
		},
		Models: ModelsConfig{
			Dir:     filepath.Join(data, "models"),
			BaseURL: "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/",
		},
		StatePath: filepath.Join(data, "state.db"),
		Hotkey: HotkeyConfig{
			Keys: []string{"ctrl", "shift", "space"},
			Mode: "toggle",
		},
		Inject: InjectConfig{
			Method: "type",
		},
		API: APIConfig{
			Listen: "127.0.0.1:8766",
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in paths is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Audio.ArtifactsDir = expandTilde(cfg.Audio.ArtifactsDir)
	cfg.Models.Dir = expandTilde(cfg.Models.Dir)
	cfg.StatePath = expandTilde(cfg.StatePath)

	return cfg, nil
}

// LoadEnv loads API keys from a dotenv file into the process environment.
// A missing file is not an error; variables already set are kept.
func LoadEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

const defaultConfigHeader = `# gostt-overlay configuration
# API keys are read from OPENAI_API_KEY, GOOGLE_API_KEY and OPENROUTER_API_KEY
# (or a .env file next to this config), never from this file.
`

// WriteDefault writes the default config to DefaultConfigPath. If a config
// already exists it is left untouched and ("", nil) is returned.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	body, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.WriteFile(path, append([]byte(defaultConfigHeader), body...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// Selection resolves the provider section and the matching API key from the
// environment into a read-only selection for one session.
func (c *Config) Selection() (provider.Selection, error) {
	p, err := provider.Parse(c.Provider.Name)
	if err != nil {
		return provider.Selection{}, err
	}
	sel := provider.Selection{
		Provider: p,
		Model:    c.Provider.Model,
		Language: c.Provider.Language,
	}
	if env, ok := apiKeyEnv[p]; ok {
		sel.APIKey = os.Getenv(env)
	}
	return sel, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.Capture.Mode {
	case "native", "browser":
	default:
		return fmt.Errorf("capture.mode must be \"native\" or \"browser\", got %q", c.Capture.Mode)
	}

	if c.Capture.Mode == "browser" && c.Capture.RecognizerURL == "" {
		return fmt.Errorf("capture.recognizer_url must not be empty when capture.mode is \"browser\"")
	}

	if c.Capture.Silence.Enabled {
		if c.Capture.Silence.HoldSeconds <= 0 {
			return fmt.Errorf("capture.silence.hold_seconds must be > 0")
		}
		if c.Capture.Silence.ThresholdDBFS >= 0 {
			return fmt.Errorf("capture.silence.threshold_dbfs must be < 0, got %g", c.Capture.Silence.ThresholdDBFS)
		}
	}

	if c.Audio.SampleRate == 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}

	if c.Audio.Channels == 0 {
		return fmt.Errorf("audio.channels must be > 0")
	}

	if c.Audio.ArtifactsDir == "" {
		return fmt.Errorf("audio.artifacts_dir must not be empty")
	}

	if c.Audio.MinDuration < 0 {
		return fmt.Errorf("audio.min_duration must be >= 0")
	}

	p, err := provider.Parse(c.Provider.Name)
	if err != nil {
		return fmt.Errorf("provider.name: %w", err)
	}
	if p.IsCloud() && strings.TrimSpace(c.Provider.Model) == "" {
		return fmt.Errorf("provider.model must not be empty for provider %s", p)
	}

	if c.Models.Dir == "" {
		return fmt.Errorf("models.dir must not be empty")
	}

	if c.StatePath == "" {
		return fmt.Errorf("state_path must not be empty")
	}

	if len(c.Hotkey.Keys) == 0 {
		return fmt.Errorf("hotkey.keys must not be empty")
	}

	switch c.Hotkey.Mode {
	case "hold", "toggle":
	default:
		return fmt.Errorf("hotkey.mode must be \"hold\" or \"toggle\", got %q", c.Hotkey.Mode)
	}

	switch c.Inject.Method {
	case "type", "paste":
	default:
		return fmt.Errorf("inject.method must be \"type\" or \"paste\", got %q", c.Inject.Method)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a config log level to a slog.Level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
