// Package provider defines the closed set of transcription providers and the
// per-session selection passed into every pipeline call.
package provider

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Provider identifies a transcription backend. The set is closed: every
// switch over Provider handles each value in All.
type Provider int

const (
	OpenAI Provider = iota + 1
	Google
	OpenRouter
	// CustomLocal routes artifacts to the on-device whisper engine.
	CustomLocal
)

// All lists every provider, in display order.
var All = []Provider{OpenAI, Google, OpenRouter, CustomLocal}

func (p Provider) String() string {
	switch p {
	case OpenAI:
		return "openai"
	case Google:
		return "google"
	case OpenRouter:
		return "openrouter"
	case CustomLocal:
		return "local"
	default:
		return fmt.Sprintf("provider(%d)", int(p))
	}
}

// IsCloud reports whether the provider is reached over the network.
func (p Provider) IsCloud() bool {
	switch p {
	case OpenAI, Google, OpenRouter:
		return true
	default:
		return false
	}
}

// Parse maps a config name (case-insensitive) to a Provider.
func Parse(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai":
		return OpenAI, nil
	case "google":
		return Google, nil
	case "openrouter":
		return OpenRouter, nil
	case "local", "whisper", "customlocal":
		return CustomLocal, nil
	default:
		return 0, fmt.Errorf("provider: unknown provider %q (supported: openai, google, openrouter, local)", name)
	}
}

// Selection is the externally owned provider configuration for one session.
// The pipeline only reads it.
type Selection struct {
	Provider Provider
	Model    string // transcription model id, or quality tier for Google
	APIKey   string
	Language string // BCP-47 locale, e.g. "en-US"
}

// HasAPIKey reports whether a non-blank API key is present.
func (s Selection) HasAPIKey() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

// BaseLanguage reduces a BCP-47 locale to its ISO-639-1 base subtag,
// e.g. "en-US" to "en". An empty or unparseable locale yields "".
func BaseLanguage(locale string) string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return ""
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return ""
	}
	base, conf := tag.Base()
	if conf == language.No {
		return ""
	}
	return base.String()
}
