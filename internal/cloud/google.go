package cloud

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/chaz8081/gostt-overlay/internal/artifact"
	"github.com/chaz8081/gostt-overlay/internal/provider"
)

type googleRequest struct {
	Config googleConfig `json:"config"`
	Audio  googleAudio  `json:"audio"`
}

type googleConfig struct {
	Encoding          string `json:"encoding"`
	SampleRateHertz   int    `json:"sampleRateHertz"`
	AudioChannelCount int    `json:"audioChannelCount"`
	LanguageCode      string `json:"languageCode"`
	Model             string `json:"model,omitempty"`
	UseEnhanced       bool   `json:"useEnhanced,omitempty"`
}

type googleAudio struct {
	Content string `json:"content"`
}

// googleModel maps the configured quality tier to a recognition model.
// Unknown values are passed through as model names.
func googleModel(tier string) (model string, enhanced bool) {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case "", "standard":
		return "default", false
	case "enhanced":
		return "phone_call", true
	default:
		return tier, false
	}
}

// google posts base64 LINEAR16 audio to speech:recognize. The sample rate
// and channel count come from the artifact's own header.
func (r *Router) google(ctx context.Context, ref artifact.Ref, data []byte, sel provider.Selection) (string, error) {
	f, err := ref.Format()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}
	if f.Encoding != artifact.Linear16 {
		return "", fmt.Errorf("%w: google needs 16-bit PCM, got %d-bit", ErrInvalidAudio, f.BitDepth)
	}
	if f.SampleRate < 8000 || f.SampleRate > 48000 {
		return "", fmt.Errorf("%w: sample rate %d Hz outside 8000-48000", ErrInvalidAudio, f.SampleRate)
	}

	model, enhanced := googleModel(sel.Model)
	body := googleRequest{
		Config: googleConfig{
			Encoding:          string(artifact.Linear16),
			SampleRateHertz:   f.SampleRate,
			AudioChannelCount: f.Channels,
			LanguageCode:      sel.Language,
			Model:             model,
			UseEnhanced:       enhanced,
		},
		Audio: googleAudio{Content: base64.StdEncoding.EncodeToString(data)},
	}

	endpoint := r.endpoints.Google + "?key=" + url.QueryEscape(sel.APIKey)
	resp, err := r.postJSON(ctx, provider.Google, endpoint, nil, body)
	if err != nil {
		return "", err
	}

	var parts []string
	for _, t := range gjson.GetBytes(resp, "results.#.alternatives.0.transcript").Array() {
		if s := strings.TrimSpace(t.String()); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " "), nil
}
