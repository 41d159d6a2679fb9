package cloud

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/chaz8081/gostt-overlay/internal/provider"
)

const defaultOpenRouterModel = "google/gemini-2.5-flash"

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string     `json:"role"`
	Content []chatPart `json:"content"`
}

type chatPart struct {
	Type       string      `json:"type"`
	Text       string      `json:"text,omitempty"`
	InputAudio *inputAudio `json:"input_audio,omitempty"`
}

type inputAudio struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

func transcriptionPrompt(locale string) string {
	if locale == "" {
		return "Transcribe this audio verbatim. Reply with the transcript only, without commentary."
	}
	return fmt.Sprintf("Transcribe this audio verbatim. The speech is in %s. Reply with the transcript only, without commentary.", locale)
}

// openRouter sends the WAV as an input_audio part of a chat completion and
// reads the first choice's message content.
func (r *Router) openRouter(ctx context.Context, data []byte, sel provider.Selection) (string, error) {
	model := sel.Model
	if model == "" {
		model = defaultOpenRouterModel
	}

	body := chatRequest{
		Model: model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatPart{
				{Type: "text", Text: transcriptionPrompt(sel.Language)},
				{Type: "input_audio", InputAudio: &inputAudio{
					Data:   base64.StdEncoding.EncodeToString(data),
					Format: "wav",
				}},
			},
		}},
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+sel.APIKey)

	resp, err := r.postJSON(ctx, provider.OpenRouter, r.endpoints.OpenRouter, header, body)
	if err != nil {
		return "", err
	}

	// Upstream failures can arrive as a 200 carrying an error object.
	if e := gjson.GetBytes(resp, "error"); e.Exists() {
		status := int(e.Get("code").Int())
		return "", &HTTPError{Provider: provider.OpenRouter, Status: status, Body: e.Get("message").String()}
	}

	return gjson.GetBytes(resp, "choices.0.message.content").String(), nil
}
