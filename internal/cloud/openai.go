package cloud

import (
	"bytes"
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"

	"github.com/chaz8081/gostt-overlay/internal/artifact"
	"github.com/chaz8081/gostt-overlay/internal/provider"
)

// openAI uploads the WAV file as multipart form data to the transcriptions
// endpoint. The language is sent as its ISO-639-1 base.
func (r *Router) openAI(ctx context.Context, ref artifact.Ref, data []byte, sel provider.Selection) (string, error) {
	cfg := openai.DefaultConfig(sel.APIKey)
	cfg.BaseURL = r.endpoints.OpenAI
	cfg.HTTPClient = r.client
	client := openai.NewClientWithConfig(cfg)

	model := sel.Model
	if model == "" {
		model = openai.Whisper1
	}

	resp, err := client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		FilePath: ref.Name(),
		Reader:   bytes.NewReader(data),
		Language: provider.BaseLanguage(sel.Language),
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", openAIError(err)
	}
	return resp.Text, nil
}

func openAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &HTTPError{Provider: provider.OpenAI, Status: apiErr.HTTPStatusCode, Body: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		body := ""
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &HTTPError{Provider: provider.OpenAI, Status: reqErr.HTTPStatusCode, Body: body, Err: err}
	}
	return &HTTPError{Provider: provider.OpenAI, Err: err}
}
