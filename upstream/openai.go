package upstream

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"
)

// OpenAI generates through the chat completions API of any OpenAI-compatible
// endpoint, including Ollama's /v1 surface.
type OpenAI struct {
	client openai.Client
	models Models
	log    zerolog.Logger
}

// NewOpenAI builds a client. An empty baseURL targets api.openai.com.
func NewOpenAI(apiKey, baseURL string, models Models, log zerolog.Logger) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if models == nil {
		models = DefaultModels()
	}
	return &OpenAI{
		client: openai.NewClient(opts...),
		models: models,
		log:    log.With().Str("component", "openai").Logger(),
	}
}

func (o *OpenAI) Generate(ctx context.Context, req *Request) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	model := o.models.Resolve(req.Model)
	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
	}
	if req.Options.Temperature > 0 {
		params.Temperature = openai.Float(req.Options.Temperature)
	}
	if req.Options.TopP > 0 {
		params.TopP = openai.Float(req.Options.TopP)
	}
	if req.Options.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.Options.MaxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &StatusError{StatusCode: apiErr.StatusCode, Body: apiErr.Message}
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("upstream: completion returned no choices")
	}
	o.log.Debug().Str("model", model).Int("total_tokens", int(resp.Usage.TotalTokens)).Msg("completion finished")
	return resp.Choices[0].Message.Content, nil
}
