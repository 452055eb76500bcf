// Package langgen wraps the language-generation collaborator behind a
// small structured-output interface.  The remote endpoint speaks the
// OpenAI chat-completions protocol; callers always request JSON and
// decode it themselves.
package langgen

import (
	"context"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/stratlens/stratlens/internal/config"
	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/logging"
	"github.com/stratlens/stratlens/pkg/errors"
)

// Generator produces a JSON document from a system and user prompt.
// Implementations must return the raw JSON text of the model's reply.
type Generator interface {
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// OpenAIGenerator is the production Generator over the chat-completions
// API.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxRetries  int
	timeout     time.Duration
	log         logging.Logger
}

// NewOpenAIGenerator builds the production generator from configuration.
func NewOpenAIGenerator(cfg config.LangGenConfig, log logging.Logger) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.NewValidation("langgen: api_key must not be empty")
	}
	if log == nil {
		log = logging.Default()
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxRetries:  cfg.MaxRetries,
		timeout:     cfg.Timeout,
		log:         log.Named("langgen"),
	}, nil
}

// GenerateJSON asks the model for a JSON object and returns the reply
// body with any markdown code fencing stripped.  Transient failures are
// retried with linear backoff up to the configured attempt count.
func (g *OpenAIGenerator) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	}

	attempts := g.maxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", errors.Wrap(ctx.Err(), errors.ErrCodeLangGenUnavailable, "language generation cancelled")
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if g.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		}
		resp, err := g.client.CreateChatCompletion(callCtx, req)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			lastErr = err
			g.log.Warn("language generation attempt failed",
				logging.Int("attempt", attempt+1),
				logging.Err(err),
			)
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = errors.New(errors.ErrCodeLangGenMalformed, "model returned no choices")
			continue
		}
		return StripCodeFence(resp.Choices[0].Message.Content), nil
	}
	return "", errors.Wrap(lastErr, errors.ErrCodeLangGenUnavailable, "language generation failed after retries")
}

// StripCodeFence removes a surrounding markdown code fence if present.
// Some models wrap JSON replies in ```json fences even when asked for a
// bare object.
func StripCodeFence(s string) string {
	out := strings.TrimSpace(s)
	if !strings.HasPrefix(out, "```") {
		return out
	}
	out = strings.TrimPrefix(out, "```json")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(strings.TrimSpace(out), "```")
	return strings.TrimSpace(out)
}
