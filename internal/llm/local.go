package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/fyrsmithlabs/intentd/internal/config"
)

// LocalClient talks to an Ollama-compatible local model. It carries no
// rate limiter: the local backend is the caller's own hardware and the
// pipeline never issues concurrent local calls.
type LocalClient struct {
	model   llms.Model
	name    string
	timeout time.Duration
}

// NewLocalClient creates a client for the configured local backend.
func NewLocalClient(cfg config.ModelConfig) (*LocalClient, error) {
	model, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("creating local model client: %w", err)
	}
	return &LocalClient{
		model:   model,
		name:    "local/" + cfg.Model,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}, nil
}

// Chat sends one conversation and returns the raw text answer.
func (c *LocalClient) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.model.GenerateContent(ctx, toContent(messages),
		llms.WithTemperature(opts.Temperature),
		llms.WithMaxTokens(opts.MaxTokens),
	)
	if err != nil {
		return "", &Error{Provider: c.name, Err: err}
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", &Error{Provider: c.name, Err: ErrEmptyResponse}
	}
	return resp.Choices[0].Content, nil
}

func toContent(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role := llms.ChatMessageTypeHuman
		if m.Role == RoleSystem {
			role = llms.ChatMessageTypeSystem
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}

var _ Chat = (*LocalClient)(nil)
