package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/intentd/internal/config"
)

// Cloud client rate limiting: 50 requests per minute with small bursts,
// matching typical API account limits.
const (
	cloudRateLimit = 50.0 / 60.0
	cloudBurst     = 5

	// How many times a demonstrably-invalid-JSON answer is retried when
	// the caller asked for JSON, before giving up.
	maxInvalidJSONRetries = 2
)

// CloudClient talks to an OpenAI-compatible cloud model. When a call
// requests JSON, the client asks the provider for structured output mode
// and retries on answers that do not contain a parseable JSON object.
type CloudClient struct {
	model   llms.Model
	name    string
	timeout time.Duration
	limiter *rate.Limiter
}

// NewCloudClient creates a client for the configured cloud backend.
func NewCloudClient(cfg config.ModelConfig) (*CloudClient, error) {
	model, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithResponseFormat(openai.ResponseFormatJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("creating cloud model client: %w", err)
	}
	return &CloudClient{
		model:   model,
		name:    "cloud/" + cfg.Model,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		limiter: rate.NewLimiter(rate.Limit(cloudRateLimit), cloudBurst),
	}, nil
}

// Chat sends one conversation and returns the raw text answer.
func (c *CloudClient) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", &Error{Provider: c.name, Err: err}
	}

	attempts := 1
	if opts.WantJSON {
		attempts += maxInvalidJSONRetries
	}

	var lastText string
	for attempt := 0; attempt < attempts; attempt++ {
		text, err := c.generate(ctx, messages, opts)
		if err != nil {
			return "", err
		}
		if !opts.WantJSON || hasJSONObject(text) {
			return text, nil
		}
		lastText = text
	}
	return lastText, &Error{
		Provider: c.name,
		Err:      fmt.Errorf("no valid JSON after %d attempts: %q", attempts, truncate(lastText, 120)),
	}
}

func (c *CloudClient) generate(ctx context.Context, messages []Message, opts Options) (string, error) {
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

// hasJSONObject reports whether the text contains a parseable JSON
// object after fence stripping.
func hasJSONObject(text string) bool {
	stripped := StripFences(text)
	var probe map[string]any
	return json.Unmarshal([]byte(stripped), &probe) == nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Chat = (*CloudClient)(nil)
