package intent

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intentd/internal/config"
	"github.com/fyrsmithlabs/intentd/internal/llm"
	"github.com/fyrsmithlabs/intentd/internal/logging"
)

// Inference call settings. Low temperature for consistent extraction.
const (
	classifyTemperature = 0.2
	classifyMaxTokens   = 512
)

// Classifier turns batched screen text into a structured intent via the
// local inference backend.
type Classifier struct {
	chat llm.Chat
	log  *logging.Logger
	now  func() time.Time
}

// NewClassifier creates a classifier using the given inference backend.
func NewClassifier(chat llm.Chat, log *logging.Logger) *Classifier {
	return &Classifier{
		chat: chat,
		log:  log.Named("classifier"),
		now:  time.Now,
	}
}

// Classify cleans the text, invokes the model, parses its answer, and
// applies the guard rules.
//
// Returns (nil, nil) when there is nothing to classify after cleanup.
// Returns a *ClassificationError when the model call failed or its
// output was unusable; the caller skips the cycle and records nothing.
// An all-false Result means "classified but empty" and is distinct from
// both of the above.
func (c *Classifier) Classify(ctx context.Context, cfg config.ClassifierConfig, text string, hotkeyTriggered bool) (*Result, error) {
	cleaned := CleanText(text, cfg.MinLineLength)
	if len([]rune(cleaned)) < cfg.MinTextLength {
		c.log.Debug("nothing to classify after cleanup",
			zap.Int("raw_len", len(text)),
			zap.Int("cleaned_len", len(cleaned)))
		return nil, nil
	}

	system := pollSystemPrompt
	if hotkeyTriggered {
		system = hotkeySystemPrompt
	}

	answer, err := c.chat.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: classifyUserPrompt(cleaned, c.now())},
	}, llm.Options{
		Temperature: classifyTemperature,
		MaxTokens:   classifyMaxTokens,
		WantJSON:    true,
	})
	if err != nil {
		return nil, &ClassificationError{Reason: "inference call failed", Err: err}
	}

	raw, ok := ParseResponse(answer)
	if !ok {
		c.log.Warn("unparsable classifier output",
			zap.String("snippet", snippet(answer, 120)))
		return nil, &ClassificationError{Reason: "unparsable model output"}
	}

	result := newGuards(cfg).apply(raw)
	c.log.Debug("classified",
		zap.Bool("actionable", result.Actionable),
		zap.Bool("noteworthy", result.Noteworthy),
		zap.Bool("urgent", result.Urgent),
		zap.String("due_time", result.DueTime))
	return result, nil
}

func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
