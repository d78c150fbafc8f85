// Package llm defines the inference collaborator boundary: an ordered
// role/content conversation in, free text out. Two instantiations exist
// with different latency/cost/reliability profiles: a local model for
// passive classification and a cloud model for the review gate.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string
	Content string
}

// Options control one chat call.
type Options struct {
	Temperature float64
	MaxTokens   int

	// WantJSON asks the backend for structured JSON output where the
	// provider supports it, and enables invalid-JSON retries on backends
	// that implement them.
	WantJSON bool
}

// Chat is the single operation both inference backends expose.
type Chat interface {
	Chat(ctx context.Context, messages []Message, opts Options) (string, error)
}

// ErrEmptyResponse indicates the backend answered with no content.
var ErrEmptyResponse = errors.New("model returned empty response")

// Error wraps a backend failure with its provider name so callers can
// report which instantiation failed.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StripFences removes a markdown code fence wrapper if the model emitted
// one around its JSON.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
