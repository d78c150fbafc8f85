// Package intent produces structured intents from batched screen text.
//
// Classification is a pipeline: heuristic cleanup of code/log noise, a
// mode-specific model call, tolerant JSON extraction, then deterministic
// guard rules over the extracted fields. The guards exist because the
// model cannot be trusted to apply them consistently.
package intent

import (
	"fmt"
	"unicode/utf8"
)

// MaxContentLength bounds the content carried through dedup, review, and
// notification.
const MaxContentLength = 200

// Result is the canonical unit flowing through dedup, review, and
// notification. Actionable and Noteworthy are independent dimensions.
type Result struct {
	Actionable bool   `json:"actionable"`
	Noteworthy bool   `json:"noteworthy"`
	Content    string `json:"content"`
	DueTime    string `json:"due_time,omitempty"` // ISO-8601 minute precision, or empty
	Urgent     bool   `json:"urgent"`
}

// Empty reports whether neither dimension is set.
func (r *Result) Empty() bool {
	return !r.Actionable && !r.Noteworthy
}

// ClassificationError indicates the inference call failed or returned
// output no extraction strategy could use. The cycle is skipped and
// nothing is recorded.
type ClassificationError struct {
	Reason string
	Err    error
}

func (e *ClassificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classification failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("classification failed: %s", e.Reason)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}

// truncateContent clips content to MaxContentLength without splitting a
// rune.
func truncateContent(s string) string {
	if utf8.RuneCountInString(s) <= MaxContentLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxContentLength])
}
