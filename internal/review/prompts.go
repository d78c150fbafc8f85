package review

import (
	"fmt"
	"strings"
	"time"
)

// Excerpt sent to the cloud model is bounded; the full batch text can be
// large and mostly redundant.
const maxExcerptLength = 1500

const validateSystemPrompt = `You are a second-opinion reviewer for intents extracted from a user's screen by a smaller local model. The local model over-triggers on ads, articles, and other people's tasks.

Given the extracted intent and the screen excerpt it came from, judge each dimension independently:
- actionable: the user personally must take a real-world action
- noteworthy: genuinely worth recording for later reference
- urgent: explicitly time-critical

Respond with ONLY a JSON object, no other text:
{
  "actionable": boolean,
  "noteworthy": boolean,
  "content": string,     // echo the intent content unchanged
  "due_time": string|null,
  "urgent": boolean
}

You may reject a dimension the local model claimed; never invent one it did not.`

const refineSystemPrompt = `You polish a validated intent before it is delivered to the user.

Rules:
1. The intent must be supported by the screen excerpt. If it describes something not present there, set actionable and noteworthy to false.
2. Rewrite content as one clear, natural sentence in the requested output language.
3. If a due time is stated or clearly implied, return it as "YYYY-MM-DDTHH:MM" in the user's local time. It must be in the future relative to the current time; if the literal reading is in the past, roll it forward to the next occurrence. Otherwise return null.
4. Keep urgent true only for explicitly time-critical items.

Respond with ONLY a JSON object, no other text:
{
  "actionable": boolean,
  "noteworthy": boolean,
  "content": string,
  "due_time": string|null,
  "urgent": boolean
}`

func validateUserPrompt(res intentFields, rc Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extracted intent:\n%s\n\n", res)
	fmt.Fprintf(&b, "Capture source: %s (trigger: %s)\n\n", orUnknown(rc.SourceApp), orUnknown(rc.Trigger))
	fmt.Fprintf(&b, "Screen excerpt:\n%s", clipExcerpt(rc.Excerpt))
	return b.String()
}

func refineUserPrompt(res intentFields, rc Context, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current local time: %s\n", now.Format("2006-01-02 15:04 (Monday)"))
	fmt.Fprintf(&b, "Output language: %s\n\n", rc.Language)
	fmt.Fprintf(&b, "Validated intent:\n%s\n\n", res)
	fmt.Fprintf(&b, "Screen excerpt:\n%s", clipExcerpt(rc.Excerpt))
	return b.String()
}

// intentFields renders the fields the reviewer needs in a stable,
// prompt-friendly shape.
type intentFields struct {
	Actionable bool
	Noteworthy bool
	Urgent     bool
	Content    string
	DueTime    string
}

func (f intentFields) String() string {
	due := f.DueTime
	if due == "" {
		due = "none"
	}
	return fmt.Sprintf("actionable=%t noteworthy=%t urgent=%t\ncontent: %s\ndue: %s",
		f.Actionable, f.Noteworthy, f.Urgent, f.Content, due)
}

func clipExcerpt(s string) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= maxExcerptLength {
		return string(runes)
	}
	return string(runes[:maxExcerptLength]) + "..."
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
