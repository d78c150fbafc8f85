package intent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/intentd/internal/llm"
)

// Raw is the shape expected from the model.
type Raw struct {
	Actionable bool    `json:"actionable"`
	Noteworthy bool    `json:"noteworthy"`
	Content    string  `json:"content"`
	DueTime    *string `json:"due_time"`
	Urgent     bool    `json:"urgent"`
}

// Field-by-field extraction patterns for malformed JSON (trailing
// commas, unterminated braces). Booleans and due_time tolerate sloppy
// spacing; content handles escaped quotes.
var (
	reActionable = regexp.MustCompile(`"actionable"\s*:\s*(true|false)`)
	reNoteworthy = regexp.MustCompile(`"noteworthy"\s*:\s*(true|false)`)
	reUrgent     = regexp.MustCompile(`"urgent"\s*:\s*(true|false)`)
	reContent    = regexp.MustCompile(`"content"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	reDueTime    = regexp.MustCompile(`"due_time"\s*:\s*(?:"([^"]*)"|null)`)
)

// ParseResponse extracts an intent from free-text model output.
// Strict JSON parse first; on failure, field-by-field regex extraction.
// The second return is false only when neither strategy found anything.
func ParseResponse(text string) (Raw, bool) {
	stripped := llm.StripFences(text)

	// The model sometimes wraps the object in prose; try the first
	// brace-to-last-brace span before giving up on strict parsing.
	candidate := stripped
	if !strings.HasPrefix(candidate, "{") {
		if start := strings.Index(candidate, "{"); start >= 0 {
			if end := strings.LastIndex(candidate, "}"); end > start {
				candidate = candidate[start : end+1]
			}
		}
	}

	var raw Raw
	if err := json.Unmarshal([]byte(candidate), &raw); err == nil {
		return raw, true
	}

	return extractFields(stripped)
}

// extractFields recovers what it can from malformed JSON. It succeeds if
// at least one boolean dimension was found; everything else defaults.
func extractFields(text string) (Raw, bool) {
	var raw Raw
	found := false

	if m := reActionable.FindStringSubmatch(text); m != nil {
		raw.Actionable = m[1] == "true"
		found = true
	}
	if m := reNoteworthy.FindStringSubmatch(text); m != nil {
		raw.Noteworthy = m[1] == "true"
		found = true
	}
	if m := reUrgent.FindStringSubmatch(text); m != nil {
		raw.Urgent = m[1] == "true"
	}
	if m := reContent.FindStringSubmatch(text); m != nil {
		raw.Content = unescapeJSON(m[1])
	}
	if m := reDueTime.FindStringSubmatch(text); m != nil && m[1] != "" {
		due := m[1]
		raw.DueTime = &due
	}

	return raw, found
}

// unescapeJSON undoes the escapes the content regex may have captured.
func unescapeJSON(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		// Raw value was not a valid JSON string fragment; use it as-is.
		return s
	}
	return out
}
