// Package batch collapses a stream of text-change events into time-boxed
// batches so the classifier sees one bounded prompt per window instead of
// one call per screen refresh.
package batch

import (
	"strings"
	"time"
)

// Event is one forwarded text change.
type Event struct {
	Text string
	App  string
	At   time.Time
}

// Batch accumulates events over one window. It is mutated only during
// accumulation and becomes immutable once yielded.
type Batch struct {
	Texts     []string
	Apps      map[string]struct{}
	StartTime time.Time
	EndTime   time.Time
}

func newBatch(first Event) *Batch {
	b := &Batch{
		Apps:      make(map[string]struct{}),
		StartTime: first.At,
	}
	b.add(first)
	return b
}

func (b *Batch) add(ev Event) {
	b.Texts = append(b.Texts, ev.Text)
	if ev.App != "" {
		b.Apps[ev.App] = struct{}{}
	}
	b.EndTime = ev.At
}

// New constructs a batch directly from samples, for the hotkey path where
// one fetch is batched synchronously without a window.
func New(texts []string, apps []string, start, end time.Time) *Batch {
	b := &Batch{
		Texts:     texts,
		Apps:      make(map[string]struct{}, len(apps)),
		StartTime: start,
		EndTime:   end,
	}
	for _, app := range apps {
		if app != "" {
			b.Apps[app] = struct{}{}
		}
	}
	return b
}

// AppList returns the originating apps in stable-ish order for logging.
func (b *Batch) AppList() []string {
	apps := make([]string, 0, len(b.Apps))
	for app := range b.Apps {
		apps = append(apps, app)
	}
	return apps
}

// CombinedText joins whole texts greedily until the character budget is
// exhausted. A text that would cross the budget is dropped entirely
// rather than split, so the model never sees a truncated fragment.
//
// When not even the first text fits, a truncated prefix of it is
// returned instead: a dense screen must still yield bounded classifier
// input, never an empty cycle.
func (b *Batch) CombinedText(budget int) string {
	var sb strings.Builder
	for _, text := range b.Texts {
		need := len(text)
		if sb.Len() > 0 {
			need += 2 // separator
		}
		if sb.Len()+need > budget {
			break
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	}

	if sb.Len() == 0 && len(b.Texts) > 0 && budget > 0 {
		runes := []rune(b.Texts[0])
		if len(runes) > budget {
			runes = runes[:budget]
		}
		return string(runes)
	}
	return sb.String()
}
