package intent

import (
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/intentd/internal/config"
)

// guards holds the compiled deterministic post-rules. The pattern lists
// come from config so deployments can recalibrate them; the rule logic
// itself is fixed.
type guards struct {
	noise    []*regexp.Regexp
	task     []*regexp.Regexp
	decision []*regexp.Regexp
	noAction []*regexp.Regexp
	urgency  []*regexp.Regexp
}

func newGuards(cfg config.ClassifierConfig) *guards {
	return &guards{
		noise:    compilePatterns(cfg.NoisePatterns),
		task:     compilePatterns(cfg.TaskSignalPatterns),
		decision: compilePatterns(cfg.DecisionSignalPatterns),
		noAction: compilePatterns(cfg.NoActionPatterns),
		urgency:  compilePatterns(cfg.UrgencyPatterns),
	}
}

// compilePatterns skips patterns that fail to compile; a bad config
// pattern must not take the classifier down.
func compilePatterns(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		out = append(out, re)
	}
	return out
}

func anyMatch(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// apply runs the guard rules over the model's answer, in order, and
// returns the corrected result. The model decides; the guards veto.
func (g *guards) apply(raw Raw) *Result {
	res := &Result{
		Actionable: raw.Actionable,
		Noteworthy: raw.Noteworthy,
		Content:    strings.TrimSpace(raw.Content),
		Urgent:     raw.Urgent,
	}
	if raw.DueTime != nil {
		res.DueTime = strings.TrimSpace(*raw.DueTime)
	}

	// Empty content: downstream logs "classified but empty" distinctly
	// from "classifier unavailable", so return all-false rather than nil.
	if res.Content == "" {
		return &Result{}
	}

	// Garbled content cannot be trusted in any dimension.
	if readableFraction(res.Content) < 0.5 {
		return &Result{}
	}

	// Promotional noise, unless an explicit task signal is also present.
	if anyMatch(g.noise, res.Content) && !anyMatch(g.task, res.Content) {
		res.Actionable = false
		res.Noteworthy = false
	}

	// Explicit "no action needed" / already-completed phrasing.
	if anyMatch(g.noAction, res.Content) {
		res.Actionable = false
		res.DueTime = ""
	}

	// Noteworthy is only honored with a decision/reference signal.
	if res.Noteworthy && !anyMatch(g.decision, res.Content) {
		res.Noteworthy = false
	}

	// Urgency is derived from the final content, not trusted verbatim.
	res.Urgent = anyMatch(g.urgency, res.Content)
	if !res.Actionable && !res.Noteworthy {
		res.Urgent = false
	}

	if !res.Actionable {
		res.DueTime = ""
	}

	res.Content = truncateContent(res.Content)
	return res
}
