// Package review implements the optional two-stage cloud gate that runs
// between dedup and delivery.
//
// Stage 1 validates the local classifier's judgment and may only
// downgrade it: a dimension the local model left false can never come
// back true. Stage 2 refines the surviving intent against the original
// screen excerpt, translating it to the configured output language and
// normalizing its due time. Stage failures surface as typed errors so
// the caller can apply its fail-open policy.
package review

import (
	"fmt"
	"time"
)

// Stage outcomes recorded per call.
const (
	OutcomePassed    = "passed"
	OutcomeRejected  = "rejected"
	OutcomeRefined   = "refined"
	OutcomeKeptPrior = "kept-prior" // stage 2 output unusable, stage 1 result stands
)

// Context carries what the gate knows about where the intent came from.
type Context struct {
	SourceApp string // frontmost application at capture time
	Trigger   string // "poll" or "hotkey"
	Excerpt   string // bounded slice of the batched screen text
	Language  string // target output language code
}

// StageResult records one gate stage for the cycle log.
type StageResult struct {
	Stage     int
	Outcome   string
	LatencyMs int64
}

// Error is a review failure tagged with the stage that produced it.
type Error struct {
	Stage   int
	Reason  string
	Snippet string // truncated model output, when relevant
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("review stage %d: %s: %v", e.Stage, e.Reason, e.Err)
	}
	return fmt.Sprintf("review stage %d: %s", e.Stage, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func sinceMs(start time.Time, now func() time.Time) int64 {
	return now().Sub(start).Milliseconds()
}
