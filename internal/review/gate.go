package review

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intentd/internal/intent"
	"github.com/fyrsmithlabs/intentd/internal/llm"
	"github.com/fyrsmithlabs/intentd/internal/logging"
)

const (
	reviewTemperature = 0.1
	reviewMaxTokens   = 512
)

// Outcome is the gate's verdict for one intent, including the per-stage
// trace the cycle log records.
type Outcome struct {
	Stages   []StageResult
	Result   *intent.Result // final intent; nil when Rejected
	Rejected bool
}

// Gate runs the two-stage cloud review. Whether a gate failure drops the
// intent or lets the local result through is the caller's policy, keyed
// off the returned *Error.
type Gate struct {
	chat llm.Chat
	log  *logging.Logger
	now  func() time.Time
}

// NewGate creates a review gate backed by the cloud inference client.
func NewGate(chat llm.Chat, log *logging.Logger) *Gate {
	return &Gate{
		chat: chat,
		log:  log.Named("review"),
		now:  time.Now,
	}
}

// Review runs both stages over res. The input is never mutated.
//
// A dimension res left false stays false through both stages. Rejection
// (both dimensions false after a stage) is a normal outcome, not an
// error. Errors are always *Error and carry the failing stage.
func (g *Gate) Review(ctx context.Context, res *intent.Result, rc Context) (*Outcome, error) {
	out := &Outcome{}

	st1, stageRes, err := g.validate(ctx, res, rc)
	out.Stages = append(out.Stages, stageRes)
	if err != nil {
		return out, err
	}
	if st1.Empty() {
		out.Rejected = true
		g.log.Info("intent rejected by validation",
			zap.String("content", res.Content))
		return out, nil
	}

	final, stageRes, err := g.refine(ctx, st1, rc)
	out.Stages = append(out.Stages, stageRes)
	if err != nil {
		return out, err
	}
	if final.Empty() {
		out.Rejected = true
		g.log.Info("intent rejected by refinement",
			zap.String("content", st1.Content))
		return out, nil
	}

	out.Result = final
	return out, nil
}

// validate is stage 1: confirm or downgrade the local judgment.
func (g *Gate) validate(ctx context.Context, res *intent.Result, rc Context) (*intent.Result, StageResult, error) {
	start := g.now()
	stage := StageResult{Stage: 1}

	answer, err := g.chat.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: validateSystemPrompt},
		{Role: llm.RoleUser, Content: validateUserPrompt(fields(res), rc)},
	}, llm.Options{
		Temperature: reviewTemperature,
		MaxTokens:   reviewMaxTokens,
		WantJSON:    true,
	})
	stage.LatencyMs = sinceMs(start, g.now)
	if err != nil {
		stage.Outcome = "error"
		return nil, stage, &Error{Stage: 1, Reason: "cloud call failed", Err: err}
	}

	raw, ok := intent.ParseResponse(answer)
	if !ok {
		stage.Outcome = "error"
		return nil, stage, &Error{Stage: 1, Reason: "unusable model output", Snippet: clip(answer, 120)}
	}

	// Downgrade only: AND each dimension with the local value. Content
	// and due time pass through untouched; rewriting is stage 2's job.
	st1 := &intent.Result{
		Actionable: res.Actionable && raw.Actionable,
		Noteworthy: res.Noteworthy && raw.Noteworthy,
		Urgent:     res.Urgent && raw.Urgent,
		Content:    res.Content,
		DueTime:    res.DueTime,
	}

	if st1.Empty() {
		stage.Outcome = OutcomeRejected
	} else {
		stage.Outcome = OutcomePassed
	}
	return st1, stage, nil
}

// refine is stage 2: hallucination check, language polish, and due-time
// normalization. Unusable output keeps the stage 1 result unmodified.
func (g *Gate) refine(ctx context.Context, st1 *intent.Result, rc Context) (*intent.Result, StageResult, error) {
	start := g.now()
	stage := StageResult{Stage: 2}

	answer, err := g.chat.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: refineSystemPrompt},
		{Role: llm.RoleUser, Content: refineUserPrompt(fields(st1), rc, g.now())},
	}, llm.Options{
		Temperature: reviewTemperature,
		MaxTokens:   reviewMaxTokens,
		WantJSON:    true,
	})
	stage.LatencyMs = sinceMs(start, g.now)
	if err != nil {
		stage.Outcome = "error"
		return nil, stage, &Error{Stage: 2, Reason: "cloud call failed", Err: err}
	}

	raw, ok := intent.ParseResponse(answer)
	if !ok {
		// A garbled refinement must not discard a validated intent.
		stage.Outcome = OutcomeKeptPrior
		g.log.Warn("unusable refinement output, keeping validated intent",
			zap.String("snippet", clip(answer, 120)))
		return st1, stage, nil
	}

	final := &intent.Result{
		Actionable: st1.Actionable && raw.Actionable,
		Noteworthy: st1.Noteworthy && raw.Noteworthy,
		Urgent:     st1.Urgent && raw.Urgent,
		Content:    st1.Content,
		DueTime:    st1.DueTime,
	}
	if c := strings.TrimSpace(raw.Content); c != "" {
		if runes := []rune(c); len(runes) > intent.MaxContentLength {
			c = string(runes[:intent.MaxContentLength])
		}
		final.Content = c
	}
	if raw.DueTime != nil {
		final.DueTime = strings.TrimSpace(*raw.DueTime)
	}
	final.DueTime = rollForward(final.DueTime, g.now())
	if !final.Actionable {
		final.DueTime = ""
	}

	if final.Empty() {
		stage.Outcome = OutcomeRejected
	} else {
		stage.Outcome = OutcomeRefined
	}
	return final, stage, nil
}

// rollForward pushes a due time that resolved to the past forward by
// whole days until it is in the future, preserving the time of day. The
// model is asked to do this itself; this is the backstop for when it
// echoes the literal reading anyway. Unparsable values pass through.
func rollForward(due string, now time.Time) string {
	if due == "" {
		return ""
	}
	t, err := time.ParseInLocation("2006-01-02T15:04", due, now.Location())
	if err != nil {
		return due
	}
	for !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t.Format("2006-01-02T15:04")
}

func fields(r *intent.Result) intentFields {
	return intentFields{
		Actionable: r.Actionable,
		Noteworthy: r.Noteworthy,
		Urgent:     r.Urgent,
		Content:    r.Content,
		DueTime:    r.DueTime,
	}
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
