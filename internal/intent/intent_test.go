package intent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/intentd/internal/config"
	"github.com/fyrsmithlabs/intentd/internal/llm"
	"github.com/fyrsmithlabs/intentd/internal/logging"
)

type fakeChat struct {
	answer string
	err    error
	calls  []llm.Message
}

func (f *fakeChat) Chat(_ context.Context, messages []llm.Message, _ llm.Options) (string, error) {
	f.calls = append(f.calls, messages...)
	return f.answer, f.err
}

func classifierCfg() config.ClassifierConfig {
	return config.NewDefault().Classifier
}

func TestCleanText(t *testing.T) {
	in := strings.Join([]string{
		"Remember to submit the expense report by Friday",
		"func main() {",
		"    x := compute()",
		"}",
		"ERROR failed to connect to database",
		"ok", // below min line length
		"The team agreed to move the launch to March",
	}, "\n")

	out := CleanText(in, 6)
	assert.Contains(t, out, "expense report")
	assert.Contains(t, out, "move the launch")
	assert.NotContains(t, out, "func main")
	assert.NotContains(t, out, "ERROR")
	assert.NotContains(t, out, ":=")
	assert.NotContains(t, out, "\nok")
}

func TestReadableFraction(t *testing.T) {
	assert.Greater(t, readableFraction("call the landlord at 8pm"), 0.9)
	assert.Greater(t, readableFraction("记得明天交报告"), 0.9)
	assert.Less(t, readableFraction("�~�|�^��}�{{|�"), 0.5)
	assert.Equal(t, 0.0, readableFraction(""))
}

func TestParseIntentResponse(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		wantOK     bool
		actionable bool
		content    string
		due        string
	}{
		{
			name:       "strict json",
			in:         `{"actionable": true, "noteworthy": false, "content": "call landlord", "due_time": "2026-08-31T20:00", "urgent": false}`,
			wantOK:     true,
			actionable: true,
			content:    "call landlord",
			due:        "2026-08-31T20:00",
		},
		{
			name:       "fenced json",
			in:         "```json\n{\"actionable\": true, \"noteworthy\": false, \"content\": \"pay rent\", \"due_time\": null, \"urgent\": false}\n```",
			wantOK:     true,
			actionable: true,
			content:    "pay rent",
		},
		{
			name:       "json wrapped in prose",
			in:         `Sure! Here is the analysis: {"actionable": true, "noteworthy": false, "content": "book flight", "due_time": null, "urgent": false} Hope that helps.`,
			wantOK:     true,
			actionable: true,
			content:    "book flight",
		},
		{
			name:       "trailing comma falls back to regex",
			in:         `{"actionable": true, "noteworthy": false, "content": "send invoice", "due_time": null, "urgent": false,}`,
			wantOK:     true,
			actionable: true,
			content:    "send invoice",
		},
		{
			name:       "unterminated brace falls back to regex",
			in:         `{"actionable": true, "noteworthy": false, "content": "review contract", "due_time": "2026-09-01T09:00"`,
			wantOK:     true,
			actionable: true,
			content:    "review contract",
			due:        "2026-09-01T09:00",
		},
		{
			name:   "no json at all",
			in:     "I could not find anything actionable in this text.",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, ok := ParseResponse(tt.in)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.actionable, raw.Actionable)
			assert.Equal(t, tt.content, raw.Content)
			if tt.due == "" {
				assert.Nil(t, raw.DueTime)
			} else {
				require.NotNil(t, raw.DueTime)
				assert.Equal(t, tt.due, *raw.DueTime)
			}
		})
	}
}

func TestGuardsGarbledContent(t *testing.T) {
	g := newGuards(classifierCfg())
	res := g.apply(Raw{Actionable: true, Noteworthy: true, Content: "�~�|�^��}�{{|����"})
	assert.False(t, res.Actionable)
	assert.False(t, res.Noteworthy)
	assert.Empty(t, res.Content)
}

func TestGuardsEmptyContentIsAllFalseResult(t *testing.T) {
	g := newGuards(classifierCfg())
	res := g.apply(Raw{Actionable: true, Content: "   "})
	require.NotNil(t, res)
	assert.True(t, res.Empty())
}

func TestGuardsNoiseOverride(t *testing.T) {
	g := newGuards(classifierCfg())

	res := g.apply(Raw{Actionable: true, Content: "Limited-time offer: subscribe now and save 20%"})
	assert.False(t, res.Actionable)
	assert.False(t, res.Noteworthy)

	// Task signal escapes the noise override.
	res = g.apply(Raw{Actionable: true, Content: "Remember to cancel the free trial before it renews"})
	assert.True(t, res.Actionable)
}

func TestGuardsNoActionOverride(t *testing.T) {
	g := newGuards(classifierCfg())
	due := "2026-09-01T10:00"
	res := g.apply(Raw{Actionable: true, Content: "The invoice has been completed, no action needed", DueTime: &due})
	assert.False(t, res.Actionable)
	assert.Empty(t, res.DueTime)
}

func TestGuardsNoteworthyGate(t *testing.T) {
	g := newGuards(classifierCfg())

	// No decision/reference signal: downgraded.
	res := g.apply(Raw{Noteworthy: true, Content: "Some interesting article about weather patterns today"})
	assert.False(t, res.Noteworthy)

	// Decision signal present: honored.
	res = g.apply(Raw{Noteworthy: true, Content: "The team decided to migrate the billing system to Stripe"})
	assert.True(t, res.Noteworthy)
}

func TestGuardsUrgencyDerivedNotTrusted(t *testing.T) {
	g := newGuards(classifierCfg())

	// Model claimed urgent but content has no urgency pattern.
	res := g.apply(Raw{Actionable: true, Content: "Schedule a dentist appointment sometime next month", Urgent: true})
	assert.False(t, res.Urgent)

	// Content carries an urgency pattern even though the model said no.
	res = g.apply(Raw{Actionable: true, Content: "Pay the electricity bill today, it is overdue", Urgent: false})
	assert.True(t, res.Urgent)

	// Urgency forced false when neither dimension holds.
	res = g.apply(Raw{Content: "this is urgent noise with no dimension"})
	assert.False(t, res.Urgent)
}

func TestGuardsDueTimeClearedWhenNotActionable(t *testing.T) {
	g := newGuards(classifierCfg())
	due := "2026-09-01T10:00"
	res := g.apply(Raw{Noteworthy: true, Content: "We agreed on the new deadline for the project", DueTime: &due})
	assert.False(t, res.Actionable)
	assert.Empty(t, res.DueTime)
}

func TestGuardsContentTruncation(t *testing.T) {
	g := newGuards(classifierCfg())
	long := "Remember to " + strings.Repeat("really ", 60) + "call"
	res := g.apply(Raw{Actionable: true, Content: long})
	assert.LessOrEqual(t, len([]rune(res.Content)), MaxContentLength)
}

func TestClassifyLandlordScenario(t *testing.T) {
	chat := &fakeChat{
		answer: `{"actionable": true, "noteworthy": false, "content": "call landlord at 8pm", "due_time": "2026-08-31T20:00", "urgent": false}`,
	}
	c := NewClassifier(chat, logging.NewNop())

	res, err := c.Classify(context.Background(), classifierCfg(),
		"don't forget to call landlord at 8pm", false)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.True(t, res.Actionable)
	assert.Contains(t, res.Content, "call landlord")
	assert.False(t, res.Urgent) // no explicit urgency pattern
	assert.Equal(t, "2026-08-31T20:00", res.DueTime)
}

func TestClassifyNothingToClassify(t *testing.T) {
	chat := &fakeChat{answer: "should never be called"}
	c := NewClassifier(chat, logging.NewNop())

	res, err := c.Classify(context.Background(), classifierCfg(), "hi", false)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Empty(t, chat.calls)
}

func TestClassifyInferenceFailure(t *testing.T) {
	chat := &fakeChat{err: errors.New("connection refused")}
	c := NewClassifier(chat, logging.NewNop())

	_, err := c.Classify(context.Background(), classifierCfg(),
		"don't forget to call landlord at 8pm tonight", false)
	var cerr *ClassificationError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Error(), "inference call failed")
}

func TestClassifyUsesHotkeyPrompt(t *testing.T) {
	chat := &fakeChat{answer: `{"actionable": false, "noteworthy": false, "content": "", "due_time": null, "urgent": false}`}
	c := NewClassifier(chat, logging.NewNop())

	_, err := c.Classify(context.Background(), classifierCfg(),
		"some deliberately captured content about a meeting", true)
	require.NoError(t, err)
	require.NotEmpty(t, chat.calls)
	assert.Contains(t, chat.calls[0].Content, "hotkey")
}
