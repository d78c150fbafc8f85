// Package config provides the validated, hot-reloadable runtime
// configuration for intentd.
//
// The live configuration is always a fully-defaulted, schema-valid value.
// Invalid edits never replace it: the store keeps serving the previous
// snapshot and reports every field-level issue it found.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyrsmithlabs/intentd/internal/logging"
)

// Pipe is the complete pipeline configuration.
type Pipe struct {
	Capture        CaptureConfig    `koanf:"capture" json:"capture"`
	Filter         FilterConfig     `koanf:"filter" json:"filter"`
	Change         ChangeConfig     `koanf:"change" json:"change"`
	Batch          BatchConfig      `koanf:"batch" json:"batch"`
	Classifier     ClassifierConfig `koanf:"classifier" json:"classifier"`
	Dedup          DedupConfig      `koanf:"dedup" json:"dedup"`
	Review         ReviewConfig     `koanf:"review" json:"review"`
	Notify         NotifyConfig     `koanf:"notify" json:"notify"`
	Reminders      SinkConfig       `koanf:"reminders" json:"reminders"`
	Notes          SinkConfig       `koanf:"notes" json:"notes"`
	Models         ModelsConfig     `koanf:"models" json:"models"`
	Storage        StorageConfig    `koanf:"storage" json:"storage"`
	Logging        logging.Config   `koanf:"logging" json:"logging"`
	OutputLanguage string           `koanf:"output_language" json:"output_language"`
}

// CaptureConfig controls the capture cadence. Changing any field here
// requires a restart; the poll loop is armed once at startup.
type CaptureConfig struct {
	Mode            string `koanf:"mode" json:"mode"` // "poll" or "hotkey"
	IntervalSeconds int    `koanf:"interval_seconds" json:"interval_seconds"`
	LookbackSeconds int    `koanf:"lookback_seconds" json:"lookback_seconds"`
	SampleLimit     int    `koanf:"sample_limit" json:"sample_limit"`
}

// FilterConfig governs which samples enter the pipeline.
// Matching is case-insensitive. Empty AllowedApps allows every app.
type FilterConfig struct {
	AllowedApps    []string `koanf:"allowed_apps" json:"allowed_apps"`
	BlockedWindows []string `koanf:"blocked_windows" json:"blocked_windows"`
	MinTextLength  int      `koanf:"min_text_length" json:"min_text_length"`
}

// ChangeConfig controls the change detector.
type ChangeConfig struct {
	Threshold float64 `koanf:"threshold" json:"threshold"`
}

// BatchConfig controls the batch aggregator.
type BatchConfig struct {
	WindowSeconds int `koanf:"window_seconds" json:"window_seconds"`
	CharBudget    int `koanf:"char_budget" json:"char_budget"`
}

// ClassifierConfig controls the intent classifier. The pattern lists are
// calibration knobs, not invariants; deployments tune them without a
// rebuild.
type ClassifierConfig struct {
	MinLineLength          int      `koanf:"min_line_length" json:"min_line_length"`
	MinTextLength          int      `koanf:"min_text_length" json:"min_text_length"`
	NoisePatterns          []string `koanf:"noise_patterns" json:"noise_patterns"`
	TaskSignalPatterns     []string `koanf:"task_signal_patterns" json:"task_signal_patterns"`
	DecisionSignalPatterns []string `koanf:"decision_signal_patterns" json:"decision_signal_patterns"`
	NoActionPatterns       []string `koanf:"no_action_patterns" json:"no_action_patterns"`
	UrgencyPatterns        []string `koanf:"urgency_patterns" json:"urgency_patterns"`
}

// DedupConfig controls the two-track dedup store.
type DedupConfig struct {
	ActionableThreshold float64 `koanf:"actionable_threshold" json:"actionable_threshold"`
	NoteworthyThreshold float64 `koanf:"noteworthy_threshold" json:"noteworthy_threshold"`
	LookbackDays        int     `koanf:"lookback_days" json:"lookback_days"`
}

// ReviewConfig controls the optional two-stage cloud review gate.
type ReviewConfig struct {
	Enabled  bool `koanf:"enabled" json:"enabled"`
	FailOpen bool `koanf:"fail_open" json:"fail_open"`
}

// NotifyConfig controls the notification fan-out.
type NotifyConfig struct {
	Desktop  bool            `koanf:"desktop" json:"desktop"`
	Webhooks []WebhookConfig `koanf:"webhooks" json:"webhooks"`
}

// WebhookConfig describes one webhook channel.
type WebhookConfig struct {
	Provider string `koanf:"provider" json:"provider"` // generic, slack, discord, telegram
	Enabled  bool   `koanf:"enabled" json:"enabled"`
	URL      string `koanf:"url" json:"url"`
	ChatID   string `koanf:"chat_id" json:"chat_id"` // telegram destination
}

// SinkConfig enables an OS-level reminder list or notes folder sink.
type SinkConfig struct {
	Enabled bool   `koanf:"enabled" json:"enabled"`
	Target  string `koanf:"target" json:"target"` // list or folder name
}

// ModelsConfig holds the two inference backends.
type ModelsConfig struct {
	Local ModelConfig `koanf:"local" json:"local"`
	Cloud ModelConfig `koanf:"cloud" json:"cloud"`
}

// ModelConfig holds one inference backend.
type ModelConfig struct {
	BaseURL        string `koanf:"base_url" json:"base_url"`
	Model          string `koanf:"model" json:"model"`
	APIKey         string `koanf:"api_key" json:"api_key"`
	TimeoutSeconds int    `koanf:"timeout_seconds" json:"timeout_seconds"`
}

// StorageConfig holds file locations for persisted state.
type StorageConfig struct {
	DataDir string `koanf:"data_dir" json:"data_dir"`
}

// DataPath returns DataDir with a leading ~ expanded to the user's home
// directory.
func (s StorageConfig) DataPath() string {
	if s.DataDir == "~" || strings.HasPrefix(s.DataDir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(s.DataDir, "~"))
		}
	}
	return s.DataDir
}

// Capture modes.
const (
	ModePoll   = "poll"
	ModeHotkey = "hotkey"
)

// NewDefault returns a Pipe with every field set to its documented
// default. An empty config file parses to exactly this value.
func NewDefault() *Pipe {
	return &Pipe{
		Capture: CaptureConfig{
			Mode:            ModePoll,
			IntervalSeconds: 30,
			LookbackSeconds: 60,
			SampleLimit:     10,
		},
		Filter: FilterConfig{
			AllowedApps:    nil, // allow all
			BlockedWindows: nil,
			MinTextLength:  20,
		},
		Change: ChangeConfig{
			Threshold: 0.15,
		},
		Batch: BatchConfig{
			WindowSeconds: 5,
			CharBudget:    2000,
		},
		Classifier: ClassifierConfig{
			MinLineLength:          6,
			MinTextLength:          20,
			NoisePatterns:          defaultNoisePatterns(),
			TaskSignalPatterns:     defaultTaskSignalPatterns(),
			DecisionSignalPatterns: defaultDecisionSignalPatterns(),
			NoActionPatterns:       defaultNoActionPatterns(),
			UrgencyPatterns:        defaultUrgencyPatterns(),
		},
		Dedup: DedupConfig{
			ActionableThreshold: 0.6,
			NoteworthyThreshold: 0.8,
			LookbackDays:        7,
		},
		Review: ReviewConfig{
			Enabled:  false,
			FailOpen: true,
		},
		Notify: NotifyConfig{
			Desktop:  true,
			Webhooks: nil,
		},
		Reminders: SinkConfig{Enabled: false, Target: "Intentd"},
		Notes:     SinkConfig{Enabled: false, Target: "Intentd Notes"},
		Models: ModelsConfig{
			Local: ModelConfig{
				BaseURL:        "http://localhost:11434",
				Model:          "qwen2.5:7b",
				TimeoutSeconds: 60,
			},
			Cloud: ModelConfig{
				BaseURL:        "https://api.openai.com/v1",
				Model:          "gpt-4o-mini",
				TimeoutSeconds: 30,
			},
		},
		Storage: StorageConfig{
			DataDir: "~/.local/share/intentd",
		},
		Logging:        logging.NewDefaultConfig(),
		OutputLanguage: "en",
	}
}

func defaultNoisePatterns() []string {
	return []string{
		`(?i)\b(limited[- ]time offer|sale ends|buy now|subscribe now|sign up (now|today)|free trial)\b`,
		`(?i)\b(sponsored|advertisement|promo code|coupon|% off|click here|learn more)\b`,
		`(?i)\b(unlock premium|upgrade (now|today)|don't miss out)\b`,
		`立即(购买|抢购|订阅)|限时(优惠|折扣)|点击(这里|了解)`,
	}
}

func defaultTaskSignalPatterns() []string {
	return []string{
		`(?i)\b(remember to|don't forget|need to|have to|must|make sure to|todo)\b`,
		`(?i)\b(call|email|send|submit|pay|book|schedule|review|reply to)\b`,
		`请|记得|别忘了|需要|要交|提交`,
	}
}

func defaultDecisionSignalPatterns() []string {
	return []string{
		`(?i)\b(decided|decision|agreed|conclusion|we (will|chose)|approach is|going with)\b`,
		`(?i)\b(deadline|address|reference|account number|confirmation (code|number)|flight|itinerary)\b`,
		`决定|结论|确认|参考|地址`,
	}
}

func defaultNoActionPatterns() []string {
	return []string{
		`(?i)\b(no action (is )?(needed|required)|nothing to do|already (done|completed|handled|paid))\b`,
		`(?i)^\s*(cancelled|canceled)\s*\.?\s*$`,
		`(?i)\b(has been (cancelled|canceled|completed|resolved))\b`,
		`无需(操作|处理)|已(完成|处理|取消)`,
	}
}

func defaultUrgencyPatterns() []string {
	return []string{
		`(?i)\b(urgent|asap|immediately|right (now|away)|by (today|tonight|end of day)|overdue|final notice)\b`,
		`紧急|立刻|马上|尽快|今天(之内|内)`,
	}
}

// Validate collects every field-level issue rather than stopping at the
// first, so one edit round-trip surfaces all problems.
func (p *Pipe) Validate() []string {
	var issues []string

	if p.Capture.Mode != ModePoll && p.Capture.Mode != ModeHotkey {
		issues = append(issues, fmt.Sprintf("capture.mode: %q is not %q or %q", p.Capture.Mode, ModePoll, ModeHotkey))
	}
	if p.Capture.IntervalSeconds < 1 {
		issues = append(issues, fmt.Sprintf("capture.interval_seconds: must be >= 1, got %d", p.Capture.IntervalSeconds))
	}
	if p.Capture.SampleLimit < 1 {
		issues = append(issues, fmt.Sprintf("capture.sample_limit: must be >= 1, got %d", p.Capture.SampleLimit))
	}
	if p.Filter.MinTextLength < 0 {
		issues = append(issues, fmt.Sprintf("filter.min_text_length: must be >= 0, got %d", p.Filter.MinTextLength))
	}
	if p.Change.Threshold < 0 || p.Change.Threshold > 1 {
		issues = append(issues, fmt.Sprintf("change.threshold: must be in [0,1], got %g", p.Change.Threshold))
	}
	if p.Batch.WindowSeconds < 1 {
		issues = append(issues, fmt.Sprintf("batch.window_seconds: must be >= 1, got %d", p.Batch.WindowSeconds))
	}
	if p.Batch.CharBudget < 1 {
		issues = append(issues, fmt.Sprintf("batch.char_budget: must be >= 1, got %d", p.Batch.CharBudget))
	}
	if p.Dedup.ActionableThreshold < 0 || p.Dedup.ActionableThreshold > 1 {
		issues = append(issues, fmt.Sprintf("dedup.actionable_threshold: must be in [0,1], got %g", p.Dedup.ActionableThreshold))
	}
	if p.Dedup.NoteworthyThreshold < 0 || p.Dedup.NoteworthyThreshold > 1 {
		issues = append(issues, fmt.Sprintf("dedup.noteworthy_threshold: must be in [0,1], got %g", p.Dedup.NoteworthyThreshold))
	}
	if p.Dedup.LookbackDays < 1 {
		issues = append(issues, fmt.Sprintf("dedup.lookback_days: must be >= 1, got %d", p.Dedup.LookbackDays))
	}
	for i, wh := range p.Notify.Webhooks {
		switch wh.Provider {
		case "generic", "slack", "discord", "telegram":
		default:
			issues = append(issues, fmt.Sprintf("notify.webhooks[%d].provider: unknown provider %q", i, wh.Provider))
		}
		if wh.Enabled && wh.URL == "" {
			issues = append(issues, fmt.Sprintf("notify.webhooks[%d].url: required when enabled", i))
		}
	}
	if p.Review.Enabled && p.Models.Cloud.APIKey == "" {
		issues = append(issues, "models.cloud.api_key: required when review is enabled")
	}
	if p.Storage.DataDir == "" {
		issues = append(issues, "storage.data_dir: must not be empty")
	}
	if p.OutputLanguage == "" {
		issues = append(issues, "output_language: must not be empty")
	}
	if err := p.Logging.Validate(); err != nil {
		issues = append(issues, fmt.Sprintf("logging: %v", err))
	}

	return issues
}

// PollInterval returns the poll cadence as a duration.
func (p *Pipe) PollInterval() time.Duration {
	return time.Duration(p.Capture.IntervalSeconds) * time.Second
}

// BatchWindow returns the aggregation window as a duration.
func (p *Pipe) BatchWindow() time.Duration {
	return time.Duration(p.Batch.WindowSeconds) * time.Second
}

// DedupLookback returns the dedup comparison window as a duration.
func (p *Pipe) DedupLookback() time.Duration {
	return time.Duration(p.Dedup.LookbackDays) * 24 * time.Hour
}

// ValidationError carries every issue found in one load attempt.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: %s", strings.Join(e.Issues, "; "))
}
