// Package pipeline drives a full pass over the stage chain: capture,
// filter, change detection, batching, classification, dedup, optional
// cloud review, and delivery.
//
// One pass runs at a time. The poll loop sleeps between ticks and checks
// a cooperative stop flag at iteration boundaries; in-flight inference
// and scripting calls are awaited, never aborted.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intentd/internal/batch"
	"github.com/fyrsmithlabs/intentd/internal/bridge"
	"github.com/fyrsmithlabs/intentd/internal/capture"
	"github.com/fyrsmithlabs/intentd/internal/change"
	"github.com/fyrsmithlabs/intentd/internal/config"
	"github.com/fyrsmithlabs/intentd/internal/dedup"
	"github.com/fyrsmithlabs/intentd/internal/intent"
	"github.com/fyrsmithlabs/intentd/internal/llm"
	"github.com/fyrsmithlabs/intentd/internal/logging"
	"github.com/fyrsmithlabs/intentd/internal/metrics"
	"github.com/fyrsmithlabs/intentd/internal/notify"
	"github.com/fyrsmithlabs/intentd/internal/review"
	"github.com/fyrsmithlabs/intentd/internal/tasklog"
)

// Trigger kinds for a pass.
const (
	TriggerPoll   = "poll"
	TriggerHotkey = "hotkey"
)

// Options wires the pipeline's collaborators.
type Options struct {
	Config *config.Store
	Source capture.Source
	Audit  *capture.AuditLog // optional
	Local  llm.Chat
	Cloud  llm.Chat // required only when review is enabled
	Runner bridge.Runner
	Log    *logging.Logger
}

// OnceResult reports the outcome of a one-shot pass.
type OnceResult struct {
	Triggered bool           // a batch reached the classifier
	Intent    *intent.Result // delivered intent; nil when nothing came through
}

// Status is a point-in-time snapshot for diagnostics.
type Status struct {
	Running         bool
	EffectiveConfig *config.Pipe
	LastConfigEvent *config.ChangeEvent
}

// Pipeline owns the stage chain and the poll loop.
type Pipeline struct {
	cfg        *config.Store
	source     capture.Source
	audit      *capture.AuditLog
	detector   *change.Detector
	agg        *batch.Aggregator
	classifier *intent.Classifier
	dedup      *dedup.Store
	gate       *review.Gate
	notifier   *notify.Notifier
	sinks      *bridge.Dispatcher
	tasks      *tasklog.Log
	metrics    *metrics.Metrics
	log        *logging.Logger
	now        func() time.Time

	mu       sync.Mutex
	running  bool
	inCycle  bool // re-entrancy guard for passes
	stopOnce sync.Once
	stop     chan struct{}
}

// New assembles a pipeline from its collaborators and subscribes to hot
// config reloads.
func New(opts Options) (*Pipeline, error) {
	if opts.Config == nil || opts.Source == nil || opts.Local == nil || opts.Runner == nil {
		return nil, errors.New("pipeline: config, source, local model, and runner are required")
	}
	log := opts.Log
	if log == nil {
		log = logging.NewNop()
	}

	cfg := opts.Config.Get()
	p := &Pipeline{
		cfg:        opts.Config,
		source:     opts.Source,
		audit:      opts.Audit,
		detector:   change.NewDetector(cfg.Change.Threshold),
		classifier: intent.NewClassifier(opts.Local, log),
		dedup:      dedup.NewStore(cfg.Storage.DataPath(), log),
		notifier:   notify.NewNotifier(opts.Runner, log),
		sinks:      bridge.NewDispatcher(opts.Runner, log),
		tasks:      tasklog.New(cfg.Storage.DataPath(), log),
		metrics:    metrics.New(),
		log:        log.Named("pipeline"),
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	p.agg = batch.NewAggregator(func() time.Duration {
		return p.cfg.Get().BatchWindow()
	}, log)
	if opts.Cloud != nil {
		p.gate = review.NewGate(opts.Cloud, log)
	}

	opts.Config.Watch(func(ev config.ChangeEvent) {
		if ev.Type != config.EventHotReloaded {
			return
		}
		p.detector.SetThreshold(p.cfg.Get().Change.Threshold)
		p.log.Info("applied hot config reload", zap.Strings("sections", ev.HotFields))
	})
	return p, nil
}

// Metrics exposes the pipeline's counters.
func (p *Pipeline) Metrics() *metrics.Metrics {
	return p.metrics
}

// Status reports the current loop state and effective config.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	return Status{
		Running:         running,
		EffectiveConfig: p.cfg.Get(),
		LastConfigEvent: p.cfg.LastEvent(),
	}
}

// Stop requests a cooperative shutdown. The loop observes it at the next
// iteration boundary; an in-flight pass completes first.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// Run executes the poll loop until ctx is cancelled or Stop is called.
// The batch aggregator and its consumer run for the same lifetime.
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("pipeline already running")
	}
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		p.sinks.Close()
	}()

	aggCtx, cancelAgg := context.WithCancel(ctx)
	go p.agg.Run(aggCtx)

	var consumer sync.WaitGroup
	consumer.Add(1)
	go func() {
		defer consumer.Done()
		for b := range p.agg.Batches() {
			p.processBatch(ctx, b, TriggerPoll)
		}
	}()
	// Cancel before waiting: the consumer exits when the aggregator
	// closes its output channel, which happens on cancellation.
	defer func() {
		cancelAgg()
		consumer.Wait()
	}()

	p.log.Info("poll loop started",
		zap.Duration("interval", p.cfg.Get().PollInterval()))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stop:
			p.log.Info("stop requested, exiting poll loop")
			return nil
		default:
		}

		p.pollOnce(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stop:
			p.log.Info("stop requested, exiting poll loop")
			return nil
		case <-time.After(p.cfg.Get().PollInterval()):
		}
	}
}

// TriggerOnce runs one synchronous hotkey-style pass: fetch, filter,
// batch without a window, then the full downstream chain. The result
// reports whether a batch ran and what, if anything, was delivered.
func (p *Pipeline) TriggerOnce(ctx context.Context) (OnceResult, error) {
	cfg := p.cfg.Get()
	samples, err := p.fetch(ctx, cfg)
	if err != nil {
		if errors.Is(err, capture.ErrNoData) {
			p.log.Info("nothing captured")
			return OnceResult{}, nil
		}
		return OnceResult{}, fmt.Errorf("capture: %w", err)
	}

	filtered := capture.NewFilter(cfg.Filter).Apply(samples)
	if len(filtered) == 0 {
		p.log.Info("all samples filtered out")
		return OnceResult{}, nil
	}

	texts := make([]string, 0, len(filtered))
	apps := make([]string, 0, len(filtered))
	for _, s := range filtered {
		texts = append(texts, s.Text)
		apps = append(apps, s.AppName)
	}
	b := batch.New(texts, apps, p.now(), p.now())
	delivered := p.processBatch(ctx, b, TriggerHotkey)
	return OnceResult{Triggered: true, Intent: delivered}, nil
}

// pollOnce is one poll tick: capture through aggregation. Classification
// onward happens when the batch window closes.
func (p *Pipeline) pollOnce(ctx context.Context) {
	p.mu.Lock()
	if p.inCycle {
		p.mu.Unlock()
		p.log.Warn("previous pass still active, skipping tick")
		return
	}
	p.inCycle = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.inCycle = false
		p.mu.Unlock()
	}()

	cfg := p.cfg.Get()
	samples, err := p.fetch(ctx, cfg)
	if err != nil {
		if errors.Is(err, capture.ErrNoData) {
			p.log.Debug("no captures this tick")
		} else {
			p.log.Warn("capture failed", zap.Error(err))
		}
		return
	}

	filtered := capture.NewFilter(cfg.Filter).Apply(samples)
	if len(filtered) == 0 {
		return
	}

	joined := make([]string, 0, len(filtered))
	for _, s := range filtered {
		joined = append(joined, s.Text)
	}
	res := p.detector.Check(strings.Join(joined, "\n"))
	if !res.ShouldProcess {
		p.log.Debug("below change threshold", zap.Float64("ratio", res.Ratio))
		return
	}

	p.agg.Add(batch.Event{
		Text: strings.Join(joined, "\n"),
		App:  filtered[len(filtered)-1].AppName,
		At:   p.now(),
	})
}

func (p *Pipeline) fetch(ctx context.Context, cfg *config.Pipe) ([]capture.Sample, error) {
	end := p.now()
	q := capture.Query{
		ContentType: "ocr",
		StartMs:     end.Add(-time.Duration(cfg.Capture.LookbackSeconds) * time.Second).UnixMilli(),
		EndMs:       end.UnixMilli(),
		Limit:       cfg.Capture.SampleLimit,
	}

	samples, err := p.source.Query(ctx, q)
	if p.audit != nil {
		if aerr := p.audit.Record(q, samples, err); aerr != nil {
			p.log.Warn("audit write failed", zap.Error(aerr))
		}
	}
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, capture.ErrNoData
	}
	return samples, nil
}

// processBatch runs classification through delivery for one batch. Every
// outcome is reported through the cycle log. Returns the delivered
// intent, or nil when the pass ended early.
func (p *Pipeline) processBatch(ctx context.Context, b *batch.Batch, trigger string) *intent.Result {
	cfg := p.cfg.Get()
	cycleID := uuid.NewString()
	clog := p.log.With(
		zap.String("cycle", cycleID),
		zap.String("trigger", trigger))

	p.metrics.CyclesRun.Inc()
	clog.Info("cycle start",
		zap.Int("texts", len(b.Texts)),
		zap.Strings("apps", b.AppList()))

	text := b.CombinedText(cfg.Batch.CharBudget)
	res, err := p.classifier.Classify(ctx, cfg.Classifier, text, trigger == TriggerHotkey)
	if err != nil {
		clog.Warn("cycle end: classification failed", zap.Error(err))
		return nil
	}
	if res == nil {
		clog.Info("cycle end: nothing to classify")
		return nil
	}
	if res.Empty() {
		clog.Info("cycle end: classified but empty")
		return nil
	}

	res = p.applyDedup(clog, cfg, res)
	if res.Empty() {
		clog.Info("cycle end: suppressed as duplicate")
		return nil
	}

	if cfg.Review.Enabled {
		if p.gate == nil {
			clog.Warn("review enabled but no cloud model configured, skipping gate")
		} else {
			kept, ok := p.applyReview(ctx, clog, cfg, res, b, trigger)
			if !ok {
				return nil
			}
			res = kept
		}
	}

	p.deliver(ctx, clog, cfg, res)
	clog.Info("cycle end: delivered",
		zap.Bool("actionable", res.Actionable),
		zap.Bool("noteworthy", res.Noteworthy),
		zap.Bool("urgent", res.Urgent))
	return res
}

// applyDedup checks each claimed track and downgrades duplicates. The
// returned result may differ from the input; the input is not mutated.
func (p *Pipeline) applyDedup(clog *logging.Logger, cfg *config.Pipe, res *intent.Result) *intent.Result {
	out := *res
	lookback := cfg.DedupLookback()

	if out.Actionable {
		check, err := p.dedup.Check(dedup.TrackActionable, out.Content,
			cfg.Dedup.ActionableThreshold, lookback)
		if err != nil {
			clog.Warn("dedup check failed, letting intent through", zap.Error(err))
		} else if !check.Passed {
			out.Actionable = false
			p.metrics.DedupSuppressions.WithLabelValues(string(dedup.TrackActionable)).Inc()
			clog.Info("actionable suppressed",
				zap.Float64("similarity", check.Similarity))
		}
	}
	if out.Noteworthy {
		check, err := p.dedup.Check(dedup.TrackNoteworthy, out.Content,
			cfg.Dedup.NoteworthyThreshold, lookback)
		if err != nil {
			clog.Warn("dedup check failed, letting intent through", zap.Error(err))
		} else if !check.Passed {
			out.Noteworthy = false
			p.metrics.DedupSuppressions.WithLabelValues(string(dedup.TrackNoteworthy)).Inc()
			clog.Info("noteworthy suppressed",
				zap.Float64("similarity", check.Similarity))
		}
	}

	if !out.Actionable && !out.Noteworthy {
		out.Urgent = false
		out.DueTime = ""
	}
	return &out
}

// applyReview runs the cloud gate. A gate failure falls back to the
// local result when fail-open is configured, otherwise drops the intent.
func (p *Pipeline) applyReview(ctx context.Context, clog *logging.Logger, cfg *config.Pipe, res *intent.Result, b *batch.Batch, trigger string) (*intent.Result, bool) {
	rc := review.Context{
		Trigger:  trigger,
		Excerpt:  b.CombinedText(cfg.Batch.CharBudget),
		Language: cfg.OutputLanguage,
	}
	if apps := b.AppList(); len(apps) > 0 {
		rc.SourceApp = apps[0]
	}

	out, err := p.gate.Review(ctx, res, rc)
	for _, st := range out.Stages {
		clog.Info("review stage",
			zap.Int("stage", st.Stage),
			zap.String("outcome", st.Outcome),
			zap.Int64("latency_ms", st.LatencyMs))
	}
	if err != nil {
		if cfg.Review.FailOpen {
			clog.Warn("review failed, delivering local result", zap.Error(err))
			return res, true
		}
		clog.Warn("cycle end: review failed, dropping intent", zap.Error(err))
		return nil, false
	}
	if out.Rejected {
		p.metrics.ReviewRejections.Inc()
		clog.Info("cycle end: rejected by review")
		return nil, false
	}
	return out.Result, true
}

// deliver fans the final intent out to channels and side-effect sinks.
func (p *Pipeline) deliver(ctx context.Context, clog *logging.Logger, cfg *config.Pipe, res *intent.Result) {
	nres := p.notifier.Notify(ctx, cfg.Notify, res)
	p.metrics.DeliveryErrors.Add(float64(len(nres.Errors)))
	for _, e := range nres.Errors {
		clog.Warn("delivery error", zap.String("error", e))
	}

	if res.Actionable {
		p.metrics.IntentsEmitted.WithLabelValues("actionable").Inc()
		p.sinks.AddReminder(cfg.Reminders, res)
		if err := p.tasks.Append(res); err != nil {
			clog.Warn("task log append failed", zap.Error(err))
		}
	}
	if res.Noteworthy {
		p.metrics.IntentsEmitted.WithLabelValues("noteworthy").Inc()
		p.sinks.AddNote(cfg.Notes, res, p.now())
	}
}

// Tasks exposes the task log for the completion surface.
func (p *Pipeline) Tasks() *tasklog.Log {
	return p.tasks
}

// Dedup exposes the dedup store for maintenance operations.
func (p *Pipeline) Dedup() *dedup.Store {
	return p.dedup
}
