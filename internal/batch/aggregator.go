package batch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intentd/internal/logging"
)

// Aggregator races "next upstream event" against "window-expiry timer".
// Whichever resolves first is handled, then the race is rearmed. No
// separate timer goroutine, and the latency between an event and its
// batch emission is bounded by one window.
type Aggregator struct {
	events chan Event
	out    chan *Batch
	window func() time.Duration // read when each window is armed, so hot reloads apply
	log    *logging.Logger
}

// NewAggregator creates an aggregator. The window func is consulted every
// time a new window is armed.
func NewAggregator(window func() time.Duration, log *logging.Logger) *Aggregator {
	return &Aggregator{
		events: make(chan Event, 64),
		out:    make(chan *Batch, 4),
		window: window,
		log:    log.Named("batch"),
	}
}

// Add submits one text-change event. Drops the event if the aggregator is
// saturated rather than blocking the capture path.
func (a *Aggregator) Add(ev Event) bool {
	select {
	case a.events <- ev:
		return true
	default:
		a.log.Warn("aggregator saturated, dropping event",
			zap.String("app", ev.App),
			zap.Int("text_len", len(ev.Text)))
		return false
	}
}

// Batches returns the output channel of yielded batches.
func (a *Aggregator) Batches() <-chan *Batch {
	return a.out
}

// Run consumes events until ctx is cancelled. It emits at most one batch
// per window, and only for windows that contained at least one event.
func (a *Aggregator) Run(ctx context.Context) {
	defer close(a.out)

	for {
		// Idle: wait for the first event of the next window.
		var current *Batch
		select {
		case <-ctx.Done():
			return
		case ev := <-a.events:
			current = newBatch(ev)
		}

		timer := time.NewTimer(a.window())
	accumulate:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case ev := <-a.events:
				current.add(ev)
			case <-timer.C:
				break accumulate
			}
		}

		select {
		case a.out <- current:
		case <-ctx.Done():
			return
		}
		a.log.Debug("batch emitted",
			zap.Int("texts", len(current.Texts)),
			zap.Int("apps", len(current.Apps)))
	}
}
