package bridge

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intentd/internal/config"
	"github.com/fyrsmithlabs/intentd/internal/intent"
	"github.com/fyrsmithlabs/intentd/internal/logging"
)

// Dispatcher runs reminder and note scripts off the critical path. The
// queue is bounded; when it is full the job is dropped with a warning
// rather than blocking a pipeline pass.
type Dispatcher struct {
	runner Runner
	log    *logging.Logger
	jobs   chan job
	wg     sync.WaitGroup

	closeOnce sync.Once
}

type job struct {
	name   string
	script string
}

const dispatchQueueSize = 32

// NewDispatcher starts a dispatcher with one worker.
func NewDispatcher(runner Runner, log *logging.Logger) *Dispatcher {
	d := &Dispatcher{
		runner: runner,
		log:    log.Named("dispatch"),
		jobs:   make(chan job, dispatchQueueSize),
	}
	d.wg.Add(1)
	go d.worker()
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		res, err := d.runner.Run(context.Background(), j.script)
		switch {
		case err != nil:
			d.log.Warn("sink invocation failed",
				zap.String("sink", j.name), zap.Error(err))
		case !res.OK:
			d.log.Warn("sink script failed",
				zap.String("sink", j.name), zap.String("error", res.Err))
		default:
			d.log.Debug("sink updated",
				zap.String("sink", j.name), zap.String("id", res.ID))
		}
	}
}

// enqueue returns false when the queue is saturated.
func (d *Dispatcher) enqueue(name, script string) bool {
	select {
	case d.jobs <- job{name: name, script: script}:
		return true
	default:
		d.log.Warn("sink queue full, dropping", zap.String("sink", name))
		return false
	}
}

// AddReminder queues an actionable intent for the reminders list.
func (d *Dispatcher) AddReminder(cfg config.SinkConfig, res *intent.Result) bool {
	if !cfg.Enabled {
		return false
	}
	var due time.Time
	hasDue := false
	if res.DueTime != "" {
		if t, err := time.ParseInLocation("2006-01-02T15:04", res.DueTime, time.Local); err == nil {
			due, hasDue = t, true
		}
	}
	return d.enqueue("reminders", ReminderScript(cfg.Target, res.Content, due, hasDue))
}

// AddNote queues a noteworthy intent for the notes folder. The note body
// records when it was captured.
func (d *Dispatcher) AddNote(cfg config.SinkConfig, res *intent.Result, detected time.Time) bool {
	if !cfg.Enabled {
		return false
	}
	body := res.Content + "\n\nCaptured " + detected.Format("2006-01-02 15:04")
	return d.enqueue("notes", NoteScript(cfg.Target, res.Content, body))
}

// Close drains the queue and stops the worker.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.jobs) })
	d.wg.Wait()
}
