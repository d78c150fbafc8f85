// Package bridge invokes OS automation scripts for the side-effect
// surfaces: desktop notifications, the reminders list, and the notes
// folder.
//
// Every invocation writes the script to a temporary file, runs it under
// a fixed timeout with bounded output capture, and removes the file
// regardless of outcome. Reminder and note writes go through a bounded
// background dispatcher so the pipeline never waits on them.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intentd/internal/logging"
)

const (
	// Scripting calls that outlive this are hung, not slow.
	runTimeout = 10 * time.Second

	// Script output beyond this is discarded; scripts return at most an
	// object id.
	maxOutputBytes = 64 * 1024
)

// ErrTimeout indicates the script exceeded the invocation timeout.
var ErrTimeout = errors.New("script timed out")

// Result is the outcome of one script invocation.
type Result struct {
	OK  bool
	ID  string // object id returned by the script, when it returns one
	Err string // stderr or failure description, when !OK
}

// Runner executes one automation script.
type Runner interface {
	Run(ctx context.Context, script string) (Result, error)
}

// OSARunner runs scripts through the system osascript binary.
type OSARunner struct {
	log *logging.Logger
}

var _ Runner = (*OSARunner)(nil)

// NewOSARunner creates the production script runner.
func NewOSARunner(log *logging.Logger) *OSARunner {
	return &OSARunner{log: log.Named("bridge")}
}

// Run writes script to a temp file, executes it, and cleans up. The
// returned error is non-nil only for invocation failures; a script that
// ran and failed comes back as Result{OK: false}.
func (r *OSARunner) Run(ctx context.Context, script string) (Result, error) {
	f, err := os.CreateTemp("", "intentd-*.applescript")
	if err != nil {
		return Result{}, fmt.Errorf("create script file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(script); err != nil {
		f.Close()
		return Result{}, fmt.Errorf("write script file: %w", err)
	}
	if err := f.Close(); err != nil {
		return Result{}, fmt.Errorf("close script file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	var stdout, stderr boundedBuffer
	cmd := exec.CommandContext(ctx, "osascript", path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	r.log.Debug("script ran",
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("ok", runErr == nil))

	if ctx.Err() == context.DeadlineExceeded {
		return Result{Err: ErrTimeout.Error()}, ErrTimeout
	}
	if runErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = runErr.Error()
		}
		return Result{Err: msg}, nil
	}
	return Result{OK: true, ID: strings.TrimSpace(stdout.String())}, nil
}

// boundedBuffer keeps the first maxOutputBytes and drops the rest.
type boundedBuffer struct {
	b strings.Builder
}

func (w *boundedBuffer) Write(p []byte) (int, error) {
	if room := maxOutputBytes - w.b.Len(); room > 0 {
		if len(p) > room {
			w.b.Write(p[:room])
		} else {
			w.b.Write(p)
		}
	}
	return len(p), nil
}

func (w *boundedBuffer) String() string {
	return w.b.String()
}
