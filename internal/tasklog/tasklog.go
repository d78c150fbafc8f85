// Package tasklog keeps the human-readable record of detected
// actionable items, grouped by calendar day.
//
// New items append a line; marking an item complete rewrites the whole
// file atomically. The file is meant to be opened in an editor, so the
// format is plain markdown that also parses back losslessly.
package tasklog

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intentd/internal/intent"
	"github.com/fyrsmithlabs/intentd/internal/logging"
)

const fileName = "tasks.md"

// Entry is one recorded actionable item.
type Entry struct {
	Content   string
	Urgent    bool
	DueTime   string // ISO-8601 minute precision, or empty
	Detected  time.Time
	Completed bool
}

// Log is the day-grouped task file.
type Log struct {
	mu      sync.Mutex
	path    string
	entries []Entry
	loaded  bool
	now     func() time.Time
	log     *logging.Logger
}

// New creates a task log stored under dataDir. The file is read lazily
// on first use.
func New(dataDir string, log *logging.Logger) *Log {
	return &Log{
		path: filepath.Join(dataDir, fileName),
		now:  time.Now,
		log:  log.Named("tasklog"),
	}
}

// Append records a new actionable intent with the current time.
func (l *Log) Append(res *intent.Result) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.loadLocked(); err != nil {
		return err
	}

	e := Entry{
		Content:  res.Content,
		Urgent:   res.Urgent,
		DueTime:  res.DueTime,
		Detected: l.now(),
	}

	// Same-day entries extend the existing day block; a new day gets a
	// fresh header. Either way this is a file append, not a rewrite.
	var chunk strings.Builder
	if !l.sameDayAsLastLocked(e.Detected) {
		if len(l.entries) > 0 {
			chunk.WriteString("\n")
		}
		chunk.WriteString("## " + e.Detected.Format("2006-01-02") + "\n\n")
	}
	chunk.WriteString(renderLine(e) + "\n")

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create task log dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open task log: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(chunk.String()); err != nil {
		return fmt.Errorf("append task log: %w", err)
	}

	l.entries = append(l.entries, e)
	l.log.Debug("task recorded", zap.String("content", e.Content))
	return nil
}

// MarkComplete marks the first incomplete entry with exactly this
// content as done and rewrites the file. Returns false when no such
// entry exists.
func (l *Log) MarkComplete(content string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.loadLocked(); err != nil {
		return false, err
	}

	found := false
	for i := range l.entries {
		if !l.entries[i].Completed && l.entries[i].Content == content {
			l.entries[i].Completed = true
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}

	if err := l.rewriteLocked(); err != nil {
		return false, err
	}
	l.log.Info("task completed", zap.String("content", content))
	return true, nil
}

// Entries returns a copy of all recorded entries, oldest first.
func (l *Log) Entries() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.loadLocked(); err != nil {
		return nil, err
	}
	return append([]Entry(nil), l.entries...), nil
}

func (l *Log) sameDayAsLastLocked(t time.Time) bool {
	if len(l.entries) == 0 {
		return false
	}
	last := l.entries[len(l.entries)-1].Detected
	return last.Format("2006-01-02") == t.Format("2006-01-02")
}

func (l *Log) rewriteLocked() error {
	var b bytes.Buffer
	lastDay := ""
	for _, e := range l.entries {
		day := e.Detected.Format("2006-01-02")
		if day != lastDay {
			if lastDay != "" {
				b.WriteString("\n")
			}
			b.WriteString("## " + day + "\n\n")
			lastDay = day
		}
		b.WriteString(renderLine(e) + "\n")
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create task log dir: %w", err)
	}
	if err := atomic.WriteFile(l.path, &b); err != nil {
		return fmt.Errorf("rewrite task log: %w", err)
	}
	return nil
}

func (l *Log) loadLocked() error {
	if l.loaded {
		return nil
	}

	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		l.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("open task log: %w", err)
	}
	defer f.Close()

	day := time.Time{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if d, ok := parseDayHeader(line); ok {
			day = d
			continue
		}
		if e, ok := parseLine(line, day); ok {
			l.entries = append(l.entries, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read task log: %w", err)
	}
	l.loaded = true
	return nil
}

var (
	reDayHeader = regexp.MustCompile(`^## (\d{4}-\d{2}-\d{2})$`)
	reTaskLine  = regexp.MustCompile(`^- \[([ x])\] (\d{2}:\d{2}) (.*)$`)
)

func parseDayHeader(line string) (time.Time, bool) {
	m := reDayHeader.FindStringSubmatch(line)
	if m == nil {
		return time.Time{}, false
	}
	d, err := time.ParseInLocation("2006-01-02", m[1], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// renderLine writes one entry as a checklist line. Due time and urgency
// trail the content so parseLine can peel them back off.
func renderLine(e Entry) string {
	box := " "
	if e.Completed {
		box = "x"
	}
	line := fmt.Sprintf("- [%s] %s %s", box, e.Detected.Format("15:04"), e.Content)
	if e.DueTime != "" {
		line += " (due " + e.DueTime + ")"
	}
	if e.Urgent {
		line += " [urgent]"
	}
	return line
}

func parseLine(line string, day time.Time) (Entry, bool) {
	m := reTaskLine.FindStringSubmatch(line)
	if m == nil || day.IsZero() {
		return Entry{}, false
	}

	e := Entry{Completed: m[1] == "x"}
	clock, err := time.Parse("15:04", m[2])
	if err != nil {
		return Entry{}, false
	}
	e.Detected = time.Date(day.Year(), day.Month(), day.Day(),
		clock.Hour(), clock.Minute(), 0, 0, time.Local)

	rest := m[3]
	if strings.HasSuffix(rest, " [urgent]") {
		e.Urgent = true
		rest = strings.TrimSuffix(rest, " [urgent]")
	}
	if i := strings.LastIndex(rest, " (due "); i >= 0 && strings.HasSuffix(rest, ")") {
		e.DueTime = rest[i+len(" (due ") : len(rest)-1]
		rest = rest[:i]
	}
	e.Content = rest
	return e, true
}
