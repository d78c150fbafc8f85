package dedup

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intentd/internal/logging"
)

// Track identifies one of the two independent dedup dimensions.
type Track string

// The two tracks. Actionable tolerates less textual drift before calling
// a candidate a duplicate; repeat notifications are the costlier failure.
const (
	TrackActionable Track = "actionable"
	TrackNoteworthy Track = "noteworthy"
)

// Entry is one recorded content with its detection timestamp.
type Entry struct {
	Content    string    `json:"content"`
	DetectedAt time.Time `json:"detected_at"`
}

// CheckResult reports the outcome of one check-and-insert.
type CheckResult struct {
	Passed     bool
	Reason     string // "new" or "duplicate"
	Similarity float64
	CacheSize  int
	Threshold  float64
}

// Store is the two-track persistent near-duplicate filter.
//
// Each track's log is loaded fully into memory on first use and appended
// one line per accepted entry, never rewritten (PruneNow is the only
// compaction). The in-memory cache is appended before the file write, so
// the gate decision for subsequent checks never depends on write
// completion.
type Store struct {
	mu     sync.Mutex
	dir    string
	log    *logging.Logger
	tracks map[Track]*trackState
	now    func() time.Time
}

type trackState struct {
	loaded  bool
	entries []Entry
}

// NewStore creates a dedup store persisting under dir.
func NewStore(dir string, log *logging.Logger) *Store {
	return &Store{
		dir: dir,
		log: log.Named("dedup"),
		tracks: map[Track]*trackState{
			TrackActionable: {},
			TrackNoteworthy: {},
		},
		now: time.Now,
	}
}

// Check tests content against the track's entries within the lookback
// window and, if it passes, records it. Check-and-insert is atomic from
// the caller's perspective: there is no separate record call.
func (s *Store) Check(track Track, content string, threshold float64, lookback time.Duration) (CheckResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.tracks[track]
	if !ok {
		return CheckResult{}, fmt.Errorf("unknown dedup track %q", track)
	}
	if err := s.loadLocked(track, st); err != nil {
		return CheckResult{}, err
	}

	cutoff := s.now().Add(-lookback)
	best := 0.0
	for _, e := range st.entries {
		// Older entries stay on disk but are ignored for matching.
		if e.DetectedAt.Before(cutoff) {
			continue
		}
		if sim := Similarity(content, e.Content); sim > best {
			best = sim
			if best >= 1 {
				break
			}
		}
	}

	res := CheckResult{
		Similarity: best,
		CacheSize:  len(st.entries),
		Threshold:  threshold,
	}
	if best >= threshold {
		res.Passed = false
		res.Reason = "duplicate"
		s.log.Debug("duplicate suppressed",
			zap.String("track", string(track)),
			zap.Float64("similarity", best),
			zap.Float64("threshold", threshold))
		return res, nil
	}

	entry := Entry{Content: content, DetectedAt: s.now()}
	// Cache first: the in-memory gate must reflect this entry even if
	// the file append below fails or is slow.
	st.entries = append(st.entries, entry)
	res.Passed = true
	res.Reason = "new"
	res.CacheSize = len(st.entries)

	if err := s.appendLocked(track, entry); err != nil {
		s.log.Warn("dedup log append failed, entry held in memory only",
			zap.String("track", string(track)), zap.Error(err))
	}
	return res, nil
}

// PruneNow rewrites the track's log keeping only entries within the
// lookback window. Correctness never depends on this; it only bounds
// file growth.
func (s *Store) PruneNow(track Track, lookback time.Duration) (removed int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.tracks[track]
	if !ok {
		return 0, fmt.Errorf("unknown dedup track %q", track)
	}
	if err := s.loadLocked(track, st); err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-lookback)
	kept := make([]Entry, 0, len(st.entries))
	var buf bytes.Buffer
	for _, e := range st.entries {
		if e.DetectedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
		line, merr := json.Marshal(e)
		if merr != nil {
			return 0, fmt.Errorf("marshaling dedup entry: %w", merr)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating dedup log dir: %w", err)
	}
	if err := atomic.WriteFile(s.path(track), &buf); err != nil {
		return 0, fmt.Errorf("rewriting dedup log: %w", err)
	}
	st.entries = kept
	s.log.Info("dedup log pruned",
		zap.String("track", string(track)),
		zap.Int("removed", removed),
		zap.Int("kept", len(kept)))
	return removed, nil
}

// CacheSize returns the number of loaded entries for a track.
func (s *Store) CacheSize(track Track) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tracks[track]
	if !ok || !st.loaded {
		return 0
	}
	return len(st.entries)
}

func (s *Store) path(track Track) string {
	return filepath.Join(s.dir, fmt.Sprintf("dedup-%s.jsonl", track))
}

// loadLocked lazily reads the backing log once per process lifetime.
// Unreadable lines are skipped: a torn final line after a crash must not
// poison the whole track.
func (s *Store) loadLocked(track Track, st *trackState) error {
	if st.loaded {
		return nil
	}

	f, err := os.Open(s.path(track))
	if err != nil {
		if os.IsNotExist(err) {
			st.loaded = true
			return nil
		}
		return fmt.Errorf("opening dedup log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	skipped := 0
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			skipped++
			continue
		}
		st.entries = append(st.entries, e)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading dedup log: %w", err)
	}
	if skipped > 0 {
		s.log.Warn("skipped unreadable dedup log lines",
			zap.String("track", string(track)), zap.Int("lines", skipped))
	}
	st.loaded = true
	return nil
}

// appendLocked writes one entry as a single line.
func (s *Store) appendLocked(track Track, e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling dedup entry: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating dedup log dir: %w", err)
	}
	f, err := os.OpenFile(s.path(track), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("opening dedup log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending dedup entry: %w", err)
	}
	return nil
}
