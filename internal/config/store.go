package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	koanfjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intentd/internal/logging"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// Editors often write a file twice in quick succession (truncate then
	// write, or write then chmod). Reloads are debounced by this much.
	watchDebounce = 200 * time.Millisecond

	envPrefix = "INTENTD_"
)

// Event types emitted by the store.
const (
	EventHotReloaded     = "hot-reloaded"
	EventRestartRequired = "restart-required"
	EventValidationError = "validation-error"
)

// ChangeEvent describes the outcome of one detected config file change.
type ChangeEvent struct {
	Type string

	// HotFields and RestartFields name the changed sections by class.
	// RestartFields are reported even when hot fields changed in the same
	// edit; the event Type is driven by the more disruptive class.
	HotFields     []string
	RestartFields []string

	// Issues is populated for validation-error events, carrying every
	// problem found rather than just the first.
	Issues []string

	At time.Time
}

// Sections whose values can be applied to the running process without a
// restart, and sections that are only read at startup. Every top-level
// Pipe section appears in exactly one set.
var (
	hotSections = []string{
		"filter", "change", "batch", "classifier", "dedup",
		"review", "notify", "reminders", "notes", "output_language",
	}
	restartSections = []string{
		"capture", "models", "storage", "logging",
	}
)

// Store owns the live configuration snapshot.
//
// Readers call Get without locking: the snapshot is replaced by atomic
// pointer swap and never mutated in place, so a reader either sees the
// whole old config or the whole new one.
type Store struct {
	path string
	log  *logging.Logger

	current   atomic.Pointer[Pipe]
	lastEvent atomic.Pointer[ChangeEvent]

	mu          sync.Mutex // serializes reloads and callback registration
	callbacks   []func(ChangeEvent)
	lastModTime time.Time

	watcher *fsnotify.Watcher
	stop    chan struct{}
	stopped sync.Once
}

// NewStore creates a store for the given config file path. The file does
// not have to exist; a missing file yields the full defaults.
func NewStore(path string, log *logging.Logger) *Store {
	return &Store{
		path: path,
		log:  log.Named("config"),
		stop: make(chan struct{}),
	}
}

// Load reads, parses, and validates the config file, replacing the live
// snapshot on success. On failure the previous snapshot (if any) stays
// live and a *ValidationError describing every issue is returned.
func (s *Store) Load() (*Pipe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (*Pipe, error) {
	cfg, err := s.parse()
	if err != nil {
		return nil, err
	}
	s.current.Store(cfg)
	if info, statErr := os.Stat(s.path); statErr == nil {
		s.lastModTime = info.ModTime()
	}
	return cfg, nil
}

// parse builds a fully-defaulted Pipe from the file plus environment
// overrides. Malformed JSON, schema violations, and invalid values all
// come back as the same *ValidationError shape.
func (s *Store) parse() (*Pipe, error) {
	k := koanf.New(".")

	if info, err := os.Stat(s.path); err == nil {
		if info.Size() > maxConfigFileSize {
			return nil, &ValidationError{Issues: []string{
				fmt.Sprintf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize),
			}}
		}
		f, err := os.Open(s.path)
		if err != nil {
			return nil, &ValidationError{Issues: []string{fmt.Sprintf("open config file: %v", err)}}
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, &ValidationError{Issues: []string{fmt.Sprintf("read config file: %v", err)}}
		}
		if err := k.Load(rawbytes.Provider(content), koanfjson.Parser()); err != nil {
			return nil, &ValidationError{Issues: []string{fmt.Sprintf("parse config file: %v", err)}}
		}
	}

	// Environment overrides. Double underscore separates nesting levels:
	// INTENTD_MODELS__CLOUD__API_KEY -> models.cloud.api_key
	if err := k.Load(env.Provider(envPrefix, ".", func(key string) string {
		key = strings.TrimPrefix(key, envPrefix)
		return strings.ReplaceAll(strings.ToLower(key), "__", ".")
	}), nil); err != nil {
		return nil, &ValidationError{Issues: []string{fmt.Sprintf("load environment overrides: %v", err)}}
	}

	// Unmarshal over a fully-defaulted value: keys absent from the file
	// keep their defaults, so an empty object parses to NewDefault.
	cfg := NewDefault()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, &ValidationError{Issues: []string{fmt.Sprintf("unmarshal config: %v", err)}}
	}

	if issues := cfg.Validate(); len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	return cfg, nil
}

// Get returns the last valid snapshot. Safe from any goroutine.
func (s *Store) Get() *Pipe {
	return s.current.Load()
}

// LastEvent returns the most recent change event, or nil.
func (s *Store) LastEvent() *ChangeEvent {
	return s.lastEvent.Load()
}

// Watch registers a callback invoked for every change event. Callbacks
// run on the watcher goroutine and should return quickly.
func (s *Store) Watch(onChange func(ChangeEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, onChange)
}

// Start begins watching the config file for modification-time advances.
// Load must have been called first.
func (s *Store) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	// Watch the directory: editors replace files by rename, which drops
	// a watch placed on the file itself.
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching config directory %s: %w", dir, err)
	}
	s.watcher = watcher
	go s.watchLoop()
	return nil
}

// Stop shuts the watcher down.
func (s *Store) Stop() {
	s.stopped.Do(func() {
		close(s.stop)
		if s.watcher != nil {
			_ = s.watcher.Close()
		}
	})
}

func (s *Store) watchLoop() {
	var debounce *time.Timer
	var debounceC <-chan time.Time

	for {
		select {
		case <-s.stop:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(watchDebounce)
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(watchDebounce)
			}
			debounceC = debounce.C
		case <-debounceC:
			debounceC = nil
			s.reload()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("config watcher error", zap.Error(err))
		}
	}
}

// reload re-parses the file after a detected change and emits exactly one
// event describing the outcome.
func (s *Store) reload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		// File removed mid-edit; wait for the editor to finish.
		return
	}
	if !info.ModTime().After(s.lastModTime) {
		return
	}

	prev := s.current.Load()
	cfg, err := s.parse()
	if err != nil {
		var verr *ValidationError
		issues := []string{err.Error()}
		if errors.As(err, &verr) {
			issues = verr.Issues
		}
		s.emitLocked(ChangeEvent{
			Type:   EventValidationError,
			Issues: issues,
			At:     time.Now(),
		})
		s.log.Warn("config change rejected, keeping previous config",
			zap.Strings("issues", issues))
		// Record the modtime so a second save of the same bad content
		// does not re-fire.
		s.lastModTime = info.ModTime()
		return
	}

	hot, restart := diffSections(prev, cfg)
	if len(hot) == 0 && len(restart) == 0 {
		s.lastModTime = info.ModTime()
		return
	}

	// Atomic replacement: every hot-reload-applicable field takes effect
	// together when readers next call Get.
	s.current.Store(cfg)
	s.lastModTime = info.ModTime()

	evType := EventHotReloaded
	if len(restart) > 0 {
		evType = EventRestartRequired
	}
	s.emitLocked(ChangeEvent{
		Type:          evType,
		HotFields:     hot,
		RestartFields: restart,
		At:            time.Now(),
	})
	s.log.Info("config reloaded",
		zap.String("event", evType),
		zap.Strings("hot", hot),
		zap.Strings("restart_required", restart))
}

func (s *Store) emitLocked(ev ChangeEvent) {
	s.lastEvent.Store(&ev)
	for _, cb := range s.callbacks {
		cb(ev)
	}
}

// diffSections compares two snapshots section by section over their
// canonical JSON encoding and partitions the changed sections into
// hot-reload-applicable and restart-required.
func diffSections(prev, next *Pipe) (hot, restart []string) {
	if prev == nil {
		return nil, nil
	}
	prevJSON := sectionJSON(prev)
	nextJSON := sectionJSON(next)
	for _, name := range hotSections {
		if prevJSON[name] != nextJSON[name] {
			hot = append(hot, name)
		}
	}
	for _, name := range restartSections {
		if prevJSON[name] != nextJSON[name] {
			restart = append(restart, name)
		}
	}
	return hot, restart
}

func sectionJSON(p *Pipe) map[string]string {
	out := make(map[string]string, len(hotSections)+len(restartSections))
	put := func(name string, v any) {
		b, err := json.Marshal(v)
		if err != nil {
			out[name] = fmt.Sprintf("!%v", err)
			return
		}
		out[name] = string(b)
	}
	put("capture", p.Capture)
	put("filter", p.Filter)
	put("change", p.Change)
	put("batch", p.Batch)
	put("classifier", p.Classifier)
	put("dedup", p.Dedup)
	put("review", p.Review)
	put("notify", p.Notify)
	put("reminders", p.Reminders)
	put("notes", p.Notes)
	put("models", p.Models)
	put("storage", p.Storage)
	put("logging", p.Logging)
	put("output_language", p.OutputLanguage)
	return out
}
