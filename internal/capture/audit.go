package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditLog records every capture query and its response as raw JSONL for
// offline debugging. It is write-only at runtime: nothing in the pipeline
// reads it back.
type AuditLog struct {
	mu   sync.Mutex
	path string
}

// auditRecord is one audit log line.
type auditRecord struct {
	ID        string    `json:"id"`
	At        time.Time `json:"at"`
	Query     Query     `json:"query"`
	Samples   []Sample  `json:"samples,omitempty"`
	SampleLen int       `json:"sample_count"`
	Error     string    `json:"error,omitempty"`
}

// NewAuditLog creates an audit log appending to path.
func NewAuditLog(path string) *AuditLog {
	return &AuditLog{path: path}
}

// Record appends one query/response pair. Audit failures are returned
// but callers treat them as best-effort.
func (a *AuditLog) Record(q Query, samples []Sample, queryErr error) error {
	rec := auditRecord{
		ID:        uuid.New().String(),
		At:        time.Now(),
		Query:     q,
		Samples:   samples,
		SampleLen: len(samples),
	}
	if queryErr != nil {
		rec.Error = queryErr.Error()
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling audit record: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return fmt.Errorf("creating audit log dir: %w", err)
	}
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending audit record: %w", err)
	}
	return nil
}
