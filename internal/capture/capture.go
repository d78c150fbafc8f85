// Package capture defines the screen-text capture collaborator interface
// and the sample filtering that decides which captures enter the
// pipeline. The OCR/capture source itself is external; this package only
// consumes it.
package capture

import (
	"context"
	"errors"
	"strings"

	"github.com/fyrsmithlabs/intentd/internal/config"
)

// ErrNoData indicates the capture source returned nothing this cycle.
// Treated as "no data", never fatal.
var ErrNoData = errors.New("capture source returned no samples")

// CaptureError wraps a collaborator failure: unreachable service, bad
// response, timeout. The cycle that sees one is skipped; the loop keeps
// running.
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string {
	return "capture: " + e.Err.Error()
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// Sample is one timestamped text capture tagged with its origin.
type Sample struct {
	Text        string `json:"text"`
	AppName     string `json:"app_name"`
	WindowName  string `json:"window_name"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// Query describes one capture request.
type Query struct {
	ContentType string `json:"content_type"`
	StartMs     int64  `json:"start_ms"`
	EndMs       int64  `json:"end_ms"`
	Limit       int    `json:"limit"`
}

// Source is the capture collaborator: an OCR/screen-capture service that
// answers timestamped text queries.
type Source interface {
	Query(ctx context.Context, q Query) ([]Sample, error)
}

// Filter applies FilterConfig to samples.
type Filter struct {
	cfg config.FilterConfig
}

// NewFilter creates a filter from config.
func NewFilter(cfg config.FilterConfig) *Filter {
	return &Filter{cfg: cfg}
}

// Allow reports whether a sample may enter the pipeline.
//
// Matching is case-insensitive. An empty allowed-apps list allows every
// app, and a sample with no app name is always allowed (the capture
// source could not attribute it, so it cannot be blocked by app).
func (f *Filter) Allow(s Sample) bool {
	if len(strings.TrimSpace(s.Text)) < f.cfg.MinTextLength {
		return false
	}
	if s.AppName != "" && len(f.cfg.AllowedApps) > 0 {
		app := strings.ToLower(s.AppName)
		allowed := false
		for _, a := range f.cfg.AllowedApps {
			if strings.ToLower(a) == app {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	window := strings.ToLower(s.WindowName)
	for _, blocked := range f.cfg.BlockedWindows {
		if blocked == "" {
			continue
		}
		if strings.Contains(window, strings.ToLower(blocked)) {
			return false
		}
	}
	return true
}

// Apply filters a slice of samples in input order.
func (f *Filter) Apply(samples []Sample) []Sample {
	out := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if f.Allow(s) {
			out = append(out, s)
		}
	}
	return out
}
