package capture

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/intentd/internal/config"
)

func TestFilterAllow(t *testing.T) {
	cfg := config.FilterConfig{
		AllowedApps:    []string{"Slack", "Mail"},
		BlockedWindows: []string{"incognito", "Password"},
		MinTextLength:  10,
	}
	f := NewFilter(cfg)

	tests := []struct {
		name   string
		sample Sample
		want   bool
	}{
		{
			name:   "allowed app passes",
			sample: Sample{Text: "don't forget to call landlord", AppName: "Slack", WindowName: "general"},
			want:   true,
		},
		{
			name:   "app match is case-insensitive",
			sample: Sample{Text: "don't forget to call landlord", AppName: "sLaCk", WindowName: "general"},
			want:   true,
		},
		{
			name:   "unlisted app blocked",
			sample: Sample{Text: "don't forget to call landlord", AppName: "Chrome", WindowName: "news"},
			want:   false,
		},
		{
			name:   "unknown app always allowed",
			sample: Sample{Text: "don't forget to call landlord", AppName: "", WindowName: "general"},
			want:   true,
		},
		{
			name:   "blocked window substring, case-insensitive",
			sample: Sample{Text: "don't forget to call landlord", AppName: "Slack", WindowName: "My PASSWORD manager"},
			want:   false,
		},
		{
			name:   "short text blocked",
			sample: Sample{Text: "hi there", AppName: "Slack", WindowName: "general"},
			want:   false,
		},
		{
			name:   "whitespace does not count toward min length",
			sample: Sample{Text: "   hi    ", AppName: "Slack", WindowName: "general"},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Allow(tt.sample))
		})
	}
}

func TestFilterEmptyAllowedAppsAllowsAll(t *testing.T) {
	f := NewFilter(config.FilterConfig{MinTextLength: 5})
	assert.True(t, f.Allow(Sample{Text: "anything goes here", AppName: "RandomApp"}))
}

func TestFilterApplyKeepsOrder(t *testing.T) {
	f := NewFilter(config.FilterConfig{MinTextLength: 5, AllowedApps: []string{"slack"}})
	in := []Sample{
		{Text: "first long enough", AppName: "Slack"},
		{Text: "blocked", AppName: "Chrome"},
		{Text: "second long enough", AppName: "Slack"},
	}
	out := f.Apply(in)
	require.Len(t, out, 2)
	assert.Equal(t, "first long enough", out[0].Text)
	assert.Equal(t, "second long enough", out[1].Text)
}

func TestAuditLogAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	log := NewAuditLog(path)

	q := Query{ContentType: "ocr", Limit: 10}
	require.NoError(t, log.Record(q, []Sample{{Text: "hello", AppName: "Mail"}}, nil))
	require.NoError(t, log.Record(q, nil, errors.New("source unreachable")))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"sample_count":1`)
	assert.Contains(t, lines[1], "source unreachable")
	assert.True(t, strings.HasPrefix(lines[0], "{"))
}

func TestAuditLogCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "audit", "capture-audit.jsonl")
	log := NewAuditLog(path)

	require.NoError(t, log.Record(Query{ContentType: "ocr"}, nil, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sample_count":0`)
}
