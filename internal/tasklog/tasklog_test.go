package tasklog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/intentd/internal/intent"
	"github.com/fyrsmithlabs/intentd/internal/logging"
)

func testLog(t *testing.T) (*Log, string) {
	t.Helper()
	dir := t.TempDir()
	l := New(dir, logging.NewNop())
	return l, filepath.Join(dir, fileName)
}

func setClock(l *Log, at time.Time) {
	l.now = func() time.Time { return at }
}

func TestAppendGroupsByDay(t *testing.T) {
	l, path := testLog(t)

	setClock(l, time.Date(2026, 8, 30, 9, 15, 0, 0, time.Local))
	require.NoError(t, l.Append(&intent.Result{Content: "pay rent", DueTime: "2026-08-31T12:00"}))
	setClock(l, time.Date(2026, 8, 30, 17, 40, 0, 0, time.Local))
	require.NoError(t, l.Append(&intent.Result{Content: "call landlord", Urgent: true}))
	setClock(l, time.Date(2026, 8, 31, 8, 0, 0, 0, time.Local))
	require.NoError(t, l.Append(&intent.Result{Content: "submit report"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	assert.Equal(t, 1, strings.Count(text, "## 2026-08-30"))
	assert.Equal(t, 1, strings.Count(text, "## 2026-08-31"))
	assert.Contains(t, text, "- [ ] 09:15 pay rent (due 2026-08-31T12:00)")
	assert.Contains(t, text, "- [ ] 17:40 call landlord [urgent]")
	assert.Contains(t, text, "- [ ] 08:00 submit report")
	assert.Less(t, strings.Index(text, "## 2026-08-30"), strings.Index(text, "## 2026-08-31"))
}

func TestMarkCompleteRewritesFile(t *testing.T) {
	l, path := testLog(t)

	setClock(l, time.Date(2026, 8, 31, 9, 0, 0, 0, time.Local))
	require.NoError(t, l.Append(&intent.Result{Content: "pay rent"}))
	require.NoError(t, l.Append(&intent.Result{Content: "call landlord"}))

	ok, err := l.MarkComplete("pay rent")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "- [x] 09:00 pay rent")
	assert.Contains(t, string(data), "- [ ] 09:00 call landlord")
}

func TestMarkCompleteUnknownContent(t *testing.T) {
	l, _ := testLog(t)
	setClock(l, time.Date(2026, 8, 31, 9, 0, 0, 0, time.Local))
	require.NoError(t, l.Append(&intent.Result{Content: "pay rent"}))

	ok, err := l.MarkComplete("something else")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReloadAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	l1 := New(dir, logging.NewNop())
	setClock(l1, time.Date(2026, 8, 31, 14, 30, 0, 0, time.Local))
	require.NoError(t, l1.Append(&intent.Result{
		Content: "renew passport", Urgent: true, DueTime: "2026-09-15T10:00",
	}))
	_, err := l1.MarkComplete("renew passport")
	require.NoError(t, err)

	l2 := New(dir, logging.NewNop())
	entries, err := l2.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "renew passport", e.Content)
	assert.True(t, e.Urgent)
	assert.True(t, e.Completed)
	assert.Equal(t, "2026-09-15T10:00", e.DueTime)
	assert.Equal(t, time.Date(2026, 8, 31, 14, 30, 0, 0, time.Local), e.Detected)
}

func TestEntriesOnMissingFile(t *testing.T) {
	l, _ := testLog(t)
	entries, err := l.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseLineEdgeCases(t *testing.T) {
	day := time.Date(2026, 8, 31, 0, 0, 0, 0, time.Local)

	// Content containing parentheses must not be eaten by the due
	// suffix parser unless the suffix is actually a due marker.
	e, ok := parseLine("- [ ] 10:00 buy gift (for mom)", day)
	require.True(t, ok)
	assert.Equal(t, "buy gift (for mom)", e.Content)
	assert.Empty(t, e.DueTime)

	_, ok = parseLine("random prose line", day)
	assert.False(t, ok)

	_, ok = parseLine("- [ ] 10:00 orphan line", time.Time{})
	assert.False(t, ok)
}
