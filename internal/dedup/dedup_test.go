package dedup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/intentd/internal/logging"
)

func TestSimilarityIdentity(t *testing.T) {
	for _, s := range []string{"", "a", "call the landlord", "记得明天交报告", "x y  z"} {
		assert.InDelta(t, 1.0, Similarity(s, s), 1e-9, "similarity(%q, %q)", s, s)
	}
}

func TestSimilarityEmptySides(t *testing.T) {
	assert.Equal(t, 0.0, Similarity("", "something"))
	assert.Equal(t, 0.0, Similarity("something", ""))
}

func TestSimilarityLengthFastReject(t *testing.T) {
	short := "abc"
	long := strings.Repeat("abc", 10)
	// Length difference > 50% of the longer: defined as 0 regardless of
	// content overlap.
	assert.Equal(t, 0.0, Similarity(short, long))
}

func TestSimilarityNormalization(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("Call  The LANDLORD", "call the landlord"), 1e-9)
}

func TestSimilarityChineseNearDuplicate(t *testing.T) {
	sim := Similarity("记得明天交报告", "记得明天提交报告")
	assert.Greater(t, sim, 0.6)
	assert.Less(t, sim, 1.0)
}

func TestSimilarityDisjoint(t *testing.T) {
	assert.Equal(t, 0.0, Similarity("abcdef", "ghijkl"))
}

func newStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir(), logging.NewNop())
}

func TestCheckAndInsertIsAtomic(t *testing.T) {
	s := newStore(t)

	res, err := s.Check(TrackActionable, "submit the expense report", 0.6, 7*24*time.Hour)
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, "new", res.Reason)
	assert.Equal(t, 1, res.CacheSize)

	// The same content immediately again: the first check already
	// consumed the slot.
	res, err = s.Check(TrackActionable, "submit the expense report", 0.6, 7*24*time.Hour)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, "duplicate", res.Reason)
	assert.InDelta(t, 1.0, res.Similarity, 1e-9)
}

func TestTracksAreIndependent(t *testing.T) {
	s := newStore(t)

	res, err := s.Check(TrackActionable, "the team decided to use postgres", 0.6, 7*24*time.Hour)
	require.NoError(t, err)
	assert.True(t, res.Passed)

	// Same content on the other track is still new.
	res, err = s.Check(TrackNoteworthy, "the team decided to use postgres", 0.8, 7*24*time.Hour)
	require.NoError(t, err)
	assert.True(t, res.Passed)
}

func TestNearDuplicateSuppressedOnActionableTrack(t *testing.T) {
	s := newStore(t)

	res, err := s.Check(TrackActionable, "记得明天交报告", 0.6, 7*24*time.Hour)
	require.NoError(t, err)
	require.True(t, res.Passed)

	res, err = s.Check(TrackActionable, "记得明天提交报告", 0.6, 7*24*time.Hour)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.GreaterOrEqual(t, res.Similarity, 0.6)
	assert.Equal(t, 0.6, res.Threshold)
}

func TestLookbackWindowIgnoresOldEntries(t *testing.T) {
	s := newStore(t)
	now := time.Now()

	s.now = func() time.Time { return now.Add(-8 * 24 * time.Hour) }
	res, err := s.Check(TrackActionable, "pay the rent", 0.6, 7*24*time.Hour)
	require.NoError(t, err)
	require.True(t, res.Passed)

	// Eight days later the old entry is outside the window: the same
	// content passes again, but the old entry is retained on disk.
	s.now = func() time.Time { return now }
	res, err = s.Check(TrackActionable, "pay the rent", 0.6, 7*24*time.Hour)
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, 2, res.CacheSize)
}

func TestPersistenceAcrossStoreInstances(t *testing.T) {
	dir := t.TempDir()

	s1 := NewStore(dir, logging.NewNop())
	_, err := s1.Check(TrackActionable, "book the flight to berlin", 0.6, 7*24*time.Hour)
	require.NoError(t, err)

	// A fresh store (new process) lazily loads the log and still
	// suppresses the duplicate.
	s2 := NewStore(dir, logging.NewNop())
	res, err := s2.Check(TrackActionable, "book the flight to berlin", 0.6, 7*24*time.Hour)
	require.NoError(t, err)
	assert.False(t, res.Passed)
}

func TestStoreCreatesDataDir(t *testing.T) {
	// The data directory may not exist on first run; the store creates it
	// so the entry reaches disk and survives into the next process.
	dir := filepath.Join(t.TempDir(), "data", "dedup")

	s1 := NewStore(dir, logging.NewNop())
	_, err := s1.Check(TrackActionable, "renew the passport next week", 0.6, 7*24*time.Hour)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "dedup-actionable.jsonl"))
	require.NoError(t, err)

	s2 := NewStore(dir, logging.NewNop())
	res, err := s2.Check(TrackActionable, "renew the passport next week", 0.6, 7*24*time.Hour)
	require.NoError(t, err)
	assert.False(t, res.Passed)
}

func TestAppendOnlyOneLinePerEntry(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, logging.NewNop())

	_, err := s.Check(TrackActionable, "first item to record", 0.6, 7*24*time.Hour)
	require.NoError(t, err)
	_, err = s.Check(TrackActionable, "second, very different note", 0.6, 7*24*time.Hour)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "dedup-actionable.jsonl"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 2)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "{"))
	}
}

func TestPruneNowDropsOnlyExpired(t *testing.T) {
	s := newStore(t)
	now := time.Now()

	s.now = func() time.Time { return now.Add(-10 * 24 * time.Hour) }
	_, err := s.Check(TrackNoteworthy, "ancient decision about hosting", 0.8, 7*24*time.Hour)
	require.NoError(t, err)

	s.now = func() time.Time { return now }
	_, err = s.Check(TrackNoteworthy, "fresh decision about billing", 0.8, 7*24*time.Hour)
	require.NoError(t, err)

	removed, err := s.PruneNow(TrackNoteworthy, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, s.CacheSize(TrackNoteworthy))
}

func TestSkipsTornLogLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dedup-actionable.jsonl")
	content := `{"content":"intact entry about taxes","detected_at":"` +
		time.Now().Format(time.RFC3339) + `"}` + "\n" + `{"content":"torn`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s := NewStore(dir, logging.NewNop())
	res, err := s.Check(TrackActionable, "intact entry about taxes", 0.6, 7*24*time.Hour)
	require.NoError(t, err)
	assert.False(t, res.Passed)
}
