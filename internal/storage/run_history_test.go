package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/snipdex/internal/snippet"
)

// Test Plan for RunHistory:
// - Save then Get round-trips every column
// - Get of an unknown id fails with ErrNotExists
// - LastCompleted returns nil without completed runs and ignores FAILED runs
// - LastCompleted picks the run that finished last
// - LastCompleted ignores skipped runs and runs with failed items
// - A row with an unparsable timestamp is reported, not read as zero time
// - Recent orders by end time, newest first
// - Prune keeps only the newest runs

func openTestHistory(t *testing.T) *RunHistory {
	t.Helper()
	h, err := OpenRunHistory(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestRunHistory_SaveGet(t *testing.T) {
	t.Parallel()
	h := openTestHistory(t)

	start := time.Date(2024, 3, 1, 10, 0, 0, 500, time.UTC)
	rec := RunRecord{
		ID:          "run-1",
		Status:      "COMPLETED",
		Percent:     100,
		StartTime:   start,
		EndTime:     start.Add(time.Second),
		Skipped:     true,
		Indexed:     3,
		Removed:     1,
		FailedItems: 2,
		Error:       "",
	}
	require.NoError(t, h.Save(rec))

	got, err := h.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Status, got.Status)
	assert.Equal(t, 100, got.Percent)
	assert.True(t, rec.StartTime.Equal(got.StartTime))
	assert.True(t, rec.EndTime.Equal(got.EndTime))
	assert.True(t, got.Skipped)
	assert.Equal(t, 3, got.Indexed)
	assert.Equal(t, 1, got.Removed)
	assert.Equal(t, 2, got.FailedItems)

	_, err = h.Get("run-2")
	assert.ErrorIs(t, err, snippet.ErrNotExists)
}

func TestRunHistory_LastCompleted(t *testing.T) {
	t.Parallel()
	h := openTestHistory(t)

	last, err := h.LastCompleted()
	require.NoError(t, err)
	assert.Nil(t, last)

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, h.Save(RunRecord{ID: "old", Status: "COMPLETED", StartTime: base, EndTime: base.Add(time.Second)}))
	require.NoError(t, h.Save(RunRecord{ID: "new", Status: "COMPLETED", StartTime: base, EndTime: base.Add(time.Minute)}))
	require.NoError(t, h.Save(RunRecord{ID: "failed", Status: "FAILED", StartTime: base, EndTime: base.Add(time.Hour)}))

	last, err = h.LastCompleted()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "new", last.ID)
}

func TestRunHistory_LastCompletedNeedsCleanRun(t *testing.T) {
	t.Parallel()
	h := openTestHistory(t)

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, h.Save(RunRecord{ID: "clean", Status: "COMPLETED", Percent: 100, StartTime: base, EndTime: base.Add(time.Second)}))
	require.NoError(t, h.Save(RunRecord{ID: "partial", Status: "COMPLETED", Percent: 100, FailedItems: 1, StartTime: base, EndTime: base.Add(time.Minute)}))
	require.NoError(t, h.Save(RunRecord{ID: "skipped", Status: "COMPLETED", Percent: 100, Skipped: true, StartTime: base, EndTime: base.Add(time.Hour)}))

	last, err := h.LastCompleted()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "clean", last.ID)
}

func TestRunHistory_CorruptTimestamp(t *testing.T) {
	t.Parallel()
	h := openTestHistory(t)

	_, err := h.db.Exec(`INSERT INTO sync_runs (id, status, percent, start_time, end_time) VALUES ('bad', 'COMPLETED', 100, 'yesterday', 'today')`)
	require.NoError(t, err)

	_, err = h.Get("bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid start_time")
	assert.NotErrorIs(t, err, snippet.ErrNotExists)

	_, err = h.LastCompleted()
	assert.Error(t, err)

	_, err = h.Recent(10)
	assert.Error(t, err)
}

func TestRunHistory_RecentAndPrune(t *testing.T) {
	t.Parallel()
	h := openTestHistory(t)

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		end := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, h.Save(RunRecord{ID: fmt.Sprintf("run-%d", i), Status: "COMPLETED", StartTime: base, EndTime: end}))
	}

	recent, err := h.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "run-4", recent[0].ID)
	assert.Equal(t, "run-3", recent[1].ID)

	removed, err := h.Prune(3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	_, err = h.Get("run-0")
	assert.ErrorIs(t, err, snippet.ErrNotExists)
	_, err = h.Get("run-2")
	assert.NoError(t, err)
}
