package progress

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	return NewTracker(filepath.Join(t.TempDir(), "translated", ".progress.json"), zap.NewNop())
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t)
	_, err := tr.Load("job-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t)
	rec := &Record{JobKey: "job-1", Items: map[string]Item{
		"ep-1": {Status: StatusCompleted, SourceHash: "abc"},
	}}
	require.NoError(t, tr.Save(rec))

	loaded, err := tr.Load("job-1")
	require.NoError(t, err)
	require.Equal(t, "job-1", loaded.JobKey)
	require.Equal(t, StatusCompleted, loaded.Items["ep-1"].Status)
	require.Equal(t, "abc", loaded.Items["ep-1"].SourceHash)
	require.False(t, loaded.UpdatedAt.IsZero())
}

func TestSaveIsAtomic(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t)
	rec := &Record{JobKey: "job-1", Items: map[string]Item{"a": {Status: StatusPending}}}
	require.NoError(t, tr.Save(rec))

	// No temp debris left behind after a save.
	entries, err := os.ReadDir(filepath.Dir(tr.path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, ".progress.json", entries[0].Name())
}

func TestMarkTransitionsPersistImmediately(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t)
	rec := &Record{JobKey: "job-1", Items: make(map[string]Item)}

	require.NoError(t, tr.MarkCompleted(rec, "ep-1", "hash-1", "volume-001.json"))
	require.NoError(t, tr.MarkFailed(rec, "ep-2", "translation exhausted"))
	require.NoError(t, tr.MarkSkipped(rec, "ep-3", "hash-3"))

	loaded, err := tr.Load("job-1")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, loaded.Items["ep-1"].Status)
	require.Equal(t, "volume-001.json", loaded.Items["ep-1"].OutputPath)
	require.Equal(t, StatusFailed, loaded.Items["ep-2"].Status)
	require.Equal(t, "translation exhausted", loaded.Items["ep-2"].Error)
	require.Equal(t, StatusSkipped, loaded.Items["ep-3"].Status)
}

func TestResumeInitializesWhenAbsent(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t)
	rec, pending, err := tr.Resume("job-1", []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Equal(t, "job-1", rec.JobKey)
	require.Equal(t, []string{"a", "b", "c"}, pending)

	// The initialized record is persisted right away.
	_, err = tr.Load("job-1")
	require.NoError(t, err)
}

func TestResumeSkipsCompletedAndFailed(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t)
	require.NoError(t, tr.Save(&Record{JobKey: "job-1", Items: map[string]Item{
		"done":    {Status: StatusCompleted, SourceHash: "h"},
		"broken":  {Status: StatusFailed, Error: "boom"},
		"waiting": {Status: StatusPending},
	}}))

	_, pending, err := tr.Resume("job-1", []string{"done", "broken", "waiting", "new"})
	require.NoError(t, err)
	// Completed items are skipped; failed items wait for ResetFailed.
	require.Equal(t, []string{"waiting", "new"}, pending)
}

func TestResumePrunesStaleKeys(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t)
	require.NoError(t, tr.Save(&Record{JobKey: "job-1", Items: map[string]Item{
		"kept":    {Status: StatusCompleted},
		"removed": {Status: StatusCompleted},
	}}))

	rec, _, err := tr.Resume("job-1", []string{"kept"})
	require.NoError(t, err)
	require.Contains(t, rec.Items, "kept")
	require.NotContains(t, rec.Items, "removed")

	loaded, err := tr.Load("job-1")
	require.NoError(t, err)
	require.NotContains(t, loaded.Items, "removed")
}

func TestResetFailed(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t)
	require.NoError(t, tr.Save(&Record{JobKey: "job-1", Items: map[string]Item{
		"a": {Status: StatusFailed, Error: "x"},
		"b": {Status: StatusCompleted},
		"c": {Status: StatusFailed, Error: "y"},
	}}))

	n, err := tr.ResetFailed("job-1")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	loaded, err := tr.Load("job-1")
	require.NoError(t, err)
	require.Equal(t, StatusPending, loaded.Items["a"].Status)
	require.Empty(t, loaded.Items["a"].Error)
	require.Equal(t, StatusCompleted, loaded.Items["b"].Status)
}

func TestResetFailedNoFile(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t)
	n, err := tr.ResetFailed("job-1")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestShouldSkip(t *testing.T) {
	t.Parallel()

	rec := &Record{Items: map[string]Item{
		"same":    {Status: StatusCompleted, SourceHash: "h1"},
		"changed": {Status: StatusCompleted, SourceHash: "old"},
		"failed":  {Status: StatusFailed, SourceHash: "h1"},
	}}

	require.True(t, rec.ShouldSkip("same", "h1", false))
	require.False(t, rec.ShouldSkip("same", "h1", true), "overwrite forces re-processing")
	require.False(t, rec.ShouldSkip("changed", "h1", false), "hash mismatch forces re-processing")
	require.False(t, rec.ShouldSkip("failed", "h1", false))
	require.False(t, rec.ShouldSkip("unknown", "h1", false))
}

func TestDifferentJobKeyReinitializes(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t)
	require.NoError(t, tr.Save(&Record{JobKey: "job-old", Items: map[string]Item{
		"a": {Status: StatusCompleted},
	}}))

	_, err := tr.Load("job-new")
	require.ErrorIs(t, err, ErrNotFound)
}
