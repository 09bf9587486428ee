package reconcile

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/snipdex/internal/search"
	"github.com/mvp-joe/snipdex/internal/snippet"
	"github.com/mvp-joe/snipdex/internal/storage"
)

// Test Plan for Process:
// - A store of N snippets and an empty index converge to N documents with matching revisions
// - A second run over an unchanged store writes nothing and ends at 100%
// - Index documents with no snippet file are removed
// - A newer snippet revision replaces an older indexed one
// - A snippet deleted while the scan is underway never reappears in the index
// - An unreadable snippet file is counted and skipped; the run still completes
// - A store that cannot be listed fails the run
// - A cancelled context fails the run
// - Progress never decreases and stays within [0, 100]
// - A terminal run does not change on further Execute calls
// - IsSkipped needs a completed marker, equal counts, and no newer file
// - A completed run that failed to index an item never lets a later run skip

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type env struct {
	fs      afero.Fs
	store   *storage.DocumentStore
	index   *search.Index
	history *storage.RunHistory
}

func newEnv(t *testing.T) *env {
	t.Helper()
	fsys := afero.NewMemMapFs()
	store, err := storage.NewDocumentStore(fsys, "/data/snippets")
	require.NoError(t, err)
	idx, err := search.OpenMem(search.Options{BatchSize: 7})
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	hist, err := storage.OpenRunHistory(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { hist.Close() })
	return &env{fs: fsys, store: store, index: idx, history: hist}
}

func (e *env) seed(t *testing.T, n int) []*snippet.Snippet {
	t.Helper()
	out := make([]*snippet.Snippet, 0, n)
	for i := 0; i < n; i++ {
		sn := &snippet.Snippet{
			ID:       fmt.Sprintf("sn-%03d", i),
			Title:    fmt.Sprintf("snippet %d", i),
			Code:     "fmt.Println()",
			Language: "Go",
			Created:  t0.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, e.store.Create(sn))
		out = append(out, sn)
	}
	return out
}

func (e *env) process(progress ProgressReporter) *Process {
	return NewProcess("run", e.store, e.index, e.history, progress)
}

func TestProcess_Converges(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	seeded := e.seed(t, 25)

	p := e.process(nil)
	p.Execute(context.Background())

	snap := p.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 100, snap.Percent)
	assert.Equal(t, 25, snap.Indexed)
	assert.False(t, snap.StartTime.IsZero())
	assert.False(t, snap.EndTime.Before(snap.StartTime))

	n, err := e.index.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(25), n)

	revs, err := e.index.Revisions(context.Background())
	require.NoError(t, err)
	for _, sn := range seeded {
		assert.True(t, revs[sn.ID].Equal(sn.Revision()), sn.ID)
	}
}

func TestProcess_Idempotent(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.seed(t, 10)

	first := e.process(nil)
	first.Execute(context.Background())
	before, err := e.index.Revisions(context.Background())
	require.NoError(t, err)

	second := e.process(nil)
	second.Execute(context.Background())
	after, err := e.index.Revisions(context.Background())
	require.NoError(t, err)

	snap := second.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 100, snap.Percent)
	assert.Zero(t, snap.Indexed)
	assert.Zero(t, snap.Removed)
	assert.Equal(t, before, after)
}

func TestProcess_RemovesOrphans(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.seed(t, 2)
	ctx := context.Background()

	require.NoError(t, e.index.Put(ctx, &snippet.Snippet{ID: "ghost", Title: "ghost", Created: t0}))

	p := e.process(nil)
	p.Execute(ctx)

	snap := p.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 1, snap.Removed)
	assert.Equal(t, 2, snap.Indexed)

	_, found, err := e.index.Revision(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestProcess_UpdatesStaleDocuments(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	seeded := e.seed(t, 1)

	require.NoError(t, e.index.Put(ctx, seeded[0]))

	edited := seeded[0].Clone()
	edited.Title = "edited"
	modified := t0.Add(time.Hour)
	edited.Modified = &modified
	require.NoError(t, e.store.Update(edited))

	p := e.process(nil)
	p.Execute(ctx)
	assert.Equal(t, 1, p.Snapshot().Indexed)

	rev, found, err := e.index.Revision(ctx, edited.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, rev.Equal(modified))
}

// racingStore reads every snippet up front, then deletes one through the
// CRUD path just before yielding its stale copy.
type racingStore struct {
	*storage.DocumentStore
	index  *search.Index
	victim string
}

func (s *racingStore) All() iter.Seq2[*snippet.Snippet, error] {
	return func(yield func(*snippet.Snippet, error) bool) {
		var read []*snippet.Snippet
		for sn, err := range s.DocumentStore.All() {
			if err != nil {
				yield(nil, err)
				return
			}
			read = append(read, sn)
		}
		for _, sn := range read {
			if sn.ID == s.victim {
				if err := s.DocumentStore.Delete(sn.ID); err != nil {
					yield(nil, err)
					return
				}
				if err := s.index.Remove(context.Background(), sn.ID); err != nil {
					yield(nil, err)
					return
				}
			}
			if !yield(sn, nil) {
				return
			}
		}
	}
}

func TestProcess_DeleteDuringScanWins(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	seeded := e.seed(t, 5)
	victim := seeded[3].ID

	store := &racingStore{DocumentStore: e.store, index: e.index, victim: victim}
	p := NewProcess("race", store, e.index, nil, nil)
	p.Execute(context.Background())

	assert.Equal(t, StatusCompleted, p.Snapshot().Status)

	_, found, err := e.index.Revision(context.Background(), victim)
	require.NoError(t, err)
	assert.False(t, found, "deleted snippet must not be re-indexed")

	n, err := e.index.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), n)
}

func TestProcess_IsolatesItemFailures(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.seed(t, 3)
	require.NoError(t, afero.WriteFile(e.fs, "/data/snippets/broken.yaml", []byte("- not\n- a snippet\n"), 0o644))

	p := e.process(nil)
	p.Execute(context.Background())

	snap := p.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 1, snap.FailedItems)
	assert.Equal(t, 3, snap.Indexed)
	assert.Equal(t, 100, snap.Percent)
}

type brokenStore struct {
	*storage.DocumentStore
}

func (brokenStore) IDs() ([]string, error) {
	return nil, errors.New("disk on fire")
}

func TestProcess_FailsWhenStoreCannotBeListed(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	p := NewProcess("broken", brokenStore{e.store}, e.index, nil, nil)
	p.Execute(context.Background())

	snap := p.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Contains(t, snap.Error, "disk on fire")
	assert.False(t, snap.EndTime.IsZero())
}

func TestProcess_FailsWhenCancelled(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.seed(t, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := e.process(nil)
	p.Execute(ctx)
	assert.Equal(t, StatusFailed, p.Snapshot().Status)
}

type recordingReporter struct {
	mu       sync.Mutex
	proc     *Process
	total    int
	percents []int
	final    *Snapshot
}

func (r *recordingReporter) OnStart(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total = total
}

func (r *recordingReporter) OnItem(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.percents = append(r.percents, r.proc.Snapshot().Percent)
}

func (r *recordingReporter) OnComplete(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.final = &snap
}

func TestProcess_ProgressIsMonotonic(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.seed(t, 13)
	require.NoError(t, e.index.Put(context.Background(), &snippet.Snippet{ID: "orphan", Created: t0}))

	rec := &recordingReporter{}
	p := e.process(rec)
	rec.proc = p
	p.Execute(context.Background())

	assert.Equal(t, 14, rec.total)
	require.Len(t, rec.percents, 14)
	prev := 0
	for _, pct := range rec.percents {
		assert.GreaterOrEqual(t, pct, prev)
		assert.LessOrEqual(t, pct, 100)
		prev = pct
	}
	require.NotNil(t, rec.final)
	assert.Equal(t, StatusCompleted, rec.final.Status)
}

func TestProcess_TerminalIsFinal(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.seed(t, 2)

	p := e.process(nil)
	p.Execute(context.Background())
	done := p.Snapshot()

	require.NoError(t, e.store.Delete("sn-000"))
	p.Execute(context.Background())
	assert.Equal(t, done, p.Snapshot())
}

func TestProcess_IsSkipped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	e.seed(t, 2)

	skip, err := e.process(nil).IsSkipped(ctx)
	require.NoError(t, err)
	assert.False(t, skip, "no completed run on record")

	first := e.process(nil)
	first.Execute(ctx)

	future := time.Now().Add(time.Hour)
	require.NoError(t, e.history.Save(storage.RunRecord{ID: "marker", Status: string(StatusCompleted), Percent: 100, StartTime: future, EndTime: future}))

	skip, err = e.process(nil).IsSkipped(ctx)
	require.NoError(t, err)
	assert.True(t, skip)

	require.NoError(t, e.index.Remove(ctx, "sn-000"))
	skip, err = e.process(nil).IsSkipped(ctx)
	require.NoError(t, err)
	assert.False(t, skip, "index count differs from store")

	e2 := newEnv(t)
	e2.seed(t, 1)
	e2.process(nil).Execute(ctx)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, e2.history.Save(storage.RunRecord{ID: "old", Status: string(StatusCompleted), Percent: 100, StartTime: past, EndTime: past}))

	skip, err = e2.process(nil).IsSkipped(ctx)
	require.NoError(t, err)
	assert.False(t, skip, "a snippet file changed after the last completed run")
}

// failingIndex refuses to index one snippet.
type failingIndex struct {
	*search.Index
	fail string
}

func (f *failingIndex) PutIfNewer(ctx context.Context, sn *snippet.Snippet, present search.PresenceFunc) (bool, error) {
	if sn.ID == f.fail {
		return false, errors.New("index write rejected")
	}
	return f.Index.PutIfNewer(ctx, sn, present)
}

func TestProcess_FailedItemsPreventSkip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	seeded := e.seed(t, 2)
	e.process(nil).Execute(ctx)

	edited := seeded[0].Clone()
	modified := t0.Add(time.Hour)
	edited.Modified = &modified
	require.NoError(t, e.store.Update(edited))

	partial := NewProcess("partial", e.store, &failingIndex{Index: e.index, fail: edited.ID}, e.history, nil)
	partial.Execute(ctx)
	snap := partial.Snapshot()
	require.Equal(t, StatusCompleted, snap.Status)
	require.Equal(t, 1, snap.FailedItems)
	require.NoError(t, e.history.Save(snap.record()))

	skip, err := e.process(nil).IsSkipped(ctx)
	require.NoError(t, err)
	assert.False(t, skip, "the index still holds a stale revision")

	next := e.process(nil).Run(ctx)
	assert.False(t, next.Skipped)
	assert.Equal(t, 1, next.Indexed)

	rev, found, err := e.index.Revision(ctx, edited.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, rev.Equal(modified))
}

func TestProcess_RunSkips(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	e.seed(t, 1)
	e.process(nil).Execute(ctx)

	future := time.Now().Add(time.Hour)
	require.NoError(t, e.history.Save(storage.RunRecord{ID: "marker", Status: string(StatusCompleted), Percent: 100, StartTime: future, EndTime: future}))

	snap := e.process(nil).Run(ctx)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.True(t, snap.Skipped)
	assert.Equal(t, 100, snap.Percent)
	assert.False(t, snap.StartTime.IsZero())
}
