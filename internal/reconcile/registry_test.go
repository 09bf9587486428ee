package reconcile

import (
	"context"
	"iter"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/snipdex/internal/search"
	"github.com/mvp-joe/snipdex/internal/snippet"
	"github.com/mvp-joe/snipdex/internal/storage"
)

// Test Plan for Registry:
// - Start returns an id whose run completes and is persisted to history
// - Starting while a run is active returns the active run's id
// - A snippet edited after the active run scanned it is indexed by one follow-up run
// - Get of an unknown id fails with ErrNotExists
// - Runs evicted from memory are still served from history
// - Recent lists runs newest first across memory and history
// - A completed, unchanged store makes the next run skip
// - Close cancels an active run, which ends FAILED, and later Starts fail

// pausingStore yields the first snippet of its first scan, then blocks
// until released. Later scans pass straight through.
type pausingStore struct {
	*storage.DocumentStore
	armed   atomic.Bool
	paused  chan struct{}
	release chan struct{}
}

func newPausingStore(store *storage.DocumentStore) *pausingStore {
	s := &pausingStore{DocumentStore: store, paused: make(chan struct{}, 1), release: make(chan struct{})}
	s.armed.Store(true)
	return s
}

func (s *pausingStore) All() iter.Seq2[*snippet.Snippet, error] {
	return func(yield func(*snippet.Snippet, error) bool) {
		yielded := 0
		for sn, err := range s.DocumentStore.All() {
			if yielded == 1 && s.armed.CompareAndSwap(true, false) {
				s.paused <- struct{}{}
				<-s.release
			}
			if !yield(sn, err) {
				return
			}
			yielded++
		}
	}
}

// gatedIndex blocks Revisions until released or cancelled.
type gatedIndex struct {
	*search.Index
	release chan struct{}
	entered chan struct{}
}

func newGatedIndex(idx *search.Index) *gatedIndex {
	return &gatedIndex{Index: idx, release: make(chan struct{}), entered: make(chan struct{}, 16)}
}

func (g *gatedIndex) Revisions(ctx context.Context) (map[string]time.Time, error) {
	g.entered <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.Index.Revisions(ctx)
}

func newRegistry(t *testing.T, e *env, index Index, opts RegistryOptions) *Registry {
	t.Helper()
	r, err := NewRegistry(e.store, index, e.history, opts)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func waitFor(t *testing.T, r *Registry, id string) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	snap, err := r.Wait(ctx, id)
	require.NoError(t, err)
	return snap
}

func TestRegistry_StartAndGet(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.seed(t, 4)
	r := newRegistry(t, e, e.index, DefaultRegistryOptions())

	id, err := r.Start()
	require.NoError(t, err)
	require.NotEmpty(t, id)

	snap := waitFor(t, r, id)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 4, snap.Indexed)

	got, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	rec, err := e.history.Get(id)
	require.NoError(t, err)
	assert.Equal(t, string(StatusCompleted), rec.Status)
}

func TestRegistry_CoalescesConcurrentStarts(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.seed(t, 2)
	gate := newGatedIndex(e.index)
	r := newRegistry(t, e, gate, DefaultRegistryOptions())

	first, err := r.Start()
	require.NoError(t, err)
	<-gate.entered

	second, err := r.Start()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	snap, err := r.Get(first)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, snap.Status)

	close(gate.release)
	assert.Equal(t, StatusCompleted, waitFor(t, r, first).Status)

	// The coalesced Start queued a follow-up, which third may join.
	third, err := r.Start()
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
	waitFor(t, r, third)
}

func TestRegistry_EditDuringRunIsIndexed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	seeded := e.seed(t, 3)
	store := newPausingStore(e.store)
	r, err := NewRegistry(store, e.index, e.history, DefaultRegistryOptions())
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	first, err := r.Start()
	require.NoError(t, err)
	<-store.paused

	// seeded[0] has already been scanned by the active run.
	edited := seeded[0].Clone()
	edited.Title = "edited mid-run"
	modified := t0.Add(time.Hour)
	edited.Modified = &modified
	require.NoError(t, e.store.Update(edited))

	again, err := r.Start()
	require.NoError(t, err)
	assert.Equal(t, first, again)

	close(store.release)
	assert.Equal(t, StatusCompleted, waitFor(t, r, first).Status)

	require.Eventually(t, func() bool {
		rev, found, err := e.index.Revision(ctx, edited.ID)
		return err == nil && found && rev.Equal(modified)
	}, 10*time.Second, 10*time.Millisecond)

	recent, err := r.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, first, recent[1].ID)
	followUp := waitFor(t, r, recent[0].ID)
	assert.Equal(t, StatusCompleted, followUp.Status)
	assert.False(t, followUp.Skipped)
	assert.Equal(t, 1, followUp.Indexed)
}

func TestRegistry_UnknownID(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	r := newRegistry(t, e, e.index, DefaultRegistryOptions())

	_, err := r.Get("nope")
	assert.ErrorIs(t, err, snippet.ErrNotExists)

	_, err = r.Wait(context.Background(), "nope")
	assert.ErrorIs(t, err, snippet.ErrNotExists)
}

func TestRegistry_RetentionFallsBackToHistory(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.seed(t, 1)
	r := newRegistry(t, e, e.index, RegistryOptions{Retain: 2, HistoryKeep: 10})

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := r.Start()
		require.NoError(t, err)
		waitFor(t, r, id)
		ids = append(ids, id)
	}

	r.mu.Lock()
	_, inMemory := r.runs.Peek(ids[0])
	r.mu.Unlock()
	assert.False(t, inMemory)

	snap, err := r.Get(ids[0])
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, snap.Status)

	recent, err := r.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{recent[0].ID, recent[1].ID, recent[2].ID})

	recent, err = r.Recent(1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, ids[2], recent[0].ID)
}

func TestRegistry_SecondRunSkips(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.seed(t, 3)
	r := newRegistry(t, e, e.index, DefaultRegistryOptions())

	id, err := r.Start()
	require.NoError(t, err)
	first := waitFor(t, r, id)
	assert.False(t, first.Skipped)

	id, err = r.Start()
	require.NoError(t, err)
	second := waitFor(t, r, id)
	assert.Equal(t, StatusCompleted, second.Status)
	assert.True(t, second.Skipped)
}

func TestRegistry_CloseFailsActiveRun(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.seed(t, 1)
	gate := newGatedIndex(e.index)
	r, err := NewRegistry(e.store, gate, e.history, DefaultRegistryOptions())
	require.NoError(t, err)

	id, err := r.Start()
	require.NoError(t, err)
	<-gate.entered

	require.NoError(t, r.Close())

	snap, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.NotEmpty(t, snap.Error)

	_, err = r.Start()
	assert.ErrorIs(t, err, ErrRegistryClosed)
}
