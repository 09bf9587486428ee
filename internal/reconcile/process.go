// Package reconcile brings the search index in line with the document
// store. A Process is one reconciliation run; the Registry schedules runs
// and keeps their snapshots queryable.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"github.com/mvp-joe/snipdex/internal/search"
	"github.com/mvp-joe/snipdex/internal/snippet"
	"github.com/mvp-joe/snipdex/internal/storage"
)

// Store is the document store as seen by a reconciliation run.
type Store interface {
	All() iter.Seq2[*snippet.Snippet, error]
	IDs() ([]string, error)
	Exists(id string) bool
	Count() (int, error)
	LatestChange() (time.Time, error)
}

// Index is the search index as seen by a reconciliation run. The
// conditional writes must re-check presence under the same lock the
// unconditional CRUD writes take.
type Index interface {
	Revisions(ctx context.Context) (map[string]time.Time, error)
	PutIfNewer(ctx context.Context, s *snippet.Snippet, present search.PresenceFunc) (bool, error)
	RemoveIfAbsent(ctx context.Context, id string, present search.PresenceFunc) (bool, error)
	DocCount() (uint64, error)
}

// History persists terminal snapshots. The latest completed run is the
// marker used to skip a run when nothing changed.
type History interface {
	Save(rec storage.RunRecord) error
	Get(id string) (*storage.RunRecord, error)
	LastCompleted() (*storage.RunRecord, error)
	Recent(limit int) ([]*storage.RunRecord, error)
	Prune(keep int) (int64, error)
}

// Process is a single reconciliation run. Exactly one goroutine drives
// it; any number of readers may call Snapshot concurrently.
type Process struct {
	id       string
	store    Store
	index    Index
	history  History
	progress ProgressReporter
	now      func() time.Time

	snap atomic.Pointer[Snapshot]
	done chan struct{}
}

// NewProcess creates a PENDING run. history and progress may be nil.
func NewProcess(id string, store Store, index Index, history History, progress ProgressReporter) *Process {
	if progress == nil {
		progress = NoOpProgressReporter{}
	}
	p := &Process{
		id:       id,
		store:    store,
		index:    index,
		history:  history,
		progress: progress,
		now:      func() time.Time { return time.Now().UTC() },
		done:     make(chan struct{}),
	}
	p.snap.Store(&Snapshot{ID: id, Status: StatusPending})
	return p
}

// ID returns the run id.
func (p *Process) ID() string {
	return p.id
}

// Snapshot returns the latest published state of the run.
func (p *Process) Snapshot() Snapshot {
	return *p.snap.Load()
}

// Done is closed by the Registry once the run is terminal and recorded.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// publish stores a modified copy of the current snapshot. Terminal
// snapshots are final and progress never moves backwards.
func (p *Process) publish(mutate func(s *Snapshot)) {
	cur := p.snap.Load()
	if cur.Status.Terminal() {
		return
	}
	next := *cur
	mutate(&next)
	if next.Percent < cur.Percent {
		next.Percent = cur.Percent
	}
	if next.Percent > 100 {
		next.Percent = 100
	}
	p.snap.Store(&next)
}

// Run checks whether the run can be skipped and otherwise executes it.
// It returns the terminal snapshot.
func (p *Process) Run(ctx context.Context) Snapshot {
	skip, err := p.IsSkipped(ctx)
	if err != nil {
		log.Printf("sync %s: skip check failed, running full reconciliation: %v", p.id, err)
	}
	if skip {
		p.skip()
	} else {
		p.Execute(ctx)
	}
	return p.Snapshot()
}

// IsSkipped reports whether the index is already known to match the
// store: a clean completed run is on record, the index holds as many
// documents as the store, and no snippet file changed after that run
// started. A file changed while the run was scanning may have been
// passed over, so the run's start time is the bound.
func (p *Process) IsSkipped(ctx context.Context) (bool, error) {
	if p.history == nil {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	marker, err := p.history.LastCompleted()
	if err != nil {
		return false, err
	}
	if marker == nil || marker.FailedItems > 0 || marker.Skipped {
		return false, nil
	}

	docs, err := p.index.DocCount()
	if err != nil {
		return false, err
	}
	count, err := p.store.Count()
	if err != nil {
		return false, err
	}
	if docs != uint64(count) {
		return false, nil
	}

	latest, err := p.store.LatestChange()
	if err != nil {
		return false, err
	}
	return !latest.After(marker.StartTime), nil
}

func (p *Process) skip() {
	start := p.now()
	p.publish(func(s *Snapshot) {
		s.Status = StatusInProgress
		s.StartTime = start
	})
	end := p.now()
	p.publish(func(s *Snapshot) {
		s.Status = StatusCompleted
		s.Skipped = true
		s.Percent = 100
		s.EndTime = end
	})
	log.Printf("sync %s: index up to date, skipped", p.id)
	p.progress.OnComplete(p.Snapshot())
}

// Execute reconciles the index with the store. Only a PENDING run
// executes; calling it again is a no-op.
func (p *Process) Execute(ctx context.Context) {
	if p.Snapshot().Status != StatusPending {
		return
	}

	start := p.now()
	p.publish(func(s *Snapshot) {
		s.Status = StatusInProgress
		s.StartTime = start
	})

	err := p.reconcile(ctx)

	end := p.now()
	if err != nil {
		log.Printf("sync %s: failed: %v", p.id, err)
		p.publish(func(s *Snapshot) {
			s.Status = StatusFailed
			s.EndTime = end
			s.Error = err.Error()
		})
	} else {
		p.publish(func(s *Snapshot) {
			s.Status = StatusCompleted
			s.Percent = 100
			s.EndTime = end
		})
		snap := p.Snapshot()
		log.Printf("sync %s: completed (indexed: %d, removed: %d, failed items: %d, took %v)",
			p.id, snap.Indexed, snap.Removed, snap.FailedItems, end.Sub(start))
	}
	p.progress.OnComplete(p.Snapshot())
}

// tally tracks counters for one run; only the worker goroutine touches it.
type tally struct {
	total     int
	processed int
	indexed   int
	removed   int
	failed    int
}

func (p *Process) reconcile(ctx context.Context) error {
	revisions, err := p.index.Revisions(ctx)
	if err != nil {
		return fmt.Errorf("failed to read index revisions: %w", err)
	}
	ids, err := p.store.IDs()
	if err != nil {
		return fmt.Errorf("failed to list store: %w", err)
	}

	stored := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		stored[id] = struct{}{}
	}
	var orphans []string
	for id := range revisions {
		if _, ok := stored[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)

	t := &tally{total: len(ids) + len(orphans)}
	p.progress.OnStart(t.total)

	for sn, scanErr := range p.store.All() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if scanErr != nil {
			var itemErr *storage.ItemError
			if !errors.As(scanErr, &itemErr) {
				return fmt.Errorf("failed to scan store: %w", scanErr)
			}
			log.Printf("sync %s: skipping unreadable snippet %s: %v", p.id, itemErr.ID, itemErr.Err)
			t.failed++
			p.advance(t, itemErr.ID)
			continue
		}

		if rev, ok := revisions[sn.ID]; !ok || rev.Before(sn.Revision()) {
			wrote, err := p.index.PutIfNewer(ctx, sn, p.store.Exists)
			switch {
			case err != nil:
				log.Printf("sync %s: failed to index snippet %s: %v", p.id, sn.ID, err)
				t.failed++
			case wrote:
				t.indexed++
			}
		}
		p.advance(t, sn.ID)
	}

	for _, id := range orphans {
		if err := ctx.Err(); err != nil {
			return err
		}
		removed, err := p.index.RemoveIfAbsent(ctx, id, p.store.Exists)
		switch {
		case err != nil:
			log.Printf("sync %s: failed to remove orphan %s: %v", p.id, id, err)
			t.failed++
		case removed:
			t.removed++
		}
		p.advance(t, id)
	}

	return nil
}

func (p *Process) advance(t *tally, id string) {
	t.processed++
	percent := 100
	if t.total > 0 {
		percent = t.processed * 100 / t.total
	}
	p.publish(func(s *Snapshot) {
		s.Percent = percent
		s.Indexed = t.indexed
		s.Removed = t.removed
		s.FailedItems = t.failed
	})
	p.progress.OnItem(id)
}
