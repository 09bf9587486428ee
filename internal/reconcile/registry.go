package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mvp-joe/snipdex/internal/snippet"
)

// ErrRegistryClosed is returned by Start after Close.
var ErrRegistryClosed = errors.New("synchronization registry closed")

// RegistryOptions configures run scheduling and retention.
type RegistryOptions struct {
	// Retain is how many runs stay queryable in memory. Older runs are
	// served from history.
	Retain int

	// HistoryKeep is how many runs the persisted history keeps.
	HistoryKeep int

	// Progress receives callbacks for every run. Nil disables reporting.
	Progress ProgressReporter
}

// DefaultRegistryOptions returns the defaults used when configuration is silent.
func DefaultRegistryOptions() RegistryOptions {
	return RegistryOptions{Retain: 16, HistoryKeep: 200}
}

// Registry starts reconciliation runs in the background and answers
// status queries by id. At most one run is active at a time; starting
// while one is pending or in progress returns the active run's id and
// queues a single follow-up run that starts once the active one ends.
type Registry struct {
	store   Store
	index   Index
	history History
	opts    RegistryOptions

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	runs   *lru.Cache[string, *Process]
	active *Process
	rerun  bool
	closed bool
}

// NewRegistry creates a registry. history may be nil, in which case runs
// are only kept in memory and never skipped.
func NewRegistry(store Store, index Index, history History, opts RegistryOptions) (*Registry, error) {
	if opts.Retain <= 0 {
		opts.Retain = DefaultRegistryOptions().Retain
	}
	runs, err := lru.New[string, *Process](opts.Retain)
	if err != nil {
		return nil, fmt.Errorf("failed to create run cache: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		store:   store,
		index:   index,
		history: history,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		runs:    runs,
	}, nil
}

// Start schedules a run and returns its id immediately.
func (r *Registry) Start() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return "", ErrRegistryClosed
	}
	if r.active != nil && !r.active.Snapshot().Status.Terminal() {
		// Changes made after the active run passed them are only
		// picked up by another run.
		r.rerun = true
		return r.active.ID(), nil
	}

	p := r.startLocked()
	log.Printf("sync %s: started", p.ID())
	return p.ID(), nil
}

// startLocked launches a new run. r.mu must be held.
func (r *Registry) startLocked() *Process {
	p := NewProcess(uuid.NewString(), r.store, r.index, r.history, r.opts.Progress)
	r.runs.Add(p.ID(), p)
	r.active = p
	r.rerun = false

	r.wg.Add(1)
	go r.run(p)
	return p
}

func (r *Registry) run(p *Process) {
	defer r.wg.Done()

	snap := p.Run(r.ctx)
	r.record(p.ID(), snap)

	r.mu.Lock()
	if r.rerun && !r.closed {
		next := r.startLocked()
		log.Printf("sync %s: started as follow-up to %s", next.ID(), p.ID())
	}
	r.mu.Unlock()

	close(p.done)
}

func (r *Registry) record(id string, snap Snapshot) {
	if r.history == nil {
		return
	}
	if err := r.history.Save(snap.record()); err != nil {
		log.Printf("sync %s: failed to record run: %v", id, err)
		return
	}
	if _, err := r.history.Prune(r.opts.HistoryKeep); err != nil {
		log.Printf("Warning: failed to prune sync history: %v", err)
	}
}

// Get returns the latest snapshot of a run. Runs no longer in memory are
// read from history. Unknown ids fail with snippet.ErrNotExists.
func (r *Registry) Get(id string) (Snapshot, error) {
	r.mu.Lock()
	p, ok := r.runs.Peek(id)
	r.mu.Unlock()
	if ok {
		return p.Snapshot(), nil
	}

	if r.history == nil {
		return Snapshot{}, fmt.Errorf("synchronization %s: %w", id, snippet.ErrNotExists)
	}
	rec, err := r.history.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return snapshotFromRecord(rec), nil
}

// Recent returns up to limit runs, newest first. Runs held in memory come
// first, followed by older runs from history.
func (r *Registry) Recent(limit int) ([]Snapshot, error) {
	if limit <= 0 {
		return nil, nil
	}

	r.mu.Lock()
	keys := r.runs.Keys()
	procs := make([]*Process, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		if p, ok := r.runs.Peek(keys[i]); ok {
			procs = append(procs, p)
		}
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, limit)
	seen := make(map[string]bool, len(procs))
	for _, p := range procs {
		if len(out) == limit {
			return out, nil
		}
		out = append(out, p.Snapshot())
		seen[p.ID()] = true
	}

	if r.history == nil || len(out) == limit {
		return out, nil
	}
	recs, err := r.history.Recent(limit + len(seen))
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if len(out) == limit {
			break
		}
		if seen[rec.ID] {
			continue
		}
		out = append(out, snapshotFromRecord(rec))
	}
	return out, nil
}

// Wait blocks until the run is terminal and returns its final snapshot.
func (r *Registry) Wait(ctx context.Context, id string) (Snapshot, error) {
	r.mu.Lock()
	p, ok := r.runs.Peek(id)
	r.mu.Unlock()
	if !ok {
		return r.Get(id)
	}

	select {
	case <-p.Done():
		return p.Snapshot(), nil
	case <-ctx.Done():
		return p.Snapshot(), ctx.Err()
	}
}

// Close cancels any active run and waits for it to finish. A cancelled
// run ends FAILED.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	return nil
}
