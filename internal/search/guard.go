package search

import (
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/maypok86/otter"
)

const lockStripes = 64

// stripedLock serializes index writes per id without a lock per id.
type stripedLock [lockStripes]sync.Mutex

func (l *stripedLock) lock(id string) func() {
	m := &l[xxhash.Sum64String(id)%lockStripes]
	m.Lock()
	return m.Unlock
}

// tombstones remembers recent deletes by id.
type tombstones struct {
	cache otter.Cache[string, time.Time]
}

func newTombstones(capacity int, ttl time.Duration) (*tombstones, error) {
	cache, err := otter.MustBuilder[string, time.Time](capacity).
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create tombstone cache: %w", err)
	}
	return &tombstones{cache: cache}, nil
}

func (t *tombstones) record(id string, at time.Time) {
	t.cache.Set(id, at)
}

func (t *tombstones) get(id string) (time.Time, bool) {
	return t.cache.Get(id)
}

func (t *tombstones) clear(id string) {
	t.cache.Delete(id)
}

func (t *tombstones) close() {
	t.cache.Close()
}
