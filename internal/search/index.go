// Package search projects snippets into a bleve full-text index and
// answers filtered, sorted, paginated queries against it.
//
// The index is a disposable projection of the document store. Writes
// coming from live CRUD are unconditional; writes coming from
// reconciliation are conditional on revision and store presence so that
// stale scan data never overwrites a newer live write.
package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/mvp-joe/snipdex/internal/snippet"
)

// Field names in the index.
const (
	FieldTitle       = "title"
	FieldTitleSort   = "title_sort"
	FieldDescription = "description"
	FieldCode        = "code"
	FieldLanguage    = "language"
	FieldTags        = "tags"
	FieldCreated     = "created"
	FieldModified    = "modified"
	FieldRevision    = "revision"
)

// ErrIndexClosed indicates an operation on a closed index.
var ErrIndexClosed = errors.New("index is closed")

// Options tunes the index.
type Options struct {
	// BatchSize is the number of hits fetched per round trip when a
	// result sequence or the revision listing is consumed.
	BatchSize int

	// TombstoneTTL bounds how long a CRUD delete is remembered to veto
	// stale reconciliation writes.
	TombstoneTTL time.Duration

	// TombstoneCapacity bounds the number of remembered deletes.
	TombstoneCapacity int
}

// DefaultOptions returns the defaults used when a field is zero.
func DefaultOptions() Options {
	return Options{
		BatchSize:         200,
		TombstoneTTL:      time.Hour,
		TombstoneCapacity: 10_000,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.TombstoneTTL <= 0 {
		o.TombstoneTTL = d.TombstoneTTL
	}
	if o.TombstoneCapacity <= 0 {
		o.TombstoneCapacity = d.TombstoneCapacity
	}
	return o
}

// Index is the bleve-backed snippet index.
type Index struct {
	index bleve.Index
	opts  Options

	locks      stripedLock
	tombstones *tombstones

	mu     sync.RWMutex // guards closed against Close
	closed bool
}

// Open opens the index at path, creating it with the snippet mapping if
// it does not exist.
func Open(path string, opts Options) (*Index, error) {
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open index at %s: %w", path, err)
	}
	return newIndex(idx, opts)
}

// OpenMem creates an in-memory index.
func OpenMem(opts Options) (*Index, error) {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}
	return newIndex(idx, opts)
}

// Rebuild deletes the index at path and creates an empty one. The index
// is derived data, so this is always safe; reconciliation refills it.
func Rebuild(path string, opts Options) (*Index, error) {
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("failed to remove index at %s: %w", path, err)
	}
	return Open(path, opts)
}

func newIndex(idx bleve.Index, opts Options) (*Index, error) {
	opts = opts.withDefaults()
	tombs, err := newTombstones(opts.TombstoneCapacity, opts.TombstoneTTL)
	if err != nil {
		idx.Close()
		return nil, err
	}
	return &Index{index: idx, opts: opts, tombstones: tombs}, nil
}

// buildMapping creates the index mapping for snippet documents.
func buildMapping() *mapping.IndexMappingImpl {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = "standard"

	// Searchable text - standard analyzer
	textField := func() *mapping.FieldMapping {
		m := bleve.NewTextFieldMapping()
		m.Analyzer = "standard"
		m.Store = false
		m.Index = true
		m.IncludeTermVectors = true
		return m
	}

	// Exact-match filter and sort fields - keyword analyzer
	keywordField := func() *mapping.FieldMapping {
		m := bleve.NewTextFieldMapping()
		m.Analyzer = "keyword"
		m.Store = false
		m.Index = true
		m.IncludeInAll = false
		return m
	}

	dateField := func() *mapping.FieldMapping {
		m := bleve.NewDateTimeFieldMapping()
		m.Store = false
		m.Index = true
		m.IncludeInAll = false
		return m
	}

	// Revision is only read back, never searched
	revisionField := bleve.NewTextFieldMapping()
	revisionField.Analyzer = "keyword"
	revisionField.Store = true
	revisionField.Index = false
	revisionField.IncludeInAll = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.Dynamic = false
	docMapping.AddFieldMappingsAt(FieldTitle, textField())
	docMapping.AddFieldMappingsAt(FieldDescription, textField())
	docMapping.AddFieldMappingsAt(FieldCode, textField())
	docMapping.AddFieldMappingsAt(FieldTitleSort, keywordField())
	docMapping.AddFieldMappingsAt(FieldLanguage, keywordField())
	docMapping.AddFieldMappingsAt(FieldTags, keywordField())
	docMapping.AddFieldMappingsAt(FieldCreated, dateField())
	docMapping.AddFieldMappingsAt(FieldModified, dateField())
	docMapping.AddFieldMappingsAt(FieldRevision, revisionField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// snippetToDocument converts a snippet to a bleve document.
func snippetToDocument(s *snippet.Snippet) map[string]interface{} {
	doc := map[string]interface{}{
		FieldTitle:       s.Title,
		FieldTitleSort:   strings.ToLower(s.Title),
		FieldDescription: s.Description,
		FieldCode:        s.Code,
		FieldLanguage:    s.Language,
		FieldTags:        snippet.NormalizeTags(s.Tags),
		FieldCreated:     s.Created.UTC(),
		FieldRevision:    formatRevision(s.Revision()),
	}
	if s.Modified != nil {
		doc[FieldModified] = s.Modified.UTC()
	}
	return doc
}

// Put indexes a snippet unconditionally. Used by live CRUD writes.
func (x *Index) Put(ctx context.Context, s *snippet.Snippet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := x.locks.lock(s.ID)
	defer unlock()

	if err := x.put(s); err != nil {
		return err
	}
	x.tombstones.clear(s.ID)
	return nil
}

// Remove deletes a snippet from the index unconditionally and remembers
// the delete so that a reconciliation scan still holding an older copy
// cannot bring it back.
func (x *Index) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := x.locks.lock(id)
	defer unlock()

	x.tombstones.record(id, time.Now().UTC())
	return x.remove(id)
}

// PresenceFunc reports whether the authoritative store still holds id.
type PresenceFunc func(id string) bool

// PutIfNewer indexes s only if it is newer than what the index holds,
// no delete newer than s was recorded, and present (if non-nil) confirms
// the store still holds it. The check and the write happen under the
// same per-id lock that live writes take. It reports whether it wrote.
func (x *Index) PutIfNewer(ctx context.Context, s *snippet.Snippet, present PresenceFunc) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	unlock := x.locks.lock(s.ID)
	defer unlock()

	rev := s.Revision()
	if deletedAt, ok := x.tombstones.get(s.ID); ok && !rev.After(deletedAt) {
		return false, nil
	}
	if present != nil && !present(s.ID) {
		return false, nil
	}

	current, found, err := x.revision(ctx, s.ID)
	if err != nil {
		return false, err
	}
	if found && !rev.After(current) {
		return false, nil
	}

	if err := x.put(s); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveIfAbsent deletes id from the index only if present (if non-nil)
// reports the store no longer holds it. It reports whether it deleted.
func (x *Index) RemoveIfAbsent(ctx context.Context, id string, present PresenceFunc) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	unlock := x.locks.lock(id)
	defer unlock()

	if present != nil && present(id) {
		return false, nil
	}
	if err := x.remove(id); err != nil {
		return false, err
	}
	return true, nil
}

// Revision returns the revision indexed for id.
func (x *Index) Revision(ctx context.Context, id string) (time.Time, bool, error) {
	return x.revision(ctx, id)
}

// Revisions returns the revision of every indexed document keyed by id.
// Only ids and revisions are held, never document content.
func (x *Index) Revisions(ctx context.Context) (map[string]time.Time, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, ErrIndexClosed
	}

	out := make(map[string]time.Time)
	var after string
	for {
		req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), x.opts.BatchSize, 0, false)
		req.Fields = []string{FieldRevision}
		req.SortBy([]string{"_id"})
		if after != "" {
			req.SearchAfter = []string{after}
		}

		res, err := x.index.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to list index revisions: %w", err)
		}
		for _, hit := range res.Hits {
			raw, _ := hit.Fields[FieldRevision].(string)
			rev, err := parseRevision(raw)
			if err != nil {
				// Unreadable revision: treat as oldest so it gets rewritten.
				rev = time.Time{}
			}
			out[hit.ID] = rev
			after = hit.ID
		}
		if len(res.Hits) < x.opts.BatchSize {
			return out, nil
		}
	}
}

// DocCount returns the number of indexed documents.
func (x *Index) DocCount() (uint64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return 0, ErrIndexClosed
	}
	return x.index.DocCount()
}

// Close releases the index.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil
	}
	x.closed = true
	x.tombstones.close()
	return x.index.Close()
}

func (x *Index) put(s *snippet.Snippet) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return ErrIndexClosed
	}
	if err := x.index.Index(s.ID, snippetToDocument(s)); err != nil {
		return fmt.Errorf("failed to index snippet %s: %w", s.ID, err)
	}
	return nil
}

func (x *Index) remove(id string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return ErrIndexClosed
	}
	if err := x.index.Delete(id); err != nil {
		return fmt.Errorf("failed to remove snippet %s from index: %w", id, err)
	}
	return nil
}

func (x *Index) revision(ctx context.Context, id string) (time.Time, bool, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return time.Time{}, false, ErrIndexClosed
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDocIDQuery([]string{id}), 1, 0, false)
	req.Fields = []string{FieldRevision}
	res, err := x.index.SearchInContext(ctx, req)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read revision of %s: %w", id, err)
	}
	if len(res.Hits) == 0 {
		return time.Time{}, false, nil
	}

	raw, _ := res.Hits[0].Fields[FieldRevision].(string)
	rev, err := parseRevision(raw)
	if err != nil {
		return time.Time{}, true, nil
	}
	return rev, true, nil
}

// Revisions are stored as decimal UnixNano strings: numeric fields in
// bleve are float64 and cannot hold nanosecond timestamps exactly.
func formatRevision(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

func parseRevision(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid revision %q: %w", s, err)
	}
	return time.Unix(0, n).UTC(), nil
}
