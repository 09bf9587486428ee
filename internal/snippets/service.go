// Package snippets implements the snippet use cases: paginated listing and
// the create/read/update/delete operations that write through the
// document store and the search index together.
package snippets

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mvp-joe/snipdex/internal/search"
	"github.com/mvp-joe/snipdex/internal/snippet"
	"github.com/mvp-joe/snipdex/internal/storage"
)

// PageSize is the number of snippets on one listing page.
const PageSize = 50

// Index is the search capability the use cases consume. The bleve-backed
// *search.Index is the production implementation.
type Index interface {
	Put(ctx context.Context, s *snippet.Snippet) error
	Remove(ctx context.Context, id string) error
	Search(ctx context.Context, req search.Request) (*search.Hits, error)
}

// Service bundles the snippet use cases.
type Service struct {
	store *storage.DocumentStore
	index Index
	tags  *storage.TagRegistry
	now   func() time.Time
}

// NewService creates the use cases over a store, an index, and a tag registry.
func NewService(store *storage.DocumentStore, index Index, tags *storage.TagRegistry) *Service {
	return &Service{
		store: store,
		index: index,
		tags:  tags,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Draft is the caller-supplied content of a new snippet.
type Draft struct {
	Title       string
	Description string
	Code        string
	Language    string
	Tags        []string
}

// Page is one page of a listing.
type Page struct {
	Page       int                `json:"page"`
	TotalPages int                `json:"total_pages"`
	Total      int                `json:"total"`
	Snippets   []*snippet.Snippet `json:"snippets"`
}

// Result is a full match set: its size and a lazy sequence of snippets
// read from the store as the sequence is consumed.
type Result struct {
	Total    int
	Snippets iter.Seq2[*snippet.Snippet, error]
}

// Find runs the compound query for term and filter in the given order,
// starting at offset.
func (s *Service) Find(ctx context.Context, term string, filter snippet.FilterProperties, sort snippet.SortProperties, offset int) (*Result, error) {
	filter.Language = canonicalFilterLanguage(filter.Language)

	hits, err := s.index.Search(ctx, search.Request{
		Query:  search.BuildQuery(term, filter),
		Sort:   search.BuildSort(sort),
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	seq := func(yield func(*snippet.Snippet, error) bool) {
		for id, err := range hits.IDs {
			if err != nil {
				yield(nil, err)
				return
			}
			sn, err := s.store.Read(id)
			if err != nil {
				if isNotExists(err) {
					// Deleted between query and read.
					continue
				}
				if !yield(nil, err) {
					return
				}
				continue
			}
			if !yield(sn, nil) {
				return
			}
		}
	}

	return &Result{Total: hits.Total, Snippets: seq}, nil
}

// List returns one page of snippets matching search and filter. When
// sort is nil the default ordering applies: relevance for a search,
// newest first otherwise. Pages are 1-based; an empty result still has
// one (empty) page. A page outside [1, totalPages] fails with a
// *snippet.PageNotExistsError carrying the requested number.
func (s *Service) List(ctx context.Context, term string, filter snippet.FilterProperties, sort *snippet.SortProperties, page int) (*Page, error) {
	if page <= 0 {
		return nil, &snippet.PageNotExistsError{Page: page}
	}

	order := snippet.DefaultSort(term)
	if sort != nil {
		order = *sort
	}

	res, err := s.Find(ctx, term, filter, order, (page-1)*PageSize)
	if err != nil {
		return nil, err
	}

	totalPages := TotalPages(res.Total)
	if page > totalPages {
		return nil, &snippet.PageNotExistsError{Page: page, TotalPages: totalPages}
	}

	out := &Page{Page: page, TotalPages: totalPages, Total: res.Total, Snippets: make([]*snippet.Snippet, 0, PageSize)}
	for sn, err := range res.Snippets {
		if err != nil {
			return nil, err
		}
		out.Snippets = append(out.Snippets, sn)
		if len(out.Snippets) == PageSize {
			break
		}
	}
	return out, nil
}

// TotalPages returns the number of pages for total matches, at least one.
func TotalPages(total int) int {
	if total <= 0 {
		return 1
	}
	return (total + PageSize - 1) / PageSize
}

// Create stores a new snippet and indexes it before returning.
func (s *Service) Create(ctx context.Context, d Draft) (*snippet.Snippet, error) {
	sn := &snippet.Snippet{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(d.Title),
		Description: d.Description,
		Code:        d.Code,
		Language:    snippet.CanonicalLanguage(d.Language),
		Tags:        snippet.NormalizeTags(d.Tags),
		Created:     s.now(),
	}

	if err := validateTags(sn.Tags); err != nil {
		return nil, err
	}
	if err := s.store.Create(sn); err != nil {
		return nil, err
	}
	if err := s.tags.Register(sn.Tags...); err != nil {
		return nil, err
	}
	if err := s.index.Put(ctx, sn); err != nil {
		return nil, err
	}
	return sn, nil
}

func validateTags(tags []string) error {
	for _, tag := range tags {
		if err := snippet.ValidateTag(tag); err != nil {
			return err
		}
	}
	return nil
}

// Read returns a snippet from the store.
func (s *Service) Read(ctx context.Context, id string) (*snippet.Snippet, error) {
	return s.store.Read(id)
}

// Update replaces the editable fields of an existing snippet. Created is
// kept from the stored copy and Modified advances past the previous revision.
func (s *Service) Update(ctx context.Context, sn *snippet.Snippet) (*snippet.Snippet, error) {
	current, err := s.store.Read(sn.ID)
	if err != nil {
		return nil, err
	}

	updated := sn.Clone()
	updated.Title = strings.TrimSpace(updated.Title)
	updated.Language = snippet.CanonicalLanguage(updated.Language)
	updated.Tags = snippet.NormalizeTags(updated.Tags)
	updated.Created = current.Created

	modified := s.now()
	if prev := current.Revision(); !modified.After(prev) {
		modified = prev.Add(time.Nanosecond)
	}
	updated.Modified = &modified

	if err := validateTags(updated.Tags); err != nil {
		return nil, err
	}
	if err := s.store.Update(updated); err != nil {
		return nil, err
	}
	if err := s.tags.Register(updated.Tags...); err != nil {
		return nil, err
	}
	if err := s.index.Put(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a snippet from the store and then from the index.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(id); err != nil {
		return err
	}
	return s.index.Remove(ctx, id)
}

// Tags returns every registered tag.
func (s *Service) Tags() []string {
	return s.tags.Tags()
}

// CreateTag registers a tag.
func (s *Service) CreateTag(tag string) error {
	return s.tags.Create(strings.TrimSpace(tag))
}

// Languages returns the known languages in display order.
func (s *Service) Languages() []snippet.Language {
	return snippet.Languages()
}

func canonicalFilterLanguage(lang string) string {
	if strings.TrimSpace(lang) == "" {
		return ""
	}
	return snippet.CanonicalLanguage(lang)
}

func isNotExists(err error) bool {
	return errors.Is(err, snippet.ErrNotExists)
}
