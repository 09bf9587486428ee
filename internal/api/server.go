// Package api exposes snippets, tags, languages, and synchronization runs
// over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mvp-joe/snipdex/internal/reconcile"
	"github.com/mvp-joe/snipdex/internal/snippet"
	"github.com/mvp-joe/snipdex/internal/snippets"
)

// Snippets is the use-case layer the handlers call.
type Snippets interface {
	List(ctx context.Context, term string, filter snippet.FilterProperties, sort *snippet.SortProperties, page int) (*snippets.Page, error)
	Create(ctx context.Context, d snippets.Draft) (*snippet.Snippet, error)
	Read(ctx context.Context, id string) (*snippet.Snippet, error)
	Update(ctx context.Context, sn *snippet.Snippet) (*snippet.Snippet, error)
	Delete(ctx context.Context, id string) error
	Tags() []string
	CreateTag(tag string) error
	Languages() []snippet.Language
}

// Synchronizations starts and reports reconciliation runs.
type Synchronizations interface {
	Start() (string, error)
	Get(id string) (reconcile.Snapshot, error)
	Recent(limit int) ([]reconcile.Snapshot, error)
}

// Server holds the handler dependencies.
type Server struct {
	snippets Snippets
	syncs    Synchronizations
}

// NewServer creates the HTTP router.
func NewServer(svc Snippets, syncs Synchronizations) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	srv := &Server{snippets: svc, syncs: syncs}

	r.Get("/health", srv.handleHealth)

	r.Route("/snippets", func(r chi.Router) {
		r.Get("/", srv.handleListSnippets)
		r.Post("/", srv.handleCreateSnippet)
		r.Get("/{id}", srv.handleReadSnippet)
		r.Put("/{id}", srv.handleUpdateSnippet)
		r.Delete("/{id}", srv.handleDeleteSnippet)
	})

	r.Get("/tags", srv.handleListTags)
	r.Post("/tags", srv.handleCreateTag)
	r.Get("/languages", srv.handleListLanguages)

	r.Route("/synchronizations", func(r chi.Router) {
		r.Get("/", srv.handleListSynchronizations)
		r.Post("/", srv.handleStartSynchronization)
		r.Get("/{id}", srv.handleGetSynchronization)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
