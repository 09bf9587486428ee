package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"

	"github.com/mvp-joe/snipdex/internal/config"
	"github.com/mvp-joe/snipdex/internal/reconcile"
	"github.com/mvp-joe/snipdex/internal/search"
	"github.com/mvp-joe/snipdex/internal/snippets"
	"github.com/mvp-joe/snipdex/internal/storage"
)

// app holds the components every command shares. Close releases them in
// reverse order of creation.
type app struct {
	store    *storage.DocumentStore
	tags     *storage.TagRegistry
	index    *search.Index
	history  *storage.RunHistory
	service  *snippets.Service
	registry *reconcile.Registry
}

// openApp wires storage, index, run history, the snippet service and the
// synchronization registry from configuration.
func openApp(c *config.Config, progress reconcile.ProgressReporter) (*app, error) {
	fsys := afero.NewOsFs()

	store, err := storage.NewDocumentStore(fsys, c.SnippetsDir())
	if err != nil {
		return nil, err
	}
	tags, err := storage.NewTagRegistry(fsys, c.TagsPath())
	if err != nil {
		return nil, err
	}

	index, err := search.Open(c.IndexPath(), search.Options{
		BatchSize:    c.Index.BatchSize,
		TombstoneTTL: c.Index.TombstoneTTL,
	})
	if err != nil {
		return nil, err
	}

	history, err := storage.OpenRunHistory(c.HistoryPath())
	if err != nil {
		index.Close()
		return nil, err
	}

	registry, err := reconcile.NewRegistry(store, index, history, reconcile.RegistryOptions{
		Retain:      c.Sync.Retain,
		HistoryKeep: c.Sync.HistoryKeep,
		Progress:    progress,
	})
	if err != nil {
		history.Close()
		index.Close()
		return nil, fmt.Errorf("failed to create synchronization registry: %w", err)
	}

	return &app{
		store:    store,
		tags:     tags,
		index:    index,
		history:  history,
		service:  snippets.NewService(store, index, tags),
		registry: registry,
	}, nil
}

// Close stops the registry, cancelling an active run, then closes history
// and the index.
func (a *app) Close() error {
	return errors.Join(
		a.registry.Close(),
		a.history.Close(),
		a.index.Close(),
	)
}
