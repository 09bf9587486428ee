package watcher

import "context"

// FileWatcher monitors the snippets directory for changes with debouncing.
type FileWatcher interface {
	// Start begins watching, calling callback with debounced file changes.
	Start(ctx context.Context, callback func(files []string)) error

	// Stop stops the file watcher and cleans up resources.
	Stop() error
}

// SyncStarter schedules a reconciliation run. The registry in
// internal/reconcile is the production implementation.
type SyncStarter interface {
	Start() (string, error)
}
