package watcher

import (
	"context"
	"log"
)

// SyncCoordinator routes debounced snippet file changes to the
// synchronization registry.
type SyncCoordinator struct {
	files FileWatcher
	sync  SyncStarter
}

// NewSyncCoordinator creates a new coordinator.
func NewSyncCoordinator(files FileWatcher, sync SyncStarter) *SyncCoordinator {
	return &SyncCoordinator{files: files, sync: sync}
}

// Start begins routing file changes to the registry.
// Blocks until context is cancelled, then stops the watcher.
func (c *SyncCoordinator) Start(ctx context.Context) error {
	if err := c.files.Start(ctx, c.handleFileChange); err != nil {
		c.cleanup()
		return err
	}

	<-ctx.Done()
	c.cleanup()
	return ctx.Err()
}

func (c *SyncCoordinator) cleanup() {
	if err := c.files.Stop(); err != nil {
		log.Printf("Warning: snippet watcher stop failed: %v", err)
	}
}

// handleFileChange starts a reconciliation for a batch of changed files.
func (c *SyncCoordinator) handleFileChange(files []string) {
	if len(files) == 0 {
		return
	}

	log.Printf("Detected %d snippet file change(s), starting synchronization...", len(files))

	id, err := c.sync.Start()
	if err != nil {
		log.Printf("Error: failed to start synchronization: %v", err)
		return
	}
	log.Printf("Synchronization %s scheduled", id)
}
