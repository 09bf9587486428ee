package reconcile

// ProgressReporter provides callbacks for reporting reconciliation progress.
// Implementations can display progress bars, log messages, or remain silent.
type ProgressReporter interface {
	// OnStart is called once the number of items to visit is known.
	OnStart(total int)

	// OnItem is called after each snippet or orphaned index entry is handled.
	OnItem(id string)

	// OnComplete is called with the terminal snapshot of the run.
	OnComplete(snap Snapshot)
}

// NoOpProgressReporter is a progress reporter that does nothing.
type NoOpProgressReporter struct{}

func (NoOpProgressReporter) OnStart(total int)        {}
func (NoOpProgressReporter) OnItem(id string)         {}
func (NoOpProgressReporter) OnComplete(snap Snapshot) {}
