package reconcile

import (
	"time"

	"github.com/mvp-joe/snipdex/internal/storage"
)

// Status is the lifecycle state of a synchronization run.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Snapshot is an immutable view of a run at one point in time. Values are
// copied out to readers; a published snapshot is never modified.
type Snapshot struct {
	ID          string    `json:"id"`
	Status      Status    `json:"status"`
	Percent     int       `json:"progressPercent"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Skipped     bool      `json:"skipped"`
	Indexed     int       `json:"indexed"`
	Removed     int       `json:"removed"`
	FailedItems int       `json:"failedItems"`
	Error       string    `json:"error,omitempty"`
}

func (s Snapshot) record() storage.RunRecord {
	return storage.RunRecord{
		ID:          s.ID,
		Status:      string(s.Status),
		Percent:     s.Percent,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		Skipped:     s.Skipped,
		Indexed:     s.Indexed,
		Removed:     s.Removed,
		FailedItems: s.FailedItems,
		Error:       s.Error,
	}
}

func snapshotFromRecord(rec *storage.RunRecord) Snapshot {
	return Snapshot{
		ID:          rec.ID,
		Status:      Status(rec.Status),
		Percent:     rec.Percent,
		StartTime:   rec.StartTime,
		EndTime:     rec.EndTime,
		Skipped:     rec.Skipped,
		Indexed:     rec.Indexed,
		Removed:     rec.Removed,
		FailedItems: rec.FailedItems,
		Error:       rec.Error,
	}
}
