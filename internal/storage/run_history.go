package storage

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mvp-joe/snipdex/internal/snippet"
)

// RunRecord is the persisted form of a finished synchronization run.
type RunRecord struct {
	ID          string
	Status      string
	Percent     int
	StartTime   time.Time
	EndTime     time.Time
	Skipped     bool
	Indexed     int
	Removed     int
	FailedItems int
	Error       string
}

// RunHistory stores finished synchronization runs in SQLite. The latest
// completed run doubles as the "last successful sync" marker.
type RunHistory struct {
	db *sql.DB
}

var runColumns = []string{
	"id", "status", "percent", "start_time", "end_time",
	"skipped", "indexed", "removed", "failed_items", "error",
}

const createSyncRunsTable = `
CREATE TABLE IF NOT EXISTS sync_runs (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    percent INTEGER NOT NULL,
    start_time TEXT NOT NULL,
    end_time TEXT NOT NULL,
    skipped INTEGER NOT NULL DEFAULT 0,
    indexed INTEGER NOT NULL DEFAULT 0,
    removed INTEGER NOT NULL DEFAULT 0,
    failed_items INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT ''
)`

const createSyncRunsEndIndex = `CREATE INDEX IF NOT EXISTS idx_sync_runs_end ON sync_runs(end_time)`

// OpenRunHistory opens (creating if needed) the run history database.
// Use ":memory:" for a throwaway history.
func OpenRunHistory(path string) (*RunHistory, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	for _, ddl := range []string{createSyncRunsTable, createSyncRunsEndIndex} {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create run history schema: %w", err)
		}
	}
	return &RunHistory{db: db}, nil
}

// Close closes the database.
func (h *RunHistory) Close() error {
	return h.db.Close()
}

// Save writes or replaces a run record.
func (h *RunHistory) Save(rec RunRecord) error {
	_, err := sq.Insert("sync_runs").
		Columns(runColumns...).
		Values(
			rec.ID,
			rec.Status,
			rec.Percent,
			formatTime(rec.StartTime),
			formatTime(rec.EndTime),
			rec.Skipped,
			rec.Indexed,
			rec.Removed,
			rec.FailedItems,
			rec.Error,
		).
		Options("OR REPLACE").
		RunWith(h.db).
		Exec()
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", rec.ID, err)
	}
	return nil
}

// Get loads a run record. Fails with snippet.ErrNotExists if unknown.
func (h *RunHistory) Get(id string) (*RunRecord, error) {
	row := sq.Select(runColumns...).
		From("sync_runs").
		Where(sq.Eq{"id": id}).
		RunWith(h.db).
		QueryRow()

	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("synchronization %s: %w", id, snippet.ErrNotExists)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return rec, nil
}

// LastCompleted returns the most recently finished COMPLETED run that
// reconciled every item, or (nil, nil) when there is none. Skipped runs
// and runs with failed items are never returned.
func (h *RunHistory) LastCompleted() (*RunRecord, error) {
	row := sq.Select(runColumns...).
		From("sync_runs").
		Where(sq.Eq{"status": "COMPLETED", "skipped": false, "failed_items": 0}).
		OrderBy("end_time DESC").
		Limit(1).
		RunWith(h.db).
		QueryRow()

	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last completed run: %w", err)
	}
	return rec, nil
}

// Recent returns up to limit runs, most recently finished first.
func (h *RunHistory) Recent(limit int) ([]*RunRecord, error) {
	rows, err := sq.Select(runColumns...).
		From("sync_runs").
		OrderBy("end_time DESC").
		Limit(uint64(limit)).
		RunWith(h.db).
		Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query recent runs: %w", err)
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Prune keeps the newest keep runs and deletes the rest.
func (h *RunHistory) Prune(keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}

	newest := sq.Select("id").
		From("sync_runs").
		OrderBy("end_time DESC").
		Limit(uint64(keep))
	sub, args, err := newest.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build prune query: %w", err)
	}

	res, err := sq.Delete("sync_runs").
		Where("id NOT IN ("+sub+")", args...).
		RunWith(h.db).
		Exec()
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var rec RunRecord
	var start, end string
	err := row.Scan(
		&rec.ID,
		&rec.Status,
		&rec.Percent,
		&start,
		&end,
		&rec.Skipped,
		&rec.Indexed,
		&rec.Removed,
		&rec.FailedItems,
		&rec.Error,
	)
	if err != nil {
		return nil, err
	}
	if rec.StartTime, err = time.Parse(time.RFC3339Nano, start); err != nil {
		return nil, fmt.Errorf("run %s: invalid start_time %q: %w", rec.ID, start, err)
	}
	if rec.EndTime, err = time.Parse(time.RFC3339Nano, end); err != nil {
		return nil, fmt.Errorf("run %s: invalid end_time %q: %w", rec.ID, end, err)
	}
	return &rec, nil
}

// formatTime uses a fixed-width layout so that end_time sorts as text.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}
