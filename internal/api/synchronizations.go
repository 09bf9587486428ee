package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mvp-joe/snipdex/internal/reconcile"
)

const defaultRecentRuns = 20

// syncView is the wire form of a run. Unset times are null.
type syncView struct {
	ID              string     `json:"id"`
	Status          string     `json:"status"`
	ProgressPercent int        `json:"progressPercent"`
	StartTime       *time.Time `json:"startTime"`
	EndTime         *time.Time `json:"endTime"`
	Skipped         bool       `json:"skipped"`
	Indexed         int        `json:"indexed"`
	Removed         int        `json:"removed"`
	FailedItems     int        `json:"failedItems"`
	Error           string     `json:"error,omitempty"`
}

func newSyncView(snap reconcile.Snapshot) syncView {
	return syncView{
		ID:              snap.ID,
		Status:          string(snap.Status),
		ProgressPercent: snap.Percent,
		StartTime:       optionalTime(snap.StartTime),
		EndTime:         optionalTime(snap.EndTime),
		Skipped:         snap.Skipped,
		Indexed:         snap.Indexed,
		Removed:         snap.Removed,
		FailedItems:     snap.FailedItems,
		Error:           snap.Error,
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *Server) handleStartSynchronization(w http.ResponseWriter, _ *http.Request) {
	id, err := s.syncs.Start()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/synchronizations/"+id)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (s *Server) handleGetSynchronization(w http.ResponseWriter, r *http.Request) {
	snap, err := s.syncs.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSyncView(snap))
}

func (s *Server) handleListSynchronizations(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentRuns
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	snaps, err := s.syncs.Recent(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]syncView, 0, len(snaps))
	for _, snap := range snaps {
		views = append(views, newSyncView(snap))
	}
	writeJSON(w, http.StatusOK, map[string][]syncView{"synchronizations": views})
}
