package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/mvp-joe/snipdex/internal/snippet"
)

type errorBody struct {
	Error string `json:"error"`
	Page  *int   `json:"page,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Warning: failed to encode response: %v", err)
	}
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
}

// writeError maps domain errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}

	var pageErr *snippet.PageNotExistsError
	switch {
	case errors.As(err, &pageErr):
		page := pageErr.Page
		body.Page = &page
		writeJSON(w, http.StatusNotFound, body)
	case errors.Is(err, snippet.ErrNotExists):
		writeJSON(w, http.StatusNotFound, body)
	case errors.Is(err, snippet.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, body)
	case errors.Is(err, snippet.ErrInvalidTag), errors.Is(err, snippet.ErrInvalidID):
		writeJSON(w, http.StatusBadRequest, body)
	default:
		log.Printf("Error: request failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
