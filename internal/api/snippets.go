package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mvp-joe/snipdex/internal/snippet"
	"github.com/mvp-joe/snipdex/internal/snippets"
)

// snippetBody is the writable part of a snippet.
type snippetBody struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Code        string   `json:"code"`
	Language    string   `json:"language"`
	Tags        []string `json:"tags"`
}

func (s *Server) handleListSnippets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	term := q.Get("search")

	page := 1
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, fmt.Errorf("invalid page %q", raw))
			return
		}
		page = n
	}

	sort, err := snippet.ParseSortProperties(term, q.Get("sort"), q.Get("order"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	filter := snippet.FilterProperties{
		Language: q.Get("language"),
		Tags:     splitTags(q["tags"]),
	}

	res, err := s.snippets.List(r.Context(), term, filter, sort, page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// splitTags accepts both ?tags=a,b and repeated ?tags=a&tags=b.
func splitTags(values []string) []string {
	var out []string
	for _, v := range values {
		for _, tag := range strings.Split(v, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				out = append(out, tag)
			}
		}
	}
	return out
}

func (s *Server) handleCreateSnippet(w http.ResponseWriter, r *http.Request) {
	var body snippetBody
	if err := decodeJSON(r, &body); err != nil {
		writeBadRequest(w, fmt.Errorf("invalid snippet: %w", err))
		return
	}
	if strings.TrimSpace(body.Title) == "" {
		writeBadRequest(w, errors.New("title is required"))
		return
	}

	sn, err := s.snippets.Create(r.Context(), snippets.Draft{
		Title:       body.Title,
		Description: body.Description,
		Code:        body.Code,
		Language:    body.Language,
		Tags:        body.Tags,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sn)
}

func (s *Server) handleReadSnippet(w http.ResponseWriter, r *http.Request) {
	sn, err := s.snippets.Read(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sn)
}

func (s *Server) handleUpdateSnippet(w http.ResponseWriter, r *http.Request) {
	var body snippetBody
	if err := decodeJSON(r, &body); err != nil {
		writeBadRequest(w, fmt.Errorf("invalid snippet: %w", err))
		return
	}
	if strings.TrimSpace(body.Title) == "" {
		writeBadRequest(w, errors.New("title is required"))
		return
	}

	sn, err := s.snippets.Update(r.Context(), &snippet.Snippet{
		ID:          chi.URLParam(r, "id"),
		Title:       body.Title,
		Description: body.Description,
		Code:        body.Code,
		Language:    body.Language,
		Tags:        body.Tags,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sn)
}

func (s *Server) handleDeleteSnippet(w http.ResponseWriter, r *http.Request) {
	if err := s.snippets.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTags(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"tags": s.snippets.Tags()})
}

func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Tag string `json:"tag"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeBadRequest(w, fmt.Errorf("invalid tag request: %w", err))
		return
	}
	if err := s.snippets.CreateTag(body.Tag); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"tag": strings.TrimSpace(body.Tag)})
}

func (s *Server) handleListLanguages(w http.ResponseWriter, _ *http.Request) {
	langs := s.snippets.Languages()
	names := make([]string, 0, len(langs))
	for _, l := range langs {
		names = append(names, l.Name)
	}
	writeJSON(w, http.StatusOK, map[string][]string{"languages": names})
}
