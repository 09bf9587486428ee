package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/mvp-joe/snipdex/internal/snippet"
)

// SnippetExt is the file extension of snippet files.
const SnippetExt = ".yaml"

const (
	tempPrefix    = ".tmp-"
	filePerm      = 0644
	directoryPerm = 0755
)

// ItemError reports a failure to read a single stored snippet. Listing
// continues past it.
type ItemError struct {
	ID  string
	Err error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("snippet %s: %v", e.ID, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// DocumentStore persists one yaml file per snippet under a directory.
// It is the authoritative copy of every snippet.
type DocumentStore struct {
	fs  afero.Fs
	dir string
}

// NewDocumentStore opens (creating if needed) the snippets directory on fsys
// and removes temp files left behind by an interrupted write.
func NewDocumentStore(fsys afero.Fs, dir string) (*DocumentStore, error) {
	if err := fsys.MkdirAll(dir, directoryPerm); err != nil {
		return nil, fmt.Errorf("failed to create snippets directory: %w", err)
	}

	s := &DocumentStore{fs: fsys, dir: dir}
	if err := s.Sweep(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the snippets directory.
func (s *DocumentStore) Dir() string {
	return s.dir
}

// Sweep removes leftover temp files from interrupted writes.
func (s *DocumentStore) Sweep() error {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return fmt.Errorf("failed to list snippets directory: %w", err)
	}
	for _, info := range infos {
		if info.IsDir() || !strings.HasPrefix(info.Name(), tempPrefix) {
			continue
		}
		if err := s.fs.Remove(filepath.Join(s.dir, info.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove temp file %s: %w", info.Name(), err)
		}
	}
	return nil
}

// Create writes a new snippet. Fails with snippet.ErrAlreadyExists if a
// file for the id is present.
func (s *DocumentStore) Create(sn *snippet.Snippet) error {
	path, err := s.path(sn.ID)
	if err != nil {
		return err
	}

	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return fmt.Errorf("failed to stat snippet %s: %w", sn.ID, err)
	}
	if exists {
		return fmt.Errorf("snippet %s: %w", sn.ID, snippet.ErrAlreadyExists)
	}

	return s.write(sn, path)
}

// Read loads a snippet. Fails with snippet.ErrNotExists if absent.
func (s *DocumentStore) Read(id string) (*snippet.Snippet, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	return s.readFile(id, path)
}

// Update overwrites an existing snippet atomically. Fails with
// snippet.ErrNotExists if absent.
func (s *DocumentStore) Update(sn *snippet.Snippet) error {
	path, err := s.path(sn.ID)
	if err != nil {
		return err
	}

	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return fmt.Errorf("failed to stat snippet %s: %w", sn.ID, err)
	}
	if !exists {
		return fmt.Errorf("snippet %s: %w", sn.ID, snippet.ErrNotExists)
	}

	return s.write(sn, path)
}

// Delete removes a snippet. Fails with snippet.ErrNotExists if absent.
func (s *DocumentStore) Delete(id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}

	if err := s.fs.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("snippet %s: %w", id, snippet.ErrNotExists)
		}
		return fmt.Errorf("failed to delete snippet %s: %w", id, err)
	}
	return nil
}

// Exists reports whether a snippet file is present for id.
func (s *DocumentStore) Exists(id string) bool {
	path, err := s.path(id)
	if err != nil {
		return false
	}
	ok, err := afero.Exists(s.fs, path)
	return err == nil && ok
}

// All returns a lazy sequence over every stored snippet. Each range
// re-lists the directory, so the sequence can be restarted; files are
// read one at a time as the consumer advances.
//
// A snippet that cannot be read or decoded is yielded as an *ItemError
// and iteration continues. A failure to list the directory is yielded as
// a plain error and ends the sequence.
func (s *DocumentStore) All() iter.Seq2[*snippet.Snippet, error] {
	return func(yield func(*snippet.Snippet, error) bool) {
		infos, err := s.list()
		if err != nil {
			yield(nil, err)
			return
		}

		for _, info := range infos {
			id := strings.TrimSuffix(info.Name(), SnippetExt)
			sn, err := s.readFile(id, filepath.Join(s.dir, info.Name()))
			if errors.Is(err, snippet.ErrNotExists) {
				// Deleted after the directory was listed.
				continue
			}
			if err != nil {
				if !yield(nil, &ItemError{ID: id, Err: err}) {
					return
				}
				continue
			}
			if !yield(sn, nil) {
				return
			}
		}
	}
}

// IDs returns the id of every stored snippet without reading content.
func (s *DocumentStore) IDs() ([]string, error) {
	infos, err := s.list()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(infos))
	for _, info := range infos {
		ids = append(ids, strings.TrimSuffix(info.Name(), SnippetExt))
	}
	return ids, nil
}

// Count returns the number of stored snippets.
func (s *DocumentStore) Count() (int, error) {
	infos, err := s.list()
	if err != nil {
		return 0, err
	}
	return len(infos), nil
}

// LatestChange returns the most recent modification time of any snippet
// file, or the zero time for an empty store.
func (s *DocumentStore) LatestChange() (time.Time, error) {
	infos, err := s.list()
	if err != nil {
		return time.Time{}, err
	}
	var latest time.Time
	for _, info := range infos {
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}
	return latest, nil
}

// list returns the file infos of snippet files, sorted by name.
func (s *DocumentStore) list() ([]os.FileInfo, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list snippets directory: %w", err)
	}

	out := infos[:0]
	for _, info := range infos {
		if isSnippetFile(info) {
			out = append(out, info)
		}
	}
	return out, nil
}

func isSnippetFile(info os.FileInfo) bool {
	name := info.Name()
	return !info.IsDir() && !strings.HasPrefix(name, ".") && strings.HasSuffix(name, SnippetExt)
}

func (s *DocumentStore) path(id string) (string, error) {
	if err := snippet.ValidateID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, id+SnippetExt), nil
}

func (s *DocumentStore) readFile(id, path string) (*snippet.Snippet, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("snippet %s: %w", id, snippet.ErrNotExists)
		}
		return nil, fmt.Errorf("failed to read snippet %s: %w", id, err)
	}

	var sn snippet.Snippet
	if err := yaml.Unmarshal(data, &sn); err != nil {
		return nil, fmt.Errorf("failed to decode snippet %s: %w", id, err)
	}
	if sn.ID != id {
		return nil, fmt.Errorf("snippet file %s carries id %q", id, sn.ID)
	}
	return &sn, nil
}

func (s *DocumentStore) write(sn *snippet.Snippet, path string) error {
	data, err := yaml.Marshal(sn)
	if err != nil {
		return fmt.Errorf("failed to encode snippet %s: %w", sn.ID, err)
	}
	if err := writeAtomic(s.fs, path, tempPrefix+sn.ID+"-", data); err != nil {
		return fmt.Errorf("failed to write snippet %s: %w", sn.ID, err)
	}
	return nil
}

// writeAtomic writes data to a temp file next to path, syncs it, and
// renames it over path.
func writeAtomic(fsys afero.Fs, path, pattern string, data []byte) error {
	tmp, err := afero.TempFile(fsys, filepath.Dir(path), pattern+"*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		fsys.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		fsys.Remove(tmpName)
		return err
	}
	if err := fsys.Chmod(tmpName, filePerm); err != nil {
		fsys.Remove(tmpName)
		return err
	}
	if err := fsys.Rename(tmpName, path); err != nil {
		fsys.Remove(tmpName)
		return err
	}
	return nil
}
