package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/mvp-joe/snipdex/internal/snippet"
)

// TagRegistry is the flat set of known tags, persisted as a yaml list.
type TagRegistry struct {
	fs   afero.Fs
	path string

	mu   sync.RWMutex
	tags map[string]bool
}

type tagFile struct {
	Tags []string `yaml:"tags"`
}

// NewTagRegistry loads the registry at path, starting empty if the file
// does not exist yet.
func NewTagRegistry(fsys afero.Fs, path string) (*TagRegistry, error) {
	r := &TagRegistry{fs: fsys, path: path, tags: make(map[string]bool)}

	data, err := afero.ReadFile(fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tag registry: %w", err)
	}

	var tf tagFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("failed to decode tag registry: %w", err)
	}
	for _, tag := range tf.Tags {
		r.tags[tag] = true
	}
	return r, nil
}

// Tags returns every registered tag in sorted order.
func (r *TagRegistry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.tags))
	for tag := range r.tags {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Has reports whether tag is registered.
func (r *TagRegistry) Has(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tags[tag]
}

// Create registers a tag. Registering a known tag is a no-op.
func (r *TagRegistry) Create(tag string) error {
	return r.Register(tag)
}

// Register adds every given tag, validating each, and persists the set
// once if anything changed.
func (r *TagRegistry) Register(tags ...string) error {
	for _, tag := range tags {
		if err := snippet.ValidateTag(tag); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var added []string
	for _, tag := range tags {
		if !r.tags[tag] {
			r.tags[tag] = true
			added = append(added, tag)
		}
	}
	if len(added) == 0 {
		return nil
	}

	if err := r.persistLocked(); err != nil {
		for _, tag := range added {
			delete(r.tags, tag)
		}
		return err
	}
	return nil
}

func (r *TagRegistry) persistLocked() error {
	tf := tagFile{Tags: make([]string, 0, len(r.tags))}
	for tag := range r.tags {
		tf.Tags = append(tf.Tags, tag)
	}
	sort.Strings(tf.Tags)

	data, err := yaml.Marshal(&tf)
	if err != nil {
		return fmt.Errorf("failed to encode tag registry: %w", err)
	}
	if err := r.fs.MkdirAll(filepath.Dir(r.path), directoryPerm); err != nil {
		return fmt.Errorf("failed to create tag registry directory: %w", err)
	}
	if err := writeAtomic(r.fs, r.path, tempPrefix+"tags-", data); err != nil {
		return fmt.Errorf("failed to write tag registry: %w", err)
	}
	return nil
}
