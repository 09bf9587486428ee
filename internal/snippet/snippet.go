// Package snippet defines the snippet data model shared by the store, the
// search index, and the use cases.
package snippet

import (
	"sort"
	"strings"
	"time"
)

// Snippet is a single stored code snippet. Identity is by ID only.
type Snippet struct {
	ID          string     `yaml:"id" json:"id"`
	Title       string     `yaml:"title" json:"title"`
	Description string     `yaml:"description,omitempty" json:"description"`
	Code        string     `yaml:"code" json:"code"`
	Language    string     `yaml:"language" json:"language"`
	Tags        []string   `yaml:"tags,omitempty" json:"tags"`
	Created     time.Time  `yaml:"created" json:"created"`
	Modified    *time.Time `yaml:"modified,omitempty" json:"modified,omitempty"`
}

// Revision returns the timestamp of the latest change to the snippet:
// Modified when set, otherwise Created.
func (s *Snippet) Revision() time.Time {
	if s.Modified != nil {
		return *s.Modified
	}
	return s.Created
}

// Clone returns a deep copy of the snippet.
func (s *Snippet) Clone() *Snippet {
	c := *s
	if s.Tags != nil {
		c.Tags = append([]string(nil), s.Tags...)
	}
	if s.Modified != nil {
		m := *s.Modified
		c.Modified = &m
	}
	return &c
}

// NormalizeTags trims, deduplicates, and sorts tags. Empty tags are dropped.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	sort.Strings(out)

	if len(out) == 0 {
		return nil
	}
	return out
}

// HasTags reports whether the snippet carries every tag in want.
func (s *Snippet) HasTags(want []string) bool {
	have := make(map[string]bool, len(s.Tags))
	for _, t := range s.Tags {
		have[t] = true
	}
	for _, t := range want {
		if !have[t] {
			return false
		}
	}
	return true
}
