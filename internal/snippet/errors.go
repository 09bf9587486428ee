package snippet

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	// ErrNotExists indicates a snippet, tag, or synchronization run is absent
	ErrNotExists = errors.New("not exists")

	// ErrAlreadyExists indicates a snippet with the same id is already stored
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidID indicates an id that cannot name a snippet file
	ErrInvalidID = errors.New("invalid snippet id")

	// ErrInvalidTag indicates a structurally invalid tag
	ErrInvalidTag = errors.New("invalid tag")

	// ErrPageNotExists indicates a page number outside the valid range
	ErrPageNotExists = errors.New("page not exists")
)

// MaxTagLength bounds the length of a single tag.
const MaxTagLength = 64

// PageNotExistsError carries the page number that was requested.
type PageNotExistsError struct {
	Page       int
	TotalPages int
}

func (e *PageNotExistsError) Error() string {
	return fmt.Sprintf("page %d not exists (total pages: %d)", e.Page, e.TotalPages)
}

// Is makes errors.Is(err, ErrPageNotExists) match.
func (e *PageNotExistsError) Is(target error) bool {
	return target == ErrPageNotExists
}

// ValidateID checks that id can be used as a file name inside the
// snippets directory.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if strings.Trim(id, ".") == "" || strings.HasPrefix(id, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidID, id)
	}
	return nil
}

// ValidateTag checks the structure of a tag: non-empty, bounded length,
// no whitespace or commas.
func ValidateTag(tag string) error {
	if tag == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTag)
	}
	if len(tag) > MaxTagLength {
		return fmt.Errorf("%w: %q longer than %d characters", ErrInvalidTag, tag, MaxTagLength)
	}
	for _, r := range tag {
		if unicode.IsSpace(r) || r == ',' {
			return fmt.Errorf("%w: %q contains whitespace or comma", ErrInvalidTag, tag)
		}
	}
	return nil
}
