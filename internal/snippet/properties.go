package snippet

import (
	"fmt"
	"strings"
)

// FilterProperties constrains a listing to a language and a set of tags.
// Both constraints must hold; an empty field places no constraint.
type FilterProperties struct {
	Language string
	Tags     []string
}

// IsEmpty reports whether the filter places no constraint at all.
func (f FilterProperties) IsEmpty() bool {
	return strings.TrimSpace(f.Language) == "" && len(NormalizeTags(f.Tags)) == 0
}

// SortField names the field a listing is ordered by.
type SortField string

const (
	SortTitle     SortField = "TITLE"
	SortCreated   SortField = "CREATED"
	SortModified  SortField = "MODIFIED"
	SortRelevance SortField = "RELEVANCE"
)

// ParseSortField parses a sort field name case-insensitively.
func ParseSortField(s string) (SortField, error) {
	switch f := SortField(strings.ToUpper(strings.TrimSpace(s))); f {
	case SortTitle, SortCreated, SortModified, SortRelevance:
		return f, nil
	default:
		return "", fmt.Errorf("unknown sort field %q (valid: title, created, modified, relevance)", s)
	}
}

// SortProperties is a requested ordering.
type SortProperties struct {
	Field     SortField
	Ascending bool
}

// DefaultSort returns the ordering used when the caller did not ask for
// one: best match first for a search, newest first when browsing.
func DefaultSort(search string) SortProperties {
	if strings.TrimSpace(search) != "" {
		return SortProperties{Field: SortRelevance}
	}
	return SortProperties{Field: SortCreated}
}

func (p SortProperties) String() string {
	dir := "desc"
	if p.Ascending {
		dir = "asc"
	}
	return strings.ToLower(string(p.Field)) + " " + dir
}

// ParseSortProperties builds an ordering from user-facing field and order
// strings. Both empty yields nil so the caller's default applies; an order
// without a field applies to the default field for term.
func ParseSortProperties(term, field, order string) (*SortProperties, error) {
	field, order = strings.TrimSpace(field), strings.ToLower(strings.TrimSpace(order))
	if field == "" && order == "" {
		return nil, nil
	}

	props := DefaultSort(term)
	if field != "" {
		f, err := ParseSortField(field)
		if err != nil {
			return nil, err
		}
		props.Field = f
	}

	switch order {
	case "":
		// Titles default to A-Z, every other field to newest or best first.
		props.Ascending = props.Field == SortTitle
	case "asc":
		props.Ascending = true
	case "desc":
		props.Ascending = false
	default:
		return nil, fmt.Errorf("unknown sort order %q (valid: asc, desc)", order)
	}
	return &props, nil
}
