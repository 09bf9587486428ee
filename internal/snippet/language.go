package snippet

import (
	"sort"
	"strings"
)

// Language is an entry of the language table.
type Language struct {
	Name    string `json:"name"`
	SortKey int    `json:"sort_key"`
}

// PlainText is the language assigned when none is given.
const PlainText = "Plain Text"

// Other is the catch-all language, always listed last among known ones.
const Other = "Other"

// languageOrder is the single source of truth for language ordering.
// Plain text leads, mainstream languages follow alphabetically, Other closes.
var languageOrder = map[string]int{
	PlainText:    0,
	"Bash":       10,
	"C":          20,
	"C#":         30,
	"C++":        40,
	"CSS":        50,
	"Go":         60,
	"HTML":       70,
	"Java":       80,
	"JavaScript": 90,
	"JSON":       100,
	"Kotlin":     110,
	"Markdown":   120,
	"PHP":        130,
	"Python":     140,
	"Ruby":       150,
	"Rust":       160,
	"SQL":        170,
	"Swift":      180,
	"TypeScript": 190,
	"XML":        200,
	"YAML":       210,
	Other:        1000,
}

// unknownSortKey places languages missing from the table after Other.
const unknownSortKey = 2000

// LanguageSortKey returns the position of name in the language order.
func LanguageSortKey(name string) int {
	if key, ok := languageOrder[name]; ok {
		return key
	}
	return unknownSortKey
}

// CanonicalLanguage maps a case-insensitive language name onto its table
// spelling. Unknown names are returned trimmed; an empty name becomes PlainText.
func CanonicalLanguage(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return PlainText
	}
	for known := range languageOrder {
		if strings.EqualFold(known, name) {
			return known
		}
	}
	return name
}

// Languages returns every known language in table order.
func Languages() []Language {
	out := make([]Language, 0, len(languageOrder))
	for name, key := range languageOrder {
		out = append(out, Language{Name: name, SortKey: key})
	}
	SortLanguages(out)
	return out
}

// SortLanguages orders languages by sort key, then by name.
func SortLanguages(langs []Language) {
	sort.SliceStable(langs, func(i, j int) bool {
		if langs[i].SortKey != langs[j].SortKey {
			return langs[i].SortKey < langs[j].SortKey
		}
		return langs[i].Name < langs[j].Name
	})
}
