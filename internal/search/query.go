package search

import (
	"strings"

	"github.com/blevesearch/bleve/v2"
	blevesearch "github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/mvp-joe/snipdex/internal/snippet"
)

// Relative weights of the text fields. A title match outranks a
// description match, which outranks a code match.
const (
	titleBoost       = 3.0
	descriptionBoost = 1.5
	codeBoost        = 1.0
)

// BuildQuery composes the query for a free-text term and structured
// filters: the conjunction of a text clause and a filter clause, each of
// which matches everything when empty. Equal inputs always build
// equivalent queries.
func BuildQuery(term string, filter snippet.FilterProperties) query.Query {
	return bleve.NewConjunctionQuery(textQuery(term), filterQuery(filter))
}

// textQuery matches term against title, description, and code.
func textQuery(term string) query.Query {
	term = strings.TrimSpace(term)
	if term == "" {
		return bleve.NewMatchAllQuery()
	}

	title := bleve.NewMatchQuery(term)
	title.SetField(FieldTitle)
	title.SetBoost(titleBoost)

	description := bleve.NewMatchQuery(term)
	description.SetField(FieldDescription)
	description.SetBoost(descriptionBoost)

	code := bleve.NewMatchQuery(term)
	code.SetField(FieldCode)
	code.SetBoost(codeBoost)

	return bleve.NewDisjunctionQuery(title, description, code)
}

// filterQuery requires the language (if any) and every requested tag.
func filterQuery(filter snippet.FilterProperties) query.Query {
	if filter.IsEmpty() {
		return bleve.NewMatchAllQuery()
	}

	var clauses []query.Query
	if lang := strings.TrimSpace(filter.Language); lang != "" {
		q := bleve.NewTermQuery(lang)
		q.SetField(FieldLanguage)
		clauses = append(clauses, q)
	}
	// Normalized tags are sorted, so clause order is stable.
	for _, tag := range snippet.NormalizeTags(filter.Tags) {
		q := bleve.NewTermQuery(tag)
		q.SetField(FieldTags)
		clauses = append(clauses, q)
	}
	return bleve.NewConjunctionQuery(clauses...)
}

// BuildSort maps sort properties onto a bleve sort order. Every order ends
// with the document id so that ties are broken the same way each time.
func BuildSort(props snippet.SortProperties) blevesearch.SortOrder {
	desc := !props.Ascending
	tiebreak := &blevesearch.SortDocID{}

	switch props.Field {
	case snippet.SortTitle:
		return blevesearch.SortOrder{
			&blevesearch.SortField{Field: FieldTitleSort, Desc: desc, Type: blevesearch.SortFieldAsString},
			tiebreak,
		}
	case snippet.SortCreated:
		return blevesearch.SortOrder{
			&blevesearch.SortField{Field: FieldCreated, Desc: desc, Type: blevesearch.SortFieldAsDate},
			tiebreak,
		}
	case snippet.SortModified:
		return blevesearch.SortOrder{
			&blevesearch.SortField{
				Field:   FieldModified,
				Desc:    desc,
				Type:    blevesearch.SortFieldAsDate,
				Missing: blevesearch.SortFieldMissingLast,
			},
			tiebreak,
		}
	default:
		return blevesearch.SortOrder{
			&blevesearch.SortScore{Desc: desc},
			tiebreak,
		}
	}
}
