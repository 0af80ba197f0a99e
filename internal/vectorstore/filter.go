package vectorstore

import (
	"github.com/google/uuid"
)

type Condition struct {
	Field string
	Value any // string, int or bool
}

// Filter is a conjunction of exact-match payload conditions.
type Filter struct {
	Must []Condition
}

func Match(field string, value any) Filter {
	return Filter{Must: []Condition{{Field: field, Value: value}}}
}

func (f Filter) And(field string, value any) Filter {
	must := make([]Condition, len(f.Must), len(f.Must)+1)
	copy(must, f.Must)
	return Filter{Must: append(must, Condition{Field: field, Value: value})}
}

func (f Filter) Empty() bool { return len(f.Must) == 0 }

// ChapterUserFilter scopes a query to one user's chunks in one chapter.
func ChapterUserFilter(chapterID, userID uuid.UUID) Filter {
	return Match(PayloadChapterID, chapterID.String()).And(PayloadUserID, userID.String())
}

func (f Filter) qdrant() map[string]any {
	if f.Empty() {
		return nil
	}
	must := make([]any, 0, len(f.Must))
	for _, c := range f.Must {
		must = append(must, qdrantMatchCondition(c.Field, c.Value))
	}
	return map[string]any{"must": must}
}

// document returns the filter as a JSON object for containment queries.
func (f Filter) document() map[string]any {
	out := make(map[string]any, len(f.Must))
	for _, c := range f.Must {
		out[c.Field] = c.Value
	}
	return out
}

func qdrantMatchCondition(key string, value any) map[string]any {
	return map[string]any{
		"key": key,
		"match": map[string]any{
			"value": value,
		},
	}
}
