package filters

import (
	"sort"
	"strconv"
	"strings"
)

// Op is a JSON condition comparison operator.
type Op string

const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpContains Op = "contains"
	OpIn       Op = "in"
)

// Condition tests the value at a dotted path inside a JSON document.
type Condition struct {
	Path  string
	Op    Op
	Value any
}

// JSONQuery selects, sorts, and paginates a set of JSON documents.
type JSONQuery struct {
	Conditions []Condition
	SortBy     string // dotted path; "" means no sort
	SortDesc   bool
	Offset     int
	Limit      int // 0 means unlimited
}

// FilterJSON applies q to docs and returns the matching, sorted, paginated
// subset. docs is not mutated.
func FilterJSON(docs []map[string]any, q JSONQuery) []map[string]any {
	matched := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		if matchesAll(doc, q.Conditions) {
			matched = append(matched, doc)
		}
	}

	if q.SortBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			less := compareLess(getDottedPath(matched[i], q.SortBy), getDottedPath(matched[j], q.SortBy))
			if q.SortDesc {
				return !less && !valuesEqual(getDottedPath(matched[i], q.SortBy), getDottedPath(matched[j], q.SortBy))
			}
			return less
		})
	}

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	return matched
}

func matchesAll(doc map[string]any, conds []Condition) bool {
	for _, c := range conds {
		if !matchesOne(doc, c) {
			return false
		}
	}
	return true
}

func matchesOne(doc map[string]any, c Condition) bool {
	actual := getDottedPath(doc, c.Path)
	switch c.Op {
	case OpEq:
		return valuesEqual(actual, c.Value)
	case OpNe:
		return !valuesEqual(actual, c.Value)
	case OpGt:
		return compareLess(c.Value, actual)
	case OpGte:
		return compareLess(c.Value, actual) || valuesEqual(actual, c.Value)
	case OpLt:
		return compareLess(actual, c.Value)
	case OpLte:
		return compareLess(actual, c.Value) || valuesEqual(actual, c.Value)
	case OpContains:
		return contains(actual, c.Value)
	case OpIn:
		return containsIn(c.Value, actual)
	default:
		return false
	}
}

// getDottedPath walks doc following the dot-separated path, returning nil
// if any segment is missing or not an object.
func getDottedPath(doc map[string]any, path string) any {
	if path == "" {
		return doc
	}
	parts := strings.Split(path, ".")
	var cur any = doc
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[p]
		if !ok {
			return nil
		}
	}
	return cur
}

func valuesEqual(a, b any) bool {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

// compareLess reports whether a < b, treating both as numbers when
// possible and falling back to string comparison otherwise.
func compareLess(a, b any) bool {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af < bf
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as < bs
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func contains(actual, needle any) bool {
	switch a := actual.(type) {
	case string:
		s, ok := needle.(string)
		return ok && strings.Contains(a, s)
	case []any:
		for _, v := range a {
			if valuesEqual(v, needle) {
				return true
			}
		}
	}
	return false
}

func containsIn(list, needle any) bool {
	items, ok := list.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if valuesEqual(item, needle) {
			return true
		}
	}
	return false
}
