package vector

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrAmbiguousFilter is returned when a deletion filter carries no concrete
// value. Deletion is the one fail-loud path: an empty or all-nil filter
// would silently wipe a collection, and that loss is irreversible.
var ErrAmbiguousFilter = errors.New("filter has no concrete value; refusing ambiguous delete")

// Filter is a conjunction/disjunction tree over metadata. Plain keys match
// by equality; "$and"/"$or" wrap lists of sub-filters; a value may also be
// an operator map like {"$gte": 5} for numeric comparison.
//
//	Filter{"user_id": "u1", "$or": []Filter{{"type": "concept"}, {"type": "fact"}}}
type Filter map[string]any

// Validate reports whether the filter is safe to use for deletion: it must
// contain at least one concrete non-nil value, including inside $and/$or
// wrappers.
func (f Filter) Validate() error {
	if !hasConcreteValue(f) {
		return ErrAmbiguousFilter
	}
	return nil
}

func hasConcreteValue(f Filter) bool {
	for key, value := range f {
		if key == "$and" || key == "$or" {
			for _, child := range childFilters(value) {
				if hasConcreteValue(child) {
					return true
				}
			}
			continue
		}
		if concreteLeaf(value) {
			return true
		}
	}
	return false
}

func concreteLeaf(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case map[string]any:
		for _, opVal := range v {
			if opVal != nil {
				return true
			}
		}
		return false
	case Filter:
		return hasConcreteValue(v)
	default:
		return true
	}
}

// childFilters normalizes the value of an $and/$or key into a list of
// filters. JSON decoding yields []any of map[string]any; native callers
// pass []Filter directly.
func childFilters(value any) []Filter {
	switch list := value.(type) {
	case []Filter:
		return list
	case []any:
		out := make([]Filter, 0, len(list))
		for _, item := range list {
			switch m := item.(type) {
			case Filter:
				out = append(out, m)
			case map[string]any:
				out = append(out, Filter(m))
			}
		}
		return out
	case []map[string]any:
		out := make([]Filter, 0, len(list))
		for _, m := range list {
			out = append(out, Filter(m))
		}
		return out
	default:
		return nil
	}
}

// Matches evaluates the filter against an entry's metadata. A nil or empty
// filter matches everything (queries may be unscoped; only Delete rejects
// that). Unknown operator keys never match.
func (f Filter) Matches(md map[string]string) bool {
	for key, value := range f {
		switch key {
		case "$and":
			for _, child := range childFilters(value) {
				if !child.Matches(md) {
					return false
				}
			}
		case "$or":
			children := childFilters(value)
			if len(children) == 0 {
				continue
			}
			matched := false
			for _, child := range children {
				if child.Matches(md) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		default:
			if !matchLeaf(md, key, value) {
				return false
			}
		}
	}
	return true
}

func matchLeaf(md map[string]string, key string, value any) bool {
	stored, present := md[key]

	switch v := value.(type) {
	case nil:
		// nil means "field absent": meaningful for matching, never
		// concrete enough for deletion (see Validate).
		return !present
	case map[string]any:
		if !present {
			return false
		}
		for op, operand := range v {
			if !compareNumeric(stored, op, operand) {
				return false
			}
		}
		return true
	default:
		return present && stored == leafString(v)
	}
}

func compareNumeric(stored, op string, operand any) bool {
	lhs, err := strconv.ParseFloat(stored, 64)
	if err != nil {
		return false
	}
	rhs, ok := toFloat(operand)
	if !ok {
		return false
	}
	switch op {
	case "$gt":
		return lhs > rhs
	case "$gte":
		return lhs >= rhs
	case "$lt":
		return lhs < rhs
	case "$lte":
		return lhs <= rhs
	case "$eq":
		return lhs == rhs
	case "$ne":
		return lhs != rhs
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func leafString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
