package typed

import (
	"maps"
	"slices"
	"strconv"
)

// Field is a single template entry. The value's classification becomes the
// declared kind of the key.
type Field struct {
	Key   string
	Value any
}

// F is shorthand for constructing a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Template lists the declared fields of a typed object. The order of the
// slice is the insertion order; see Fields for the enumeration order.
type Template []Field

// FromMap builds a template from a plain map. Map iteration order is not
// stable, so non-index keys are ordered lexically.
func FromMap(m map[string]any) Template {
	keys := slices.Sorted(maps.Keys(m))
	tpl := make(Template, 0, len(keys))
	for _, key := range keys {
		tpl = append(tpl, Field{Key: key, Value: m[key]})
	}
	return tpl
}

// Fields returns the template entries in enumeration order: canonical array
// index keys first in ascending numeric order, then the remaining keys in
// insertion order. A repeated key keeps its first position and its last value.
func (t Template) Fields() []Field {
	positions := make(map[string]int, len(t))
	fields := make([]Field, 0, len(t))
	for _, f := range t {
		if idx, seen := positions[f.Key]; seen {
			fields[idx].Value = f.Value
			continue
		}
		positions[f.Key] = len(fields)
		fields = append(fields, f)
	}

	var indices, named []Field
	for _, f := range fields {
		if _, ok := arrayIndex(f.Key); ok {
			indices = append(indices, f)
			continue
		}
		named = append(named, f)
	}
	slices.SortStableFunc(indices, func(a, b Field) int {
		ai, _ := arrayIndex(a.Key)
		bi, _ := arrayIndex(b.Key)
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	})
	return append(indices, named...)
}

// Keys returns the template keys in enumeration order.
func (t Template) Keys() []string {
	fields := t.Fields()
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.Key
	}
	return keys
}

const maxArrayIndex = 1<<32 - 2

// arrayIndex reports whether key is a canonical array index: decimal digits,
// no leading zero (except "0" itself) and at most 2^32-2.
func arrayIndex(key string) (uint64, bool) {
	if key == "" || (len(key) > 1 && key[0] == '0') {
		return 0, false
	}
	for i := 0; i < len(key); i++ {
		if key[i] < '0' || key[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseUint(key, 10, 64)
	if err != nil || n > maxArrayIndex {
		return 0, false
	}
	return n, true
}
