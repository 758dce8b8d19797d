package value

import (
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Lookup resolves a dotted path against a Go map without converting the
// whole map first. It returns false when any segment is missing or when a
// segment is applied to nil. An empty path resolves to nothing.
func Lookup(root map[string]any, path string) (any, bool) {
	if root == nil || path == "" {
		return nil, false
	}
	var cur any = root
	for _, seg := range strings.Split(path, ".") {
		if cur == nil {
			return nil, false
		}
		next, ok := member(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func member(cur any, name string) (any, bool) {
	switch c := cur.(type) {
	case map[string]any:
		v, ok := c[name]
		return v, ok
	case map[string]string:
		v, ok := c[name]
		return v, ok
	case []any:
		if name == "length" {
			return len(c), true
		}
		i, err := strconv.Atoi(name)
		if err != nil || i < 0 || i >= len(c) {
			return nil, false
		}
		return c[i], true
	case string:
		if name == "length" {
			return utf8.RuneCountInString(c), true
		}
		return nil, false
	case Value:
		m := c.Member(name)
		if m.Kind() == Undefined {
			return nil, false
		}
		return m, true
	}

	rv := reflect.ValueOf(cur)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Slice, reflect.Array:
		if name == "length" {
			return rv.Len(), true
		}
		i, err := strconv.Atoi(name)
		if err != nil || i < 0 || i >= rv.Len() {
			return nil, false
		}
		return rv.Index(i).Interface(), true
	}

	m := Of(cur).Member(name)
	if m.Kind() == Undefined {
		return nil, false
	}
	return m.Interface(), true
}
