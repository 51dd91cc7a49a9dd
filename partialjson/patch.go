package partialjson

import (
	"reflect"
	"strings"
)

// A patch is one of:
//
//   - map[string]any: new keys carry whole values, existing keys carry
//     patches for their current value;
//   - string: appended to the current string, or the whole value when
//     there is none;
//   - ArrayPatch: element patches and appended elements;
//   - Replace: the value replaces whatever was there;
//   - any other decoded JSON value: the whole value.

// ArrayPatch patches an array. Items[0] applies at Offset; an item whose
// index is past the end of the array is appended whole.
type ArrayPatch struct {
	Offset int
	Items  []any
}

// Replace replaces the current value.
type Replace struct {
	Value any
}

// Diff returns the patch that turns prev into next. The bool is false when
// nothing changed.
func Diff(prev, next any) (any, bool) {
	switch p := prev.(type) {
	case map[string]any:
		n, ok := next.(map[string]any)
		if !ok || !hasKeys(n, p) {
			return Replace{Value: next}, true
		}
		patch := make(map[string]any)
		for key, nv := range n {
			pv, exists := p[key]
			if !exists {
				patch[key] = nv
				continue
			}
			if sub, changed := Diff(pv, nv); changed {
				patch[key] = sub
			}
		}
		if len(patch) == 0 {
			return nil, false
		}
		return patch, true

	case string:
		n, ok := next.(string)
		if !ok {
			return Replace{Value: next}, true
		}
		if n == p {
			return nil, false
		}
		if strings.HasPrefix(n, p) {
			return n[len(p):], true
		}
		return Replace{Value: next}, true

	case []any:
		n, ok := next.([]any)
		if !ok || len(n) < len(p) {
			return Replace{Value: next}, true
		}
		return diffArray(p, n)
	}

	if reflect.DeepEqual(prev, next) {
		return nil, false
	}
	return Replace{Value: next}, true
}

func hasKeys(m, keys map[string]any) bool {
	for k := range keys {
		if _, ok := m[k]; !ok {
			return false
		}
	}
	return true
}

// diffArray diffs arrays that only grow at the end and where only the last
// element may still change.
func diffArray(prev, next []any) (any, bool) {
	last := len(prev) - 1
	for i := 0; i < last; i++ {
		if !reflect.DeepEqual(prev[i], next[i]) {
			return Replace{Value: next}, true
		}
	}

	patch := ArrayPatch{Offset: len(prev)}
	if last >= 0 {
		if sub, changed := Diff(prev[last], next[last]); changed {
			patch.Offset = last
			patch.Items = append(patch.Items, sub)
		}
	}
	patch.Items = append(patch.Items, next[len(prev):]...)

	if len(patch.Items) == 0 {
		return nil, false
	}
	return patch, true
}

// Fold applies patch to acc and returns the result. Maps and slices in acc
// may be modified in place; values taken from patch are copied.
func Fold(acc, patch any) any {
	switch p := patch.(type) {
	case Replace:
		return clone(p.Value)

	case map[string]any:
		m, ok := acc.(map[string]any)
		if !ok {
			m = make(map[string]any, len(p))
		}
		for key, v := range p {
			if cur, exists := m[key]; exists {
				m[key] = Fold(cur, v)
			} else {
				m[key] = clone(v)
			}
		}
		return m

	case string:
		if s, ok := acc.(string); ok {
			return s + p
		}
		return p

	case ArrayPatch:
		a, _ := acc.([]any)
		if a == nil {
			a = []any{}
		}
		for i, item := range p.Items {
			idx := p.Offset + i
			if idx < len(a) {
				a[idx] = Fold(a[idx], item)
			} else {
				a = append(a, clone(item))
			}
		}
		return a
	}

	return clone(patch)
}

func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = clone(e)
		}
		return m
	case []any:
		a := make([]any, len(t))
		for i, e := range t {
			a[i] = clone(e)
		}
		return a
	}
	return v
}
