package partialjson

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiff(t *testing.T) {
	tests := []struct {
		name    string
		prev    any
		next    any
		want    any
		changed bool
	}{
		{
			name:    "string suffix",
			prev:    "pri",
			next:    "print(1)",
			want:    "nt(1)",
			changed: true,
		},
		{
			name: "equal strings",
			prev: "x",
			next: "x",
		},
		{
			name:    "string not a prefix",
			prev:    "abc",
			next:    "xyz",
			want:    Replace{Value: "xyz"},
			changed: true,
		},
		{
			name:    "new key",
			prev:    map[string]any{"a": "x"},
			next:    map[string]any{"a": "x", "b": json.Number("1")},
			want:    map[string]any{"b": json.Number("1")},
			changed: true,
		},
		{
			name:    "nested string growth",
			prev:    map[string]any{"a": map[string]any{"b": "he"}},
			next:    map[string]any{"a": map[string]any{"b": "hello"}},
			want:    map[string]any{"a": map[string]any{"b": "llo"}},
			changed: true,
		},
		{
			name: "equal maps",
			prev: map[string]any{"a": []any{"x"}},
			next: map[string]any{"a": []any{"x"}},
		},
		{
			name:    "array append",
			prev:    []any{"a"},
			next:    []any{"a", "b", "c"},
			want:    ArrayPatch{Offset: 1, Items: []any{"b", "c"}},
			changed: true,
		},
		{
			name:    "array last element grows",
			prev:    []any{"a", "b"},
			next:    []any{"a", "bc", "d"},
			want:    ArrayPatch{Offset: 1, Items: []any{"c", "d"}},
			changed: true,
		},
		{
			name:    "array earlier element changed",
			prev:    []any{"a", "b"},
			next:    []any{"z", "b"},
			want:    Replace{Value: []any{"z", "b"}},
			changed: true,
		},
		{
			name:    "array shrinks",
			prev:    []any{"a", "b"},
			next:    []any{"a"},
			want:    Replace{Value: []any{"a"}},
			changed: true,
		},
		{
			name:    "type change",
			prev:    "x",
			next:    json.Number("1"),
			want:    Replace{Value: json.Number("1")},
			changed: true,
		},
		{
			name:    "number change",
			prev:    json.Number("4"),
			next:    json.Number("42"),
			want:    Replace{Value: json.Number("42")},
			changed: true,
		},
		{
			name: "equal null",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := Diff(tt.prev, tt.next)
			assert.Equal(t, tt.changed, changed)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFold(t *testing.T) {
	tests := []struct {
		name  string
		acc   any
		patch any
		want  any
	}{
		{
			name:  "first value",
			patch: map[string]any{"code": "pri"},
			want:  map[string]any{"code": "pri"},
		},
		{
			name:  "string suffix under key",
			acc:   map[string]any{"code": "pri"},
			patch: map[string]any{"code": "nt(1)"},
			want:  map[string]any{"code": "print(1)"},
		},
		{
			name:  "array patch",
			acc:   []any{"a", "b"},
			patch: ArrayPatch{Offset: 1, Items: []any{"c", "d"}},
			want:  []any{"a", "bc", "d"},
		},
		{
			name:  "array patch onto nothing",
			patch: ArrayPatch{Offset: 0, Items: []any{"a"}},
			want:  []any{"a"},
		},
		{
			name:  "replace",
			acc:   map[string]any{"a": "x"},
			patch: map[string]any{"a": Replace{Value: json.Number("1")}},
			want:  map[string]any{"a": json.Number("1")},
		},
		{
			name:  "scalar",
			patch: true,
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fold(tt.acc, tt.patch))
		})
	}
}

func TestFold_InvertsDiff(t *testing.T) {
	values := []any{
		nil,
		"",
		"abc",
		json.Number("1"),
		map[string]any{},
		map[string]any{"a": "x"},
		map[string]any{"a": "xyz", "b": []any{json.Number("1")}},
		[]any{},
		[]any{"a", map[string]any{"k": "v"}},
		[]any{"a", map[string]any{"k": "vw"}, true},
	}

	for _, prev := range values {
		for _, next := range values {
			patch, changed := Diff(prev, next)
			if !changed {
				assert.Equal(t, next, prev)
				continue
			}
			assert.Equal(t, next, Fold(clone(prev), patch))
		}
	}
}

func TestFold_CopiesPatchValues(t *testing.T) {
	inner := []any{"a"}
	patch := map[string]any{"list": inner}

	got := Fold(nil, patch).(map[string]any)
	got["list"] = append(got["list"].([]any), "b")

	assert.Equal(t, []any{"a"}, inner)
}
