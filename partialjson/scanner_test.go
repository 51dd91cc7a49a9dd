package partialjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanner_Repair(t *testing.T) {
	tests := []struct {
		in       string
		want     string
		complete bool
		ok       bool
	}{
		{in: `{"co`, want: `{}`, ok: true},
		{in: `{"code": "pri`, want: `{"code": "pri"}`, ok: true},
		{in: `{"a": 1`, want: `{}`, ok: true},
		{in: `{"a": 1,`, want: `{"a": 1}`, ok: true},
		{in: `{"a": tr`, want: `{}`, ok: true},
		{in: `{"a": true`, want: `{"a": true}`, ok: true},
		{in: `{"a": "x", `, want: `{"a": "x"}`, ok: true},
		{in: `{"a": "x", "b"`, want: `{"a": "x"}`, ok: true},
		{in: `{"a": "x", "b":`, want: `{"a": "x"}`, ok: true},
		{in: `[1, 2`, want: `[1]`, ok: true},
		{in: `["a\`, want: `["a"]`, ok: true},
		{in: `["a\u00`, want: `["a"]`, ok: true},
		{in: `["\ud83d`, want: `[""]`, ok: true},
		{in: `["😀`, want: `["😀"]`, ok: true},
		{in: `{"a": {"b": [`, want: `{"a": {"b": []}}`, ok: true},
		{in: `{"a": {"b": ["c"`, want: `{"a": {"b": ["c"]}}`, ok: true},
		{in: `"abc`, want: `"abc"`, ok: true},
		{in: `12`, want: `12`, complete: true, ok: true},
		{in: `12.`, ok: false},
		{in: `tru`, ok: false},
		{in: `true`, want: `true`, complete: true, ok: true},
		{in: `{"a": 1}`, want: `{"a": 1}`, complete: true, ok: true},
		{in: `  `, ok: false},
		{in: `{"a" 1`, ok: false},
		{in: `{} {}`, ok: false},
		{in: "[\"\xe6\x97", want: `[""]`, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			s := newScanner()
			s.write(tt.in)

			got, complete, ok := s.repair()
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.complete, complete)
		})
	}
}

func TestTrimPartialRune(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "abc", want: "abc"},
		{in: "日本", want: "日本"},
		{in: "日\xe6\x9c", want: "日"},
		{in: "a\xf0\x9f\x98", want: "a"},
		{in: "a\xf0", want: "a"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, trimPartialRune(tt.in))
		})
	}
}
