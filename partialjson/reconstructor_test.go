package partialjson

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var roundTripCases = []struct {
	name string
	text string
}{
	{name: "single key", text: `{"code": "print(1)"}`},
	{name: "empty object", text: `{}`},
	{name: "empty array", text: `[]`},
	{name: "empty members", text: `{"a": {}, "b": []}`},
	{name: "scalars in array", text: `[1, 2.5, -3e2, true, false, null]`},
	{name: "escapes", text: `{"code": "print(\"hi\")\nx = 1\n\ttab \\ slash \/", "language": "python"}`},
	{name: "nested", text: `{"nested": {"list": [{"x": 1}, {"y": [1, [2, "three"]]}], "s": "tail"}}`},
	{name: "top-level string", text: `"just a string"`},
	{name: "top-level integer", text: `42`},
	{name: "top-level float", text: `-0.5e10`},
	{name: "top-level true", text: `true`},
	{name: "top-level null", text: `null`},
	{name: "unicode escapes", text: `{"unicode": "caf\u00e9 \ud83d\ude00 done", "raw": "日本語 😀"}`},
	{name: "broken surrogates", text: `{"lone": "\ud83d then text", "pair": "\ud83dA", "double": "\ud83d😀"}`},
	{name: "whitespace", text: "  { \"spaced\" : [ 1 , 2 ] ,\n\t\"k\" : \"v\" }  "},
	{name: "array of arrays", text: `[["a", "b"], ["c"], []]`},
	{name: "duplicate key", text: `{"dup": "x", "dup": 1}`},
	{name: "big integer", text: `{"id": 12345678901234567890}`},
}

func decodeText(t *testing.T, text string) any {
	t.Helper()
	v, err := decode(text)
	require.NoError(t, err)
	return v
}

func foldAll(t *testing.T, r *Reconstructor, chunks []string) (any, int) {
	t.Helper()
	var acc any
	emitted := 0
	for _, chunk := range chunks {
		patch, ok := r.ReceiveChunk(chunk)
		if !ok {
			assert.Nil(t, patch)
			continue
		}
		emitted++
		acc = Fold(acc, patch)
	}
	return acc, emitted
}

func TestRoundTrip_CharByChar(t *testing.T) {
	for _, tt := range roundTripCases {
		t.Run(tt.name, func(t *testing.T) {
			var chunks []string
			for _, r := range tt.text {
				chunks = append(chunks, string(r))
			}

			got, emitted := foldAll(t, New(), chunks)

			assert.Equal(t, decodeText(t, tt.text), got)
			assert.Positive(t, emitted)
		})
	}
}

func TestRoundTrip_ByteByByte(t *testing.T) {
	for _, tt := range roundTripCases {
		t.Run(tt.name, func(t *testing.T) {
			chunks := make([]string, 0, len(tt.text))
			for i := 0; i < len(tt.text); i++ {
				chunks = append(chunks, tt.text[i:i+1])
			}

			got, _ := foldAll(t, New(), chunks)

			assert.Equal(t, decodeText(t, tt.text), got)
		})
	}
}

func TestRoundTrip_WholeText(t *testing.T) {
	for _, tt := range roundTripCases {
		t.Run(tt.name, func(t *testing.T) {
			got, emitted := foldAll(t, New(), []string{tt.text})

			assert.Equal(t, decodeText(t, tt.text), got)
			assert.Equal(t, 1, emitted)
		})
	}
}

func TestRoundTrip_ByteSplitStrings(t *testing.T) {
	text := `{"raw": "日本語 😀", "after": "ok"}`
	// Each partial repair must never show a replacement character.
	r := New()
	for i := 0; i < len(text); i++ {
		patch, ok := r.ReceiveChunk(text[i : i+1])
		if !ok {
			continue
		}
		encoded, err := json.Marshal(patch)
		require.NoError(t, err)
		assert.NotContains(t, string(encoded), "�")
	}
}

func TestReceiveChunk_StreamingScenario(t *testing.T) {
	r := New()

	patch, ok := r.ReceiveChunk(`{"co`)
	assert.False(t, ok)
	assert.Nil(t, patch)

	patch, ok = r.ReceiveChunk(`de": "pri`)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"code": "pri"}, patch)
	acc := Fold(nil, patch)

	patch, ok = r.ReceiveChunk(`nt(1)"}`)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"code": "nt(1)"}, patch)
	acc = Fold(acc, patch)

	assert.Equal(t, map[string]any{"code": "print(1)"}, acc)
}

func TestReceiveChunk_EmptyChunk(t *testing.T) {
	chunks := []string{`{"a"`, `: "x`, `y", "b": [1`, `, 2]`, `}`}

	plain := New()
	withEmpty := New()

	_, ok := withEmpty.ReceiveChunk("")
	assert.False(t, ok)

	for _, chunk := range chunks {
		wantPatch, wantOK := plain.ReceiveChunk(chunk)
		gotPatch, gotOK := withEmpty.ReceiveChunk(chunk)
		assert.Equal(t, wantOK, gotOK)
		assert.Equal(t, wantPatch, gotPatch)

		before, _ := withEmpty.Value()
		bufBefore := withEmpty.Buffer()

		patch, ok := withEmpty.ReceiveChunk("")
		assert.False(t, ok)
		assert.Nil(t, patch)

		after, _ := withEmpty.Value()
		assert.Equal(t, before, after)
		assert.Equal(t, bufBefore, withEmpty.Buffer())
	}
}

func TestReceiveChunk_MonotonicVisibility(t *testing.T) {
	text := `{"a": "hello", "b": "world", "c": [1, 2], "d": {"e": "f"}}`
	closed := strings.Index(text, `"hello"`) + len(`"hello"`)

	r := New()
	for i := 0; i < len(text); i++ {
		patch, ok := r.ReceiveChunk(text[i : i+1])
		if !ok || i < closed {
			continue
		}
		m, isMap := patch.(map[string]any)
		require.True(t, isMap)
		assert.NotContains(t, m, "a", "key a re-emitted at offset %d", i)
	}
}

func TestReceiveChunk_NoDoubleEmitOnStringClose(t *testing.T) {
	r := New()

	patch, ok := r.ReceiveChunk(`{"a": "x`)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": "x"}, patch)

	_, ok = r.ReceiveChunk(`"`)
	assert.False(t, ok)

	_, ok = r.ReceiveChunk(`, `)
	assert.False(t, ok)

	patch, ok = r.ReceiveChunk(`"b": "y"}`)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"b": "y"}, patch)
}

func TestReceiveChunk_MultipleKeysAtOnce(t *testing.T) {
	r := New()

	_, ok := r.ReceiveChunk(`{"a": 1`)
	assert.False(t, ok)

	patch, ok := r.ReceiveChunk(`, "b": "two", "c": [3]}`)
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"a": json.Number("1"),
		"b": "two",
		"c": []any{json.Number("3")},
	}, patch)
}

func TestReceiveChunk_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
	}{
		{name: "bare words", chunks: []string{"not ", "valid ", "json ", "at ", "all"}},
		{name: "bare words at once", chunks: []string{"not valid json at all"}},
		{name: "bare code", chunks: []string{"print(", "1)"}},
		{name: "missing colon", chunks: []string{`{"a" 1}`}},
		{name: "mismatched close", chunks: []string{`[1}`}},
		{name: "trailing comma close", chunks: []string{`{"a": 1,}`}},
		{name: "control character", chunks: []string{"{\"a\": \"x\ny\"}"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			for _, chunk := range tt.chunks {
				_, ok := r.ReceiveChunk(chunk)
				assert.False(t, ok)
			}
			_, seen := r.Value()
			assert.False(t, seen)
		})
	}
}

func TestReceiveChunk_MalformedAfterValid(t *testing.T) {
	r := New()

	_, ok := r.ReceiveChunk(`{"a": "x"`)
	require.True(t, ok)

	_, ok = r.ReceiveChunk(` oops`)
	assert.False(t, ok)

	_, ok = r.ReceiveChunk(`, "b": "y"}`)
	assert.False(t, ok)

	v, seen := r.Value()
	assert.True(t, seen)
	assert.Equal(t, map[string]any{"a": "x"}, v)
}

func TestReconstructor_Buffer(t *testing.T) {
	r := New()
	r.ReceiveChunk(`{"co`)
	r.ReceiveChunk("")
	r.ReceiveChunk(`de": 1}`)
	assert.Equal(t, `{"code": 1}`, r.Buffer())
}
