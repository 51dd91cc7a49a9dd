package sse

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReader(body, done string) *Reader {
	return NewReader(io.NopCloser(strings.NewReader(body)), done)
}

func readAll(t *testing.T, r *Reader) []string {
	t.Helper()
	var got []string
	for {
		data, err := r.Data()
		if errors.Is(err, io.EOF) {
			return got
		}
		require.NoError(t, err)
		got = append(got, string(data))
	}
}

func TestReader_Data(t *testing.T) {
	tests := []struct {
		name string
		body string
		done string
		want []string
	}{
		{
			name: "data lines",
			body: "data: {\"a\":1}\n\ndata: {\"a\":2}\n\n",
			want: []string{`{"a":1}`, `{"a":2}`},
		},
		{
			name: "event and comment lines skipped",
			body: "event: ping\n: keepalive\ndata: x\n\n",
			want: []string{"x"},
		},
		{
			name: "crlf",
			body: "data: x\r\n\r\ndata: y\r\n\r\n",
			want: []string{"x", "y"},
		},
		{
			name: "empty payload skipped",
			body: "data:\n\ndata: x\n\n",
			want: []string{"x"},
		},
		{
			name: "final line without newline",
			body: "data: x\n\ndata: y",
			want: []string{"x", "y"},
		},
		{
			name: "done sentinel",
			body: "data: x\n\ndata: [DONE]\n\ndata: y\n\n",
			done: "[DONE]",
			want: []string{"x"},
		},
		{
			name: "no sentinel configured",
			body: "data: [DONE]\n\n",
			want: []string{"[DONE]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, readAll(t, newReader(tt.body, tt.done)))
		})
	}
}

func TestNext(t *testing.T) {
	r := newReader("data: {\"n\":7}\n\ndata: nope\n\n", "")

	v, err := Next[struct{ N int }](r)
	require.NoError(t, err)
	assert.Equal(t, 7, v.N)

	_, err = Next[struct{ N int }](r)
	assert.ErrorContains(t, err, "parsing event")

	_, err = Next[struct{ N int }](r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "secret", r.Header.Get("X-Key"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"q":"hi"}`, string(body))

		_, _ = io.WriteString(w, "data: one\n\ndata: [DONE]\n\n")
	}))
	defer srv.Close()

	header := http.Header{}
	header.Set("X-Key", "secret")
	r, err := Post(context.Background(), srv.Client(), Request{
		URL:    srv.URL,
		Header: header,
		Body:   map[string]string{"q": "hi"},
		Done:   "[DONE]",
	}, nil)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	assert.Equal(t, []string{"one"}, readAll(t, r))
}

func TestPost_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, "slow down")
	}))
	defer srv.Close()

	var gotStatus int
	var gotBody string
	_, err := Post(context.Background(), nil, Request{URL: srv.URL}, func(status int, body []byte) error {
		gotStatus, gotBody = status, string(body)
		return errors.New("rate limited")
	})

	assert.EqualError(t, err, "rate limited")
	assert.Equal(t, http.StatusTooManyRequests, gotStatus)
	assert.Equal(t, "slow down", gotBody)
}
