package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i2y/interpreter/provider"
)

// sseServer serves the given data payloads as one SSE response and records
// the decoded request body.
func sseServer(t *testing.T, payloads []string, got *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if got != nil {
			body, err := io.ReadAll(r.Body)
			assert.NoError(t, err)
			assert.NoError(t, json.Unmarshal(body, got))
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, p := range payloads {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", p)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func collect(t *testing.T, stream provider.ResponseStream) []provider.Fragment {
	t.Helper()
	var fragments []provider.Fragment
	for stream.Next() {
		fragments = append(fragments, *stream.Current())
	}
	require.NoError(t, stream.Err())
	require.NoError(t, stream.Close())
	return fragments
}

func TestProvider_StreamText(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"index":0,"delta":{"role":"assistant","content":""},"finish_reason":null}]}`,
		`{"choices":[{"index":0,"delta":{"content":"Hello"},"finish_reason":null}]}`,
		`{"choices":[{"index":0,"delta":{"content":", world"},"finish_reason":null}]}`,
		`{"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
	}, nil)
	defer srv.Close()

	p, err := New(WithAPIKey("test-key"), WithBaseURL(srv.URL))
	require.NoError(t, err)

	stream, err := p.Stream(context.Background(), &provider.Request{Model: "gpt-4-0613"})
	require.NoError(t, err)

	fragments := collect(t, stream)
	require.Len(t, fragments, 4)

	var text strings.Builder
	for _, f := range fragments {
		text.WriteString(f.Content)
		assert.Nil(t, f.FunctionCall)
	}
	assert.Equal(t, "Hello, world", text.String())
	assert.Equal(t, provider.FinishReasonStop, fragments[3].FinishReason)
}

func TestProvider_StreamFunctionCall(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"index":0,"delta":{"role":"assistant","content":null,"function_call":{"name":"run_code","arguments":""}},"finish_reason":null}]}`,
		`{"choices":[{"index":0,"delta":{"function_call":{"arguments":"{\"co"}},"finish_reason":null}]}`,
		`{"choices":[{"index":0,"delta":{"function_call":{"arguments":"de\": \"1+1\"}"}},"finish_reason":null}]}`,
		`{"choices":[{"index":0,"delta":{},"finish_reason":"function_call"}]}`,
	}, nil)
	defer srv.Close()

	p, err := New(WithAPIKey("test-key"), WithBaseURL(srv.URL))
	require.NoError(t, err)

	stream, err := p.Stream(context.Background(), &provider.Request{Model: "gpt-4-0613"})
	require.NoError(t, err)

	fragments := collect(t, stream)
	require.Len(t, fragments, 4)

	require.NotNil(t, fragments[0].FunctionCall)
	assert.Equal(t, "run_code", fragments[0].FunctionCall.Name)
	assert.Equal(t, `{"co`, fragments[1].FunctionCall.Arguments)
	assert.Empty(t, fragments[1].FunctionCall.Name)
	assert.Equal(t, `de": "1+1"}`, fragments[2].FunctionCall.Arguments)
	assert.Equal(t, provider.FinishReasonFunctionCall, fragments[3].FinishReason)
}

func TestProvider_RequestEncoding(t *testing.T) {
	var body map[string]any
	srv := sseServer(t, []string{
		`{"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
	}, &body)
	defer srv.Close()

	p, err := New(WithAPIKey("test-key"), WithBaseURL(srv.URL))
	require.NoError(t, err)

	temp := 0.2
	stream, err := p.Stream(context.Background(), &provider.Request{
		Model:       "gpt-4-0613",
		Temperature: &temp,
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: "be brief"},
			{Role: provider.RoleUser, Content: "add"},
			{Role: provider.RoleAssistant, FunctionCall: &provider.FunctionCall{Name: "run_code", Arguments: `{"code":"1+1"}`}},
			{Role: provider.RoleFunction, Name: "run_code", Content: "2"},
		},
		Functions: []provider.FunctionDef{{
			Name:        "run_code",
			Description: "Executes code.",
			Parameters:  json.RawMessage(`{"type":"object"}`),
		}},
	})
	require.NoError(t, err)
	collect(t, stream)

	assert.Equal(t, true, body["stream"])
	assert.Equal(t, "gpt-4-0613", body["model"])
	assert.InDelta(t, 0.2, body["temperature"], 1e-9)

	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 4)

	call, ok := messages[2].(map[string]any)
	require.True(t, ok)
	content, present := call["content"]
	assert.True(t, present, "content must be sent as null")
	assert.Nil(t, content)
	assert.Equal(t, map[string]any{"name": "run_code", "arguments": `{"code":"1+1"}`}, call["function_call"])

	result, ok := messages[3].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "function", result["role"])
	assert.Equal(t, "run_code", result["name"])
	assert.Equal(t, "2", result["content"])

	functions, ok := body["functions"].([]any)
	require.True(t, ok)
	require.Len(t, functions, 1)
	assert.Equal(t, "run_code", functions[0].(map[string]any)["name"])
}

func TestProvider_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer srv.Close()

	p, err := New(WithAPIKey("bad"), WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = p.Stream(context.Background(), &provider.Request{Model: "gpt-4-0613"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "invalid_api_key", apiErr.Code)
	assert.Contains(t, err.Error(), "Incorrect API key provided")
}

func TestProvider_MalformedChunk(t *testing.T) {
	srv := sseServer(t, []string{`{"choices":[`}, nil)
	defer srv.Close()

	p, err := New(WithAPIKey("test-key"), WithBaseURL(srv.URL))
	require.NoError(t, err)

	stream, err := p.Stream(context.Background(), &provider.Request{Model: "gpt-4-0613"})
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	assert.False(t, stream.Next())
	assert.Error(t, stream.Err())
}

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := New()
	require.Error(t, err)

	t.Setenv("OPENAI_API_KEY", "from-env")
	p, err := New()
	require.NoError(t, err)
	assert.Equal(t, "from-env", p.client.apiKey)
}

func TestConvertFinishReason(t *testing.T) {
	tests := []struct {
		in   string
		want provider.FinishReason
	}{
		{"function_call", provider.FinishReasonFunctionCall},
		{"tool_calls", provider.FinishReasonFunctionCall},
		{"length", provider.FinishReasonLength},
		{"content_filter", provider.FinishReasonContentFilter},
		{"stop", provider.FinishReasonStop},
		{"something_new", provider.FinishReasonStop},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, convertFinishReason(tt.in))
		})
	}
}

func TestRegisteredFactory(t *testing.T) {
	assert.True(t, provider.IsRegistered("openai"))

	p, err := provider.Get("openai", provider.Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
}
