package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/i2y/interpreter/sse"
)

const defaultBaseURL = "https://api.openai.com/v1"

// client wraps the HTTP client for OpenAI API calls.
type client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// newClient creates a new OpenAI client.
func newClient(apiKey, baseURL string, httpClient *http.Client) *client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// parseError decodes an error response from the API.
func parseError(statusCode int, body []byte) error {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return &APIError{
			StatusCode: statusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	return &APIError{
		StatusCode: statusCode,
		Message:    errResp.Error.Message,
		Type:       errResp.Error.Type,
		Code:       errResp.Error.Code,
	}
}

// APIError represents an error from the OpenAI API.
type APIError struct {
	StatusCode int
	Message    string
	Type       string
	Code       string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("openai API error (status %d, type %s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("openai API error (status %d): %s", e.StatusCode, e.Message)
}

// chatCompletionStream sends a streaming chat completion request.
func (c *client) chatCompletionStream(ctx context.Context, req *chatCompletionRequest) (*sse.Reader, error) {
	streamReq := *req
	streamReq.Stream = true

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.apiKey)

	return sse.Post(ctx, c.httpClient, sse.Request{
		URL:    c.baseURL + "/chat/completions",
		Header: header,
		Body:   streamReq,
		Done:   "[DONE]",
	}, parseError)
}
