package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/i2y/interpreter/sse"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	apiVersion     = "v1beta"
)

// client wraps the HTTP client for Gemini API calls.
type client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// newClient creates a new Gemini client.
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

// streamGenerateContent sends a streaming generateContent request.
func (c *client) streamGenerateContent(ctx context.Context, model string, req *generateContentRequest) (*sse.Reader, error) {
	header := http.Header{}
	header.Set("x-goog-api-key", c.apiKey)

	return sse.Post(ctx, c.httpClient, sse.Request{
		URL:    fmt.Sprintf("%s/%s/models/%s:streamGenerateContent?alt=sse", c.baseURL, apiVersion, model),
		Header: header,
		Body:   req,
	}, parseError)
}

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
		Code:       errResp.Error.Code,
		Status:     errResp.Error.Status,
		Message:    errResp.Error.Message,
	}
}

// APIError represents an error from the Gemini API.
type APIError struct {
	StatusCode int
	Code       int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("gemini API error (status %d, code %d, %s): %s", e.StatusCode, e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("gemini API error (status %d): %s", e.StatusCode, e.Message)
}
