// Package sse posts JSON requests to streaming completion endpoints and
// reads the data payloads of their server-sent event responses.
package sse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrorDecoder turns the body of a non-200 response into an error.
type ErrorDecoder func(statusCode int, body []byte) error

// Request describes one streaming call.
type Request struct {
	URL    string
	Header http.Header
	Body   any

	// Done is a payload that ends the stream, such as "[DONE]". Empty
	// means the stream ends at EOF.
	Done string
}

// Post sends req.Body as JSON and returns a Reader over the event stream.
// Non-200 responses are read in full and passed to decodeErr.
func Post(ctx context.Context, client *http.Client, req Request, decodeErr ErrorDecoder) (*Reader, error) {
	body, err := json.Marshal(req.Body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for k, v := range req.Header {
		httpReq.Header[k] = v
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	if client == nil {
		client = http.DefaultClient
	}
	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer func() { _ = httpResp.Body.Close() }()
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, decodeErr(httpResp.StatusCode, respBody)
	}

	return NewReader(httpResp.Body, req.Done), nil
}

// Reader yields the payloads of "data:" lines. Other fields (event, id,
// comments) are skipped.
type Reader struct {
	reader *bufio.Reader
	closer io.Closer
	done   string
}

// NewReader reads events from rc until EOF or the done payload.
func NewReader(rc io.ReadCloser, done string) *Reader {
	return &Reader{reader: bufio.NewReader(rc), closer: rc, done: done}
}

// Data returns the next non-empty payload, or io.EOF when the stream ends.
func (r *Reader) Data() ([]byte, error) {
	for {
		line, err := r.reader.ReadString('\n')
		if err != nil && (err != io.EOF || strings.TrimSpace(line) == "") {
			return nil, err
		}

		// A final line without a trailing newline is still an event.
		data, ok := payload(line)
		switch {
		case ok && r.done != "" && data == r.done:
			return nil, io.EOF
		case ok:
			return []byte(data), nil
		case err != nil:
			return nil, err
		}
	}
}

func payload(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	return data, data != ""
}

// Close closes the response body.
func (r *Reader) Close() error {
	return r.closer.Close()
}

// Next decodes the next payload as T.
func Next[T any](r *Reader) (*T, error) {
	data, err := r.Data()
	if err != nil {
		return nil, err
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parsing event: %w", err)
	}
	return &v, nil
}
