// Package partialjson reconstructs a JSON value while its text is still
// arriving. Each chunk yields the structural patch that became visible, and
// folding the patches in order rebuilds the final value.
package partialjson

import (
	"encoding/json"
	"strings"
)

// Reconstructor turns successive chunks of one JSON text into patches.
// It is not safe for concurrent use.
type Reconstructor struct {
	scan     *scanner
	repaired string // last text handed to the decoder
	prev     any
	seen     bool // prev holds a decoded value
}

// New returns an empty Reconstructor.
func New() *Reconstructor {
	return &Reconstructor{scan: newScanner()}
}

// ReceiveChunk appends chunk to the buffer and returns the patch against
// the previously visible value. ok is false when nothing new is visible:
// the chunk was empty, the buffer cannot be closed into valid JSON yet, or
// the visible value did not change.
func (r *Reconstructor) ReceiveChunk(chunk string) (patch any, ok bool) {
	if chunk == "" {
		return nil, false
	}
	r.scan.write(chunk)

	text, complete, closable := r.scan.repair()
	if !closable || text == r.repaired {
		return nil, false
	}

	value, err := decode(text)
	if err != nil {
		return nil, false
	}

	if !r.seen {
		// An empty container closed by repair says nothing yet.
		if !complete && isEmptyContainer(value) {
			return nil, false
		}
		r.repaired = text
		r.prev, r.seen = value, true
		return value, true
	}
	r.repaired = text

	patch, changed := Diff(r.prev, value)
	r.prev = value
	if !changed {
		return nil, false
	}
	return patch, true
}

// Value returns the last visible value and whether there is one.
func (r *Reconstructor) Value() (any, bool) {
	return r.prev, r.seen
}

// Buffer returns the raw text received so far.
func (r *Reconstructor) Buffer() string {
	return r.scan.buf.String()
}

func decode(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func isEmptyContainer(v any) bool {
	switch t := v.(type) {
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}
