package tools

import (
	"fmt"

	"github.com/rivo/uniseg"
)

// Truncate keeps the last limit user-perceived characters of s behind a
// notice. limit <= 0 disables truncation.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}

	// Byte offset where each grapheme cluster starts.
	var starts []int
	gr := uniseg.NewGraphemes(s)
	for gr.Next() {
		from, _ := gr.Positions()
		starts = append(starts, from)
	}
	if len(starts) <= limit {
		return s
	}

	tail := s[starts[len(starts)-limit]:]
	return fmt.Sprintf("Output truncated. Showing the last %d characters.\n\n%s", limit, tail)
}
