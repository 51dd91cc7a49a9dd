package partialjson

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"
)

// mode is the scanner's position in the JSON grammar.
type mode int

const (
	modeValue      mode = iota // expecting a value
	modeKey                    // expecting a key or '}'
	modeKeyString              // inside an object key
	modeColon                  // expecting ':'
	modeString                 // inside a string value
	modeNumber                 // inside a number
	modeLiteral                // inside true, false or null
	modeAfterValue             // a value just completed
	modeInvalid                // the buffer can never become valid JSON
)

// frame is one open container.
type frame struct {
	kind byte // '{' or '['
	// stable is the buffer length that covers the container's opening
	// bracket and its completed members only.
	stable int
	// empty is true until the container has started its first member.
	empty bool
}

// scanner tracks JSON nesting over an append-only buffer. Every byte is
// scanned exactly once.
type scanner struct {
	buf   strings.Builder
	stack []frame
	mode  mode

	// Scalar state.
	valueStart int    // offset of the current number or literal
	literal    string // literal being matched
	// strStable is the buffer length covering the open string's
	// fully decoded characters.
	strStable   int
	escape      bool
	escapeStart int // offset of the backslash
	hexLeft     int // hex digits still expected for a \u escape
	// pendingHigh is the offset of a completed high surrogate escape that
	// still waits for its low half, or -1.
	pendingHigh int

	complete bool // a top-level value has been completed
}

func newScanner() *scanner {
	return &scanner{pendingHigh: -1}
}

// write appends chunk to the buffer and advances the scanner over it.
func (s *scanner) write(chunk string) {
	for i := 0; i < len(chunk); i++ {
		s.buf.WriteByte(chunk[i])
		s.step(chunk[i])
	}
}

func (s *scanner) len() int {
	return s.buf.Len()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func (s *scanner) step(c byte) {
	switch s.mode {
	case modeInvalid:
		return
	case modeString, modeKeyString:
		s.stepString(c)
	case modeNumber:
		if isNumberByte(c) {
			return
		}
		// The byte after a number ends it; it is scanned on its own.
		if !json.Valid([]byte(s.buf.String()[s.valueStart : s.len()-1])) {
			s.mode = modeInvalid
			return
		}
		s.completeValue(s.len() - 1)
		s.step(c)
	case modeLiteral:
		n := s.len() - s.valueStart
		if c != s.literal[n-1] {
			s.mode = modeInvalid
			return
		}
		if n == len(s.literal) {
			s.completeValue(s.len())
		}
	case modeValue:
		s.stepValue(c)
	case modeKey:
		switch {
		case isSpace(c):
		case c == '"':
			s.top().empty = false
			s.mode = modeKeyString
		case c == '}' && s.top().empty:
			s.closeContainer('}')
		default:
			s.mode = modeInvalid
		}
	case modeColon:
		switch {
		case isSpace(c):
		case c == ':':
			s.mode = modeValue
		default:
			s.mode = modeInvalid
		}
	case modeAfterValue:
		s.stepAfterValue(c)
	}
}

func (s *scanner) stepValue(c byte) {
	if isSpace(c) {
		return
	}
	if len(s.stack) == 0 && s.complete {
		s.mode = modeInvalid
		return
	}

	if top := s.top(); top != nil && top.kind == '[' {
		if c == ']' {
			if top.empty {
				s.closeContainer(']')
			} else {
				s.mode = modeInvalid
			}
			return
		}
		top.empty = false
	}

	switch {
	case c == '{':
		s.stack = append(s.stack, frame{kind: '{', stable: s.len(), empty: true})
		s.mode = modeKey
	case c == '[':
		s.stack = append(s.stack, frame{kind: '[', stable: s.len(), empty: true})
		s.mode = modeValue
	case c == '"':
		s.mode = modeString
		s.strStable = s.len()
		s.pendingHigh = -1
	case c == '-' || (c >= '0' && c <= '9'):
		s.mode = modeNumber
		s.valueStart = s.len() - 1
	case c == 't':
		s.startLiteral("true")
	case c == 'f':
		s.startLiteral("false")
	case c == 'n':
		s.startLiteral("null")
	default:
		s.mode = modeInvalid
	}
}

func (s *scanner) startLiteral(lit string) {
	s.mode = modeLiteral
	s.literal = lit
	s.valueStart = s.len() - 1
}

func (s *scanner) stepAfterValue(c byte) {
	top := s.top()
	switch {
	case isSpace(c):
	case top == nil:
		s.mode = modeInvalid
	case c == ',':
		if top.kind == '{' {
			s.mode = modeKey
			// A key is now required.
			top.empty = false
		} else {
			s.mode = modeValue
		}
	case c == '}' || c == ']':
		s.closeContainer(c)
	default:
		s.mode = modeInvalid
	}
}

func (s *scanner) stepString(c byte) {
	if s.escape {
		s.stepEscape(c)
		return
	}

	switch {
	case c == '\\':
		s.escape = true
		s.escapeStart = s.len() - 1
	case c == '"':
		s.pendingHigh = -1
		if s.mode == modeKeyString {
			s.mode = modeColon
			return
		}
		s.completeValue(s.len())
	case c < 0x20:
		s.mode = modeInvalid
	default:
		s.pendingHigh = -1
		s.strStable = s.len()
	}
}

func (s *scanner) stepEscape(c byte) {
	if s.hexLeft > 0 {
		if !isHex(c) {
			s.mode = modeInvalid
			return
		}
		s.hexLeft--
		if s.hexLeft > 0 {
			return
		}
		s.escape = false

		hex := s.buf.String()[s.escapeStart+2 : s.len()]
		r, _ := strconv.ParseUint(hex, 16, 32)
		switch {
		case r >= 0xD800 && r < 0xDC00:
			// Hold the high half back until the next character decides
			// whether it pairs.
			if s.pendingHigh < 0 {
				s.pendingHigh = s.escapeStart
			} else {
				s.pendingHigh = s.escapeStart
				s.strStable = s.escapeStart
			}
		default:
			s.pendingHigh = -1
			s.strStable = s.len()
		}
		return
	}

	switch c {
	case 'u':
		s.hexLeft = 4
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
		s.escape = false
		s.pendingHigh = -1
		s.strStable = s.len()
	default:
		s.mode = modeInvalid
	}
}

// completeValue records that the value ending at offset end is complete.
func (s *scanner) completeValue(end int) {
	s.mode = modeAfterValue
	if top := s.top(); top != nil {
		top.stable = end
		return
	}
	s.complete = true
}

func (s *scanner) closeContainer(c byte) {
	top := s.top()
	if top == nil || (c == '}') != (top.kind == '{') {
		s.mode = modeInvalid
		return
	}
	s.stack = s.stack[:len(s.stack)-1]
	s.completeValue(s.len())
}

func (s *scanner) top() *frame {
	if len(s.stack) == 0 {
		return nil
	}
	return &s.stack[len(s.stack)-1]
}

// repair returns the longest closable prefix of the buffer with the closing
// characters it needs. complete reports whether the buffer was used as is.
func (s *scanner) repair() (text string, complete bool, ok bool) {
	buf := s.buf.String()

	if s.mode == modeInvalid {
		return "", false, false
	}

	if len(s.stack) == 0 {
		switch {
		case s.complete && s.mode == modeAfterValue:
			return buf, true, true
		case s.mode == modeNumber:
			if json.Valid([]byte(buf[s.valueStart:])) {
				return buf, true, true
			}
		case s.mode == modeString:
			return trimPartialRune(buf[:s.strStable]) + `"`, false, true
		}
		return "", false, false
	}

	var b strings.Builder
	if s.mode == modeString {
		b.WriteString(trimPartialRune(buf[:s.strStable]))
		b.WriteByte('"')
	} else {
		b.WriteString(buf[:s.top().stable])
	}
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i].kind == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String(), false, true
}

// trimPartialRune drops a trailing incomplete UTF-8 sequence.
func trimPartialRune(s string) string {
	for i := len(s) - 1; i >= 0 && i >= len(s)-utf8.UTFMax; i-- {
		if utf8.RuneStart(s[i]) {
			if !utf8.FullRuneInString(s[i:]) {
				return s[:i]
			}
			return s
		}
	}
	return s
}

func isNumberByte(c byte) bool {
	return (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E'
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
