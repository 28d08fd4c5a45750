package extract

import "strings"

// braceTracker follows JSON object depth across streamed chunks, ignoring
// braces inside string literals.
type braceTracker struct {
	depth    int
	inString bool
	escape   bool
	buf      strings.Builder
}

// Feed appends chunk and reports whether a complete top-level object has
// been received.
func (b *braceTracker) Feed(chunk string) bool {
	b.buf.WriteString(chunk)
	for _, r := range chunk {
		if b.escape {
			b.escape = false
			continue
		}
		switch r {
		case '\\':
			if b.inString {
				b.escape = true
			}
		case '"':
			b.inString = !b.inString
		case '{':
			if !b.inString {
				b.depth++
			}
		case '}':
			if !b.inString {
				b.depth--
			}
		}
	}
	return b.depth == 0 && strings.HasSuffix(strings.TrimSpace(b.buf.String()), "}")
}

func (b *braceTracker) String() string { return b.buf.String() }
