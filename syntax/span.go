// Package syntax holds source location types shared by the lexer,
// the parser and error reporting.
package syntax

import "fmt"

// Span represents a location range in source code.
type Span struct {
	StartLine   uint16
	StartCol    uint16
	StartOffset uint32
	EndLine     uint16
	EndCol      uint16
	EndOffset   uint32
}

// IsZero reports whether the span carries no location information.
func (s Span) IsZero() bool {
	return s == Span{}
}

// Join returns a span covering both s and other.
func (s Span) Join(other Span) Span {
	if s.IsZero() {
		return other
	}
	if other.IsZero() {
		return s
	}
	out := s
	if other.StartOffset < s.StartOffset {
		out.StartLine = other.StartLine
		out.StartCol = other.StartCol
		out.StartOffset = other.StartOffset
	}
	if other.EndOffset > s.EndOffset {
		out.EndLine = other.EndLine
		out.EndCol = other.EndCol
		out.EndOffset = other.EndOffset
	}
	return out
}

// String renders the span for error messages, e.g. "1:4-1:9".
func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", s.StartLine, s.StartCol, s.EndLine, s.EndCol)
}
