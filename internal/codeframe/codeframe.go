// Package codeframe renders a short excerpt of source code around a
// line/column, with a caret pointing at the offending column, the way a
// compiler diagnostic would.
package codeframe

import (
	"strconv"
	"strings"
)

// DefaultContextLines is the number of lines shown above and below the
// offending line when no explicit count is given.
const DefaultContextLines = 2

// Frame renders a multi-line frame for source at line/column (both
// 1-indexed). Returns "" if source is empty or line is out of range.
func Frame(source string, line, column, contextLines int) string {
	if source == "" || line < 1 {
		return ""
	}
	if contextLines <= 0 {
		contextLines = DefaultContextLines
	}

	lines := strings.Split(source, "\n")
	if line > len(lines) {
		return ""
	}

	start := line - contextLines
	if start < 1 {
		start = 1
	}
	end := line + contextLines
	if end > len(lines) {
		end = len(lines)
	}

	width := len(strconv.Itoa(end))

	var b strings.Builder
	for n := start; n <= end; n++ {
		marker := "  "
		if n == line {
			marker = "> "
		}
		gutter := strconv.Itoa(n)
		pad := strings.Repeat(" ", width-len(gutter))
		b.WriteString(marker)
		b.WriteString(pad)
		b.WriteString(gutter)
		b.WriteString(" | ")
		b.WriteString(lines[n-1])
		b.WriteString("\n")
		if n == line && column > 0 {
			b.WriteString(strings.Repeat(" ", len(marker)+width+3))
			if column > 1 {
				b.WriteString(strings.Repeat(" ", column-1))
			}
			b.WriteString("^\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// OffsetToPosition translates a byte offset in source into a 1-indexed
// line and a 0-indexed column (the position's offset from the start of its
// line), matching the wire convention a plugin's `pos` field uses. ok is
// false if offset is out of [0, len(source)].
func OffsetToPosition(source string, offset int) (line, column int, ok bool) {
	if offset < 0 || offset > len(source) {
		return 0, 0, false
	}
	line = 1
	lineStart := 0
	for i := 0; i < offset; i++ {
		if source[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}
	column = offset - lineStart
	return line, column, true
}
