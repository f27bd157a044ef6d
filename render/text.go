// Package render draws session state for a terminal: the preview popup as
// a box of wrapped markdown, link lists, and the viewport derived from the
// terminal size.
package render

import (
	"strings"
)

// UnicodeWidth returns the display width of a rune in terminal cells.
func UnicodeWidth(r rune) int {
	switch {
	case r < 0x20 || r == 0x7F:
		return 0
	case r < 0x80:
		return 1
	case isZeroWidth(r):
		return 0
	case isWideChar(r):
		return 2
	}
	return 1
}

// StringWidth returns the display width of a string in terminal cells.
func StringWidth(s string) int {
	width := 0
	for _, r := range s {
		width += UnicodeWidth(r)
	}
	return width
}

func isZeroWidth(r rune) bool {
	return (r >= 0x0300 && r <= 0x036F) ||
		(r >= 0x20D0 && r <= 0x20FF) ||
		(r >= 0xFE00 && r <= 0xFE0F) ||
		r == 0x200B || r == 0x200C || r == 0x200D || r == 0xFEFF
}

func isWideChar(r rune) bool {
	return (r >= 0x1100 && r <= 0x115F) ||
		(r >= 0x2E80 && r <= 0xA4CF) ||
		(r >= 0xAC00 && r <= 0xD7A3) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0xFF01 && r <= 0xFF60) ||
		(r >= 0xFFE0 && r <= 0xFFE6) ||
		(r >= 0x1F300 && r <= 0x1FAFF) ||
		(r >= 0x20000 && r <= 0x3FFFD)
}

// WrapText wraps text to width cells. Newlines are kept; words wider than
// the line are broken.
func WrapText(text string, width int) []string {
	if width <= 0 {
		return nil
	}

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}

		var line strings.Builder
		lineWidth := 0
		flush := func() {
			if lineWidth > 0 {
				lines = append(lines, line.String())
			}
			line.Reset()
			lineWidth = 0
		}
		for _, word := range words {
			w := StringWidth(word)
			if lineWidth > 0 && lineWidth+1+w <= width {
				line.WriteByte(' ')
				line.WriteString(word)
				lineWidth += 1 + w
				continue
			}
			flush()
			if w <= width {
				line.WriteString(word)
				lineWidth = w
				continue
			}
			pieces := breakWord(word, width)
			lines = append(lines, pieces[:len(pieces)-1]...)
			last := pieces[len(pieces)-1]
			line.WriteString(last)
			lineWidth = StringWidth(last)
		}
		flush()
	}
	return lines
}

func breakWord(word string, width int) []string {
	var pieces []string
	var b strings.Builder
	w := 0
	for _, r := range word {
		rw := UnicodeWidth(r)
		if w+rw > width && w > 0 {
			pieces = append(pieces, b.String())
			b.Reset()
			w = 0
		}
		b.WriteRune(r)
		w += rw
	}
	if b.Len() > 0 {
		pieces = append(pieces, b.String())
	}
	return pieces
}

// TruncateToWidth cuts s to at most maxWidth cells.
func TruncateToWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	width := 0
	for i, r := range s {
		w := UnicodeWidth(r)
		if width+w > maxWidth {
			return s[:i]
		}
		width += w
	}
	return s
}

// Truncate truncates a string adding ellipsis if needed.
func Truncate(s string, width int) string {
	if StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return TruncateToWidth(s, width)
	}
	return TruncateToWidth(s, width-3) + "..."
}

func padRight(s string, width int) string {
	if w := StringWidth(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}
