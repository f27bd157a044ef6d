package render

import "strings"

// BoxStyle defines the characters used for drawing boxes.
type BoxStyle struct {
	TopLeft     rune
	TopRight    rune
	BottomLeft  rune
	BottomRight rune
	Horizontal  rune
	Vertical    rune
}

var (
	RoundedBox = BoxStyle{
		TopLeft: '╭', TopRight: '╮', BottomLeft: '╰', BottomRight: '╯',
		Horizontal: '─', Vertical: '│',
	}

	ASCIIBox = BoxStyle{
		TopLeft: '+', TopRight: '+', BottomLeft: '+', BottomRight: '+',
		Horizontal: '-', Vertical: '|',
	}
)

// Box draws lines inside a frame width cells wide with title set into the
// top border. Lines longer than the inside are truncated.
func Box(title string, lines []string, width int, box BoxStyle) string {
	if width < 4 {
		width = 4
	}
	inner := width - 4

	var sb strings.Builder
	sb.WriteRune(box.TopLeft)
	top := width - 2
	if title != "" && inner > 0 {
		t := " " + TruncateToWidth(title, inner) + " "
		sb.WriteRune(box.Horizontal)
		sb.WriteString(t)
		top -= 1 + StringWidth(t)
	}
	sb.WriteString(strings.Repeat(string(box.Horizontal), max(top, 0)))
	sb.WriteRune(box.TopRight)
	sb.WriteByte('\n')

	for _, line := range lines {
		sb.WriteRune(box.Vertical)
		sb.WriteByte(' ')
		sb.WriteString(padRight(TruncateToWidth(line, inner), inner))
		sb.WriteByte(' ')
		sb.WriteRune(box.Vertical)
		sb.WriteByte('\n')
	}

	sb.WriteRune(box.BottomLeft)
	sb.WriteString(strings.Repeat(string(box.Horizontal), width-2))
	sb.WriteRune(box.BottomRight)
	sb.WriteByte('\n')
	return sb.String()
}
