package preview

import (
	"unicode/utf8"

	"golang.org/x/net/html"

	"quicknav/dom"
)

// Measurer reports the laid-out size of the popup. It is called with the
// document read-locked and must not touch the window.
type Measurer interface {
	Measure(popup *html.Node) (width, height int)
}

// MeasurerFunc adapts a function to Measurer.
type MeasurerFunc func(popup *html.Node) (int, int)

func (f MeasurerFunc) Measure(popup *html.Node) (int, int) { return f(popup) }

// TextMeasurer estimates size from the amount of text, wrapping at
// MaxWidth. Good enough for terminals and tests where no layout engine is
// available.
type TextMeasurer struct {
	MaxWidth   int
	CharWidth  int
	LineHeight int
	Padding    int
}

// DefaultMeasurer matches the popup's stylesheet: 420px wide at most,
// roughly 8px per character and 20px lines.
var DefaultMeasurer = TextMeasurer{MaxWidth: 420, CharWidth: 8, LineHeight: 20, Padding: 12}

func (m TextMeasurer) Measure(popup *html.Node) (int, int) {
	chars := utf8.RuneCountInString(dom.TextContent(popup))
	inner := m.MaxWidth - 2*m.Padding
	if inner < m.CharWidth {
		inner = m.CharWidth
	}
	perLine := inner / m.CharWidth

	w := chars*m.CharWidth + 2*m.Padding
	if w > m.MaxWidth {
		w = m.MaxWidth
	}
	lines := (chars + perLine - 1) / perLine
	if lines < 1 {
		lines = 1
	}
	return w, lines*m.LineHeight + 2*m.Padding
}
