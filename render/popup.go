package render

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"quicknav/preview"
	"quicknav/session"
)

// Renderer formats session state as terminal text.
type Renderer struct {
	Width int
	Box   BoxStyle
	Color bool

	md *converter.Converter
}

// NewRenderer returns a renderer for a terminal width cells wide.
func NewRenderer(width int, color bool) *Renderer {
	if width < 20 {
		width = 80
	}
	box := RoundedBox
	if !color {
		box = ASCIIBox
	}
	return &Renderer{
		Width: width,
		Box:   box,
		Color: color,
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Markdown converts an HTML fragment to markdown, resolving links against
// domain.
func (r *Renderer) Markdown(fragment, domain string) (string, error) {
	var opts []converter.ConvertOptionFunc
	if domain != "" {
		opts = append(opts, converter.WithDomain(domain))
	}
	out, err := r.md.ConvertString(fragment, opts...)
	if err != nil {
		return "", fmt.Errorf("converting fragment: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Popup draws the preview popup: its target as the title, its content as
// wrapped markdown and its position underneath.
func (r *Renderer) Popup(st preview.PopupState) (string, error) {
	if !st.Exists {
		return "no preview yet\n", nil
	}
	if !st.Visible {
		return "preview hidden\n", nil
	}

	text, err := r.Markdown(st.Content, st.URL)
	if err != nil {
		return "", err
	}
	lines := WrapText(text, r.Width-4)
	out := Box(st.URL, lines, r.Width, r.Box)
	pos := fmt.Sprintf("at left=%dpx top=%dpx", st.Left, st.Top)
	if r.Color {
		pos = Dim + pos + Reset
	}
	return out + pos + "\n", nil
}

// Links lists links one per line as "[i] text -> href".
func (r *Renderer) Links(links []session.Link) string {
	var sb strings.Builder
	for _, l := range links {
		text := l.Text
		if text == "" {
			text = "(no text)"
		}
		idx := fmt.Sprintf("[%d]", l.Index)
		if r.Color {
			idx = Bold + idx + Reset
		}
		line := fmt.Sprintf("%s %s -> %s", idx, text, l.Href)
		if !r.Color {
			line = Truncate(line, r.Width)
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}
