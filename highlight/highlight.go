// Package highlight colours code blocks in inserted content with chroma.
// It implements dom.Highlighter.
package highlight

import (
	"bytes"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"golang.org/x/net/html"

	"quicknav/dom"
)

// Done marks code elements that have already been highlighted.
const Done = "data-highlighted"

// Highlighter rewrites `pre > code.language-X` blocks into chroma's
// class-based markup.
type Highlighter struct {
	style     *chroma.Style
	formatter *chromahtml.Formatter
	logger    *slog.Logger
}

// New returns a highlighter using the named chroma style. Unknown styles
// fall back to chroma's default.
func New(style string, logger *slog.Logger) *Highlighter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Highlighter{
		style: styles.Get(style),
		formatter: chromahtml.New(
			chromahtml.WithClasses(true),
			chromahtml.PreventSurroundingPre(true),
		),
		logger: logger,
	}
}

// HighlightUnder highlights every unprocessed code block under root. It
// runs with the document locked and never touches the window.
func (h *Highlighter) HighlightUnder(root *html.Node) {
	goquery.NewDocumentFromNode(root).Find("pre > code").Each(func(_ int, code *goquery.Selection) {
		if _, done := code.Attr(Done); done {
			return
		}
		lang := language(code.AttrOr("class", ""))
		if lang == "" {
			return
		}
		h.highlight(code.Get(0), lang)
	})
}

func (h *Highlighter) highlight(code *html.Node, lang string) {
	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	it, err := lexer.Tokenise(nil, dom.TextContentRaw(code))
	if err != nil {
		h.logger.Debug("highlight: tokenise failed", "language", lang, "error", err)
		return
	}
	var buf bytes.Buffer
	if err := h.formatter.Format(&buf, h.style, it); err != nil {
		h.logger.Debug("highlight: format failed", "language", lang, "error", err)
		return
	}
	nodes, err := dom.ParseFragment(buf.String())
	if err != nil {
		return
	}

	dom.RemoveChildren(code)
	for _, n := range nodes {
		code.AppendChild(n)
	}
	dom.SetAttr(code, Done, "1")
}

// CSS returns the stylesheet for the highlighter's classes.
func (h *Highlighter) CSS() string {
	var buf bytes.Buffer
	if err := h.formatter.WriteCSS(&buf, h.style); err != nil {
		return ""
	}
	return buf.String()
}

// language extracts X from a class list containing language-X or lang-X.
func language(class string) string {
	for _, c := range strings.Fields(class) {
		if l, ok := strings.CutPrefix(c, "language-"); ok {
			return l
		}
		if l, ok := strings.CutPrefix(c, "lang-"); ok {
			return l
		}
	}
	return ""
}
