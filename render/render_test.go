package render

import (
	"strings"
	"testing"

	"quicknav/preview"
	"quicknav/session"
)

func TestWrapText(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		width    int
		expected []string
	}{
		{"no wrap needed", "hello world", 20, []string{"hello world"}},
		{"simple wrap", "hello world foo bar", 11, []string{"hello world", "foo bar"}},
		{"multiple lines", "one two three four five six", 10, []string{"one two", "three four", "five six"}},
		{"preserves newlines", "first\n\nsecond", 20, []string{"first", "", "second"}},
		{"long word breaks", "supercalifragilisticexpialidocious", 10, []string{"supercalif", "ragilistic", "expialidoc", "ious"}},
		{"broken word tail joins line", "abcdefghijkl mn", 5, []string{"abcde", "fghij", "kl mn"}},
		{"wide runes", "日本語テキスト", 6, []string{"日本語", "テキス", "ト"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := WrapText(tt.text, tt.width)
			if len(result) != len(tt.expected) {
				t.Errorf("got %d lines, expected %d lines\ngot: %v\nexpected: %v",
					len(result), len(tt.expected), result, tt.expected)
				return
			}
			for i, line := range result {
				if line != tt.expected[i] {
					t.Errorf("line %d: got %q, expected %q", i, line, tt.expected[i])
				}
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s     string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"a longer line", 8, "a lon..."},
		{"abcdef", 3, "abc"},
		{"日本語", 5, "日..."},
	}
	for _, tt := range tests {
		if got := Truncate(tt.s, tt.width); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.width, got, tt.want)
		}
	}
}

func TestBox(t *testing.T) {
	got := Box("title", []string{"one", "a line that is too long"}, 12, ASCIIBox)
	want := "+- title --+\n" +
		"| one      |\n" +
		"| a line t |\n" +
		"+----------+\n"
	if got != want {
		t.Errorf("Box =\n%s\nwant\n%s", got, want)
	}
	for _, line := range strings.Split(strings.TrimSuffix(got, "\n"), "\n") {
		if StringWidth(line) != 12 {
			t.Errorf("line %q is %d wide", line, StringWidth(line))
		}
	}
}

func TestPopup(t *testing.T) {
	r := NewRenderer(40, false)

	out, err := r.Popup(preview.PopupState{
		Exists:  true,
		Visible: true,
		Left:    30,
		Top:     40,
		URL:     "http://example.com/docs",
		Content: `<h1>Docs</h1><p>The <strong>manual</strong>.</p><p><a href="http://example.com/a">next</a></p>`,
	})
	if err != nil {
		t.Fatalf("Popup: %v", err)
	}
	for _, want := range []string{"# Docs", "**manual**", "[next](http://example.com/a)", "left=30px top=40px"} {
		if !strings.Contains(out, want) {
			t.Errorf("popup missing %q:\n%s", want, out)
		}
	}

	hidden, _ := r.Popup(preview.PopupState{Exists: true})
	if hidden != "preview hidden\n" {
		t.Errorf("hidden popup = %q", hidden)
	}
	none, _ := r.Popup(preview.PopupState{})
	if none != "no preview yet\n" {
		t.Errorf("missing popup = %q", none)
	}
}

func TestLinks(t *testing.T) {
	r := NewRenderer(30, false)
	got := r.Links([]session.Link{
		{Index: 0, Href: "/docs", Text: "Docs"},
		{Index: 1, Href: "/a/very/long/path/indeed", Text: ""},
	})
	want := "[0] Docs -> /docs\n[1] (no text) -> /a/very/lo...\n"
	if got != want {
		t.Errorf("Links =\n%q\nwant\n%q", got, want)
	}
}

func TestViewport(t *testing.T) {
	v := Viewport(100, 30)
	if v.Width != 800 || v.Height != 600 {
		t.Errorf("Viewport(100, 30) = %+v", v)
	}
}
