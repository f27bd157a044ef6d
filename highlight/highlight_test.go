package highlight

import (
	"strings"
	"testing"

	"quicknav/dom"
)

func TestLanguage(t *testing.T) {
	tests := []struct {
		class string
		want  string
	}{
		{"language-go", "go"},
		{"hljs lang-python", "python"},
		{"block language-js extra", "js"},
		{"plain", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := language(tt.class); got != tt.want {
			t.Errorf("language(%q) = %q, want %q", tt.class, got, tt.want)
		}
	}
}

func TestHighlightUnder(t *testing.T) {
	frags, _ := dom.ParseFragment(`<div>
<pre><code class="language-go">func main() {}</code></pre>
<pre><code>no language</code></pre>
<p><code class="language-go">inline</code></p>
</div>`)
	root := frags[0]

	h := New("github", nil)
	h.HighlightUnder(root)
	out := dom.Render(root)

	if !strings.Contains(out, `data-highlighted="1"`) {
		t.Fatalf("block not marked: %s", out)
	}
	if !strings.Contains(out, `<span class="`) {
		t.Errorf("no token spans: %s", out)
	}
	if !strings.Contains(out, "<code>no language</code>") {
		t.Errorf("unlabelled block changed: %s", out)
	}
	if !strings.Contains(out, `<code class="language-go">inline</code>`) {
		t.Errorf("inline code changed: %s", out)
	}

	// text survives highlighting
	var code string
	for _, n := range frags {
		code = dom.TextContent(n)
	}
	if !strings.Contains(code, "func main() {}") {
		t.Errorf("text = %q", code)
	}

	// a second pass leaves marked blocks alone
	h.HighlightUnder(root)
	if again := dom.Render(root); again != out {
		t.Error("second pass re-highlighted a block")
	}
}

func TestCSS(t *testing.T) {
	css := New("github", nil).CSS()
	if !strings.Contains(css, ".chroma") {
		t.Errorf("css = %q", css)
	}
}
