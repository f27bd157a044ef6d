package dom

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/html"
)

const testPage = `<!DOCTYPE html>
<html>
<head><title>Home</title></head>
<body>
<nav><a href="/docs">Docs</a></nav>
<main id="page-content"><h1>Home</h1><p>Welcome</p></main>
</body>
</html>`

func newTestWindow(t *testing.T) *Window {
	t.Helper()
	doc, err := ParseString(testPage)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	loc, _ := url.Parse("http://example.com/home")
	return NewWindow(loc, doc, Options{Clock: NewManualClock()})
}

func TestOrigin(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://example.com/a", "http://example.com"},
		{"http://Example.com:80/a", "http://example.com"},
		{"https://example.com:443/", "https://example.com"},
		{"https://example.com:8443/", "https://example.com:8443"},
		{"mailto:someone@example.com", "null"},
		{"/relative", "null"},
	}

	for _, tt := range tests {
		u, err := url.Parse(tt.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tt.in, err)
		}
		if got := Origin(u); got != tt.want {
			t.Errorf("Origin(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSameOrigin(t *testing.T) {
	a, _ := url.Parse("http://example.com/a")
	b, _ := url.Parse("http://example.com:80/b?q=1")
	c, _ := url.Parse("https://example.com/a")
	if !SameOrigin(a, b) {
		t.Error("expected default port to match")
	}
	if SameOrigin(a, c) {
		t.Error("different schemes must not match")
	}
	m, _ := url.Parse("mailto:x@example.com")
	if SameOrigin(m, m) {
		t.Error("opaque origins must never match")
	}
}

func TestWindowResolve(t *testing.T) {
	w := newTestWindow(t)
	u, err := w.Resolve("../docs/intro#top")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if u.String() != "http://example.com/docs/intro#top" {
		t.Errorf("Resolve = %q", u.String())
	}
}

func TestReplaceByIDNotifiesObservers(t *testing.T) {
	w := newTestWindow(t)

	var got []Mutation
	stop := w.Observe(func(m Mutation) { got = append(got, m) })

	frag, err := ParseString(`<html><body><main id="page-content"><h1>Docs</h1></main></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	replacement := FindByID(frag, "page-content")
	if err := w.ReplaceByID("page-content", replacement); err != nil {
		t.Fatalf("ReplaceByID: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("observer calls = %d, want 1", len(got))
	}

	var text string
	w.Read(func(doc *html.Node) { text = TextContent(FindByID(doc, "page-content")) })
	if text != "Docs" {
		t.Errorf("content = %q, want %q", text, "Docs")
	}

	stop()
	w.Mutate(nil, func(*html.Node) {})
	if len(got) != 1 {
		t.Errorf("observer still called after unregister")
	}
}

func TestReplaceByIDMissing(t *testing.T) {
	w := newTestWindow(t)
	if err := w.ReplaceByID("nope", NewElement("div")); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestSetTitleUpdatesElement(t *testing.T) {
	w := newTestWindow(t)
	if w.Title() != "Home" {
		t.Fatalf("Title = %q", w.Title())
	}
	w.SetTitle("Docs")
	var title string
	w.Read(func(doc *html.Node) { title = Title(doc) })
	if title != "Docs" || w.Title() != "Docs" {
		t.Errorf("title not updated: %q / %q", title, w.Title())
	}
}

type recordingHistory struct{ urls []string }

func (h *recordingHistory) PushState(u string) { h.urls = append(h.urls, u) }

func TestPushState(t *testing.T) {
	doc, _ := ParseString(testPage)
	loc, _ := url.Parse("http://example.com/home")
	h := &recordingHistory{}
	w := NewWindow(loc, doc, Options{History: h})

	if err := w.PushState("/docs"); err != nil {
		t.Fatal(err)
	}
	if w.Location().Path != "/docs" {
		t.Errorf("location = %q", w.Location())
	}
	if len(h.urls) != 1 || h.urls[0] != "http://example.com/docs" {
		t.Errorf("history = %v", h.urls)
	}
}

func TestCloneIsDetached(t *testing.T) {
	doc, _ := ParseString(testPage)
	main := FindByID(doc, "page-content")
	c := Clone(main)
	if c.Parent != nil {
		t.Error("clone has a parent")
	}
	SetAttr(c, "id", "other")
	if Attr(main, "id") != "page-content" {
		t.Error("clone shares attributes with original")
	}
	if !strings.Contains(Render(c), "Welcome") {
		t.Errorf("clone lost content: %s", Render(c))
	}
}

func TestManualClockOrder(t *testing.T) {
	c := NewManualClock()
	var order []string
	c.AfterFunc(30*time.Millisecond, func() { order = append(order, "c") })
	c.AfterFunc(10*time.Millisecond, func() {
		order = append(order, "a")
		c.AfterFunc(5*time.Millisecond, func() { order = append(order, "b") })
	})
	stopped := c.AfterFunc(20*time.Millisecond, func() { order = append(order, "x") })
	if !stopped.Stop() {
		t.Fatal("Stop on armed timer returned false")
	}

	c.Advance(25 * time.Millisecond)
	if strings.Join(order, "") != "ab" {
		t.Fatalf("order after 25ms = %v", order)
	}
	if c.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", c.Pending())
	}
	c.Advance(10 * time.Millisecond)
	if strings.Join(order, "") != "abc" {
		t.Errorf("order = %v", order)
	}
}
