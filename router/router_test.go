package router

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"quicknav/dom"
	"quicknav/event"
	"quicknav/fetcher"
)

type page struct {
	status int
	body   string
	err    error
	gate   chan struct{}
	// deaf pages keep answering after the request was cancelled, as a
	// server that already sent its response would.
	deaf bool
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]*page
	reqs  []fetcher.Request
}

func (f *fakeFetcher) Fetch(ctx context.Context, req fetcher.Request) (*fetcher.Response, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	p, ok := f.pages[req.URL]
	f.mu.Unlock()
	if !ok {
		return nil, errors.New("no such host")
	}
	if p.gate != nil {
		if p.deaf {
			<-p.gate
		} else {
			select {
			case <-p.gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return &fetcher.Response{URL: req.URL, StatusCode: p.status, Body: []byte(p.body)}, nil
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type recorder struct {
	mu          sync.Mutex
	pushed      []string
	assigned    []string
	highlighted []*html.Node
}

func (r *recorder) PushState(u string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushed = append(r.pushed, u)
}

func (r *recorder) Assign(u string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assigned = append(r.assigned, u)
}

func (r *recorder) HighlightUnder(n *html.Node) {
	r.highlighted = append(r.highlighted, n)
}

func contentPage(title, body string) string {
	return `<html><head><title>` + title + `</title></head><body><nav></nav><main id="page-content">` + body + `</main></body></html>`
}

const livePage = `<html><head><title>Home</title></head><body>
<nav>
<a href="/docs">Docs</a>
<a href="/blog"><span id="inner">Blog</span></a>
<a href="/docs" target="_blank">New tab</a>
<a href="/docs" target="_self">Self</a>
<a href="/docs" download>Download</a>
<a href="http://other.com/docs">Other</a>
<a href="#top">Top</a>
<a href="/#top">Root top</a>
<a href="/docs#top">Docs top</a>
<a href="mailto:me@example.com">Mail</a>
</nav>
<main id="page-content"><p>home</p></main>
</body></html>`

type fixture struct {
	win *dom.Window
	rec *recorder
	f   *fakeFetcher
	r   *Router
	bus *event.Bus
}

func newFixture(t *testing.T, live string) *fixture {
	t.Helper()
	doc, err := dom.ParseString(live)
	if err != nil {
		t.Fatal(err)
	}
	loc, _ := url.Parse("http://example.com/")
	rec := &recorder{}
	win := dom.NewWindow(loc, doc, dom.Options{History: rec, Navigator: rec, Highlighter: rec})

	f := &fakeFetcher{pages: map[string]*page{
		"http://example.com/docs":    {status: 200, body: contentPage("Docs", "<p>docs</p>")},
		"http://example.com/blog":    {status: 200, body: contentPage("Blog", "<p>blog</p>")},
		"http://example.com/missing": {status: 404, body: "nope"},
		"http://example.com/bare":    {status: 200, body: "<html><body><p>bare</p></body></html>"},
		"http://example.com/down":    {err: errors.New("connection reset")},
	}}
	r := New(win, f, DefaultOptions())
	bus := event.NewBus()
	r.Start(bus)
	t.Cleanup(func() {
		r.Close()
		r.Wait()
	})
	return &fixture{win: win, rec: rec, f: f, r: r, bus: bus}
}

func (fx *fixture) content() string {
	var out string
	fx.win.Read(func(doc *html.Node) {
		if n := dom.FindByID(doc, "page-content"); n != nil {
			out = dom.InnerHTML(n)
		}
	})
	return out
}

func (fx *fixture) link(t *testing.T, selector string) *html.Node {
	t.Helper()
	sel := cascadia.MustCompile(selector)
	var n *html.Node
	fx.win.Read(func(doc *html.Node) { n = sel.MatchFirst(doc) })
	if n == nil {
		t.Fatalf("no element %q", selector)
	}
	return n
}

func TestNavigateApplies(t *testing.T) {
	fx := newFixture(t, livePage)

	res := fx.r.Navigate("http://example.com/docs", true).Wait()
	if res.Outcome != Applied {
		t.Fatalf("outcome = %v (%v)", res.Outcome, res.Err)
	}
	if got := fx.content(); got != "<p>docs</p>" {
		t.Errorf("content = %q", got)
	}
	if fx.win.Title() != "Docs" {
		t.Errorf("title = %q", fx.win.Title())
	}
	if fx.win.Location().String() != "http://example.com/docs" {
		t.Errorf("location = %s", fx.win.Location())
	}
	if len(fx.rec.pushed) != 1 || fx.rec.pushed[0] != "http://example.com/docs" {
		t.Errorf("pushed = %v", fx.rec.pushed)
	}
	if len(fx.rec.highlighted) != 1 || dom.Attr(fx.rec.highlighted[0], "id") != "page-content" {
		t.Errorf("highlighter ran over %v", fx.rec.highlighted)
	}

	req := fx.f.reqs[0]
	if req.Header.Get("X-Partial") != "1" {
		t.Errorf("partial marker missing: %v", req.Header)
	}
	if req.Mode != fetcher.ModeDefault {
		t.Errorf("mode = %v", req.Mode)
	}
}

func TestStaleResponseDiscarded(t *testing.T) {
	for _, deaf := range []bool{false, true} {
		name := "aborted"
		if deaf {
			name = "answered after abort"
		}
		t.Run(name, func(t *testing.T) {
			fx := newFixture(t, livePage)
			gate := make(chan struct{})
			fx.f.pages["http://example.com/docs"].gate = gate
			fx.f.pages["http://example.com/docs"].deaf = deaf

			a := fx.r.Navigate("http://example.com/docs", true)
			b := fx.r.Navigate("http://example.com/blog", true)
			if a.Token+1 != b.Token {
				t.Fatalf("tokens %d, %d", a.Token, b.Token)
			}

			if res := b.Wait(); res.Outcome != Applied {
				t.Fatalf("b outcome = %v (%v)", res.Outcome, res.Err)
			}
			close(gate)
			if res := a.Wait(); res.Outcome != Superseded {
				t.Errorf("a outcome = %v", res.Outcome)
			}

			if got := fx.content(); got != "<p>blog</p>" {
				t.Errorf("content = %q", got)
			}
			if fx.win.Title() != "Blog" {
				t.Errorf("title = %q", fx.win.Title())
			}
			if len(fx.rec.pushed) != 1 || fx.rec.pushed[0] != "http://example.com/blog" {
				t.Errorf("pushed = %v", fx.rec.pushed)
			}
			if len(fx.rec.assigned) != 0 {
				t.Errorf("superseded navigation fell back: %v", fx.rec.assigned)
			}
		})
	}
}

func TestSupersededFailureDoesNotFallBack(t *testing.T) {
	fx := newFixture(t, livePage)
	gate := make(chan struct{})
	down := fx.f.pages["http://example.com/down"]
	down.gate = gate
	down.deaf = true

	a := fx.r.Navigate("http://example.com/down", true)
	b := fx.r.Navigate("http://example.com/docs", true)
	b.Wait()
	close(gate)

	if res := a.Wait(); res.Outcome != Superseded {
		t.Errorf("outcome = %v", res.Outcome)
	}
	if len(fx.rec.assigned) != 0 {
		t.Errorf("assigned = %v", fx.rec.assigned)
	}
}

func TestFallback(t *testing.T) {
	tests := []struct {
		name    string
		live    string
		url     string
		wantErr error
	}{
		{"404", livePage, "http://example.com/missing", nil},
		{"network error", livePage, "http://example.com/down", nil},
		{"incoming region missing", livePage, "http://example.com/bare", ErrNoContentRegion},
		{"current region missing", `<html><body><p>no region</p></body></html>`, "http://example.com/docs", ErrNoContentRegion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, tt.live)
			before := fx.content()

			res := fx.r.Navigate(tt.url, true).Wait()
			if res.Outcome != FellBack {
				t.Fatalf("outcome = %v", res.Outcome)
			}
			if res.Err == nil {
				t.Error("fallback without a cause")
			}
			if tt.wantErr != nil && !errors.Is(res.Err, tt.wantErr) {
				t.Errorf("err = %v, want %v", res.Err, tt.wantErr)
			}
			if len(fx.rec.assigned) != 1 || fx.rec.assigned[0] != tt.url {
				t.Errorf("assigned = %v", fx.rec.assigned)
			}
			if fx.content() != before {
				t.Error("content swapped despite fallback")
			}
			if len(fx.rec.pushed) != 0 {
				t.Errorf("pushed = %v", fx.rec.pushed)
			}
		})
	}
}

func TestStatusFallbackCarriesStatus(t *testing.T) {
	fx := newFixture(t, livePage)
	res := fx.r.Navigate("http://example.com/missing", true).Wait()
	var se *fetcher.StatusError
	if !errors.As(res.Err, &se) || se.StatusCode != 404 {
		t.Errorf("err = %v", res.Err)
	}
}

func TestClickQualification(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		mods     event.Modifiers
		want     bool
	}{
		{"plain", `a[href="/docs"]:not([target]):not([download])`, event.Modifiers{}, true},
		{"descendant of anchor", "#inner", event.Modifiers{}, true},
		{"target self", `a[target="_self"]`, event.Modifiers{}, true},
		{"other path with hash", `a[href="/docs#top"]`, event.Modifiers{}, true},
		{"meta", `a[href="/docs"]:not([target]):not([download])`, event.Modifiers{Meta: true}, false},
		{"ctrl", `a[href="/docs"]:not([target]):not([download])`, event.Modifiers{Ctrl: true}, false},
		{"shift", `a[href="/docs"]:not([target]):not([download])`, event.Modifiers{Shift: true}, false},
		{"alt", `a[href="/docs"]:not([target]):not([download])`, event.Modifiers{Alt: true}, false},
		{"new tab", `a[target="_blank"]`, event.Modifiers{}, false},
		{"download", `a[download]`, event.Modifiers{}, false},
		{"cross origin", `a[href="http://other.com/docs"]`, event.Modifiers{}, false},
		{"hash only", `a[href="#top"]`, event.Modifiers{}, false},
		{"same path hash", `a[href="/#top"]`, event.Modifiers{}, false},
		{"mailto", `a[href^="mailto:"]`, event.Modifiers{}, false},
		{"not a link", "main", event.Modifiers{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, livePage)
			target := fx.link(t, tt.selector)

			prevented := fx.bus.Publish(event.LinkClicked{Target: target, Modifiers: tt.mods})
			fx.r.Wait()

			if prevented != tt.want {
				t.Errorf("prevented = %v, want %v", prevented, tt.want)
			}
			if fetched := fx.f.count() > 0; fetched != tt.want {
				t.Errorf("partial fetch issued = %v, want %v", fetched, tt.want)
			}
		})
	}
}

func TestPopStateDoesNotPush(t *testing.T) {
	fx := newFixture(t, livePage)
	fx.bus.Publish(event.PopState{URL: "http://example.com/blog"})
	fx.r.Wait()

	if got := fx.content(); got != "<p>blog</p>" {
		t.Errorf("content = %q", got)
	}
	if len(fx.rec.pushed) != 0 {
		t.Errorf("pushed = %v", fx.rec.pushed)
	}
	if fx.r.Token() != 1 {
		t.Errorf("token = %d", fx.r.Token())
	}
}

func TestCloseMakesNavigationsStale(t *testing.T) {
	fx := newFixture(t, livePage)
	gate := make(chan struct{})
	fx.f.pages["http://example.com/docs"].gate = gate
	fx.f.pages["http://example.com/docs"].deaf = true

	nav := fx.r.Navigate("http://example.com/docs", true)
	fx.r.Close()
	close(gate)
	if res := nav.Wait(); res.Outcome != Superseded {
		t.Errorf("outcome = %v", res.Outcome)
	}
	if strings.Contains(fx.content(), "docs") {
		t.Error("closed router applied a navigation")
	}
	if res := fx.r.Navigate("http://example.com/blog", true).Wait(); res.Outcome != Superseded {
		t.Errorf("navigate after close = %v", res.Outcome)
	}
}
