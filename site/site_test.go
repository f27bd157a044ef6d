package site

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
)

func testPages() fstest.MapFS {
	return fstest.MapFS{
		"index.md":       {Data: []byte("# Home\n\nSee [docs](/docs) and [intro](/docs/intro).\n")},
		"docs/index.md":  {Data: []byte("# Docs\n\nThe manual.\n")},
		"docs/intro.md":  {Data: []byte("# Intro\n\n```go\nfunc main() {}\n```\n")},
		"reindex.md":     {Data: []byte("no heading here\n")},
		"admin/index.md": {Data: []byte("# Admin\n")},
		"admin/users.md": {Data: []byte("# Users\n")},
	}
}

func get(t *testing.T, h http.Handler, path string, header http.Header) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, vs := range header {
		req.Header[k] = vs
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	resp := rec.Result()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func newSite(t *testing.T) *Site {
	t.Helper()
	opts := DefaultOptions()
	opts.Pages = testPages()
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestRoutes(t *testing.T) {
	s := newSite(t)

	tests := []struct {
		path       string
		wantStatus int
		wantTitle  string
	}{
		{"/", 200, "Home"},
		{"/docs", 200, "Docs"},
		{"/docs/", 200, "Docs"},
		{"/docs/intro", 200, "Intro"},
		{"/reindex", 200, "reindex"},
		{"/admin", 200, "Admin"},
		{"/admin/", 200, "Admin"},
		{"/admin/users", 200, "Users"},
		{"/users", 404, "Not found"},
		{"/nope", 404, "Not found"},
		{"/docs/../admin/users", 404, "Not found"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, body := get(t, s, tt.path, nil)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if !strings.Contains(body, "<title>"+tt.wantTitle+" · quicknav</title>") {
				t.Errorf("title missing %q in\n%s", tt.wantTitle, body)
			}
			if !strings.Contains(body, `<main id="page-content">`) {
				t.Error("content region missing")
			}
		})
	}
}

func TestPartialRequests(t *testing.T) {
	s := newSite(t)

	full, fullBody := get(t, s, "/docs", nil)
	partial, partialBody := get(t, s, "/docs", http.Header{"X-Partial": {"1"}})

	if fullBody != partialBody {
		t.Error("partial response differs from the full document")
	}
	for _, resp := range []*http.Response{full, partial} {
		if !strings.Contains(resp.Header.Get("Vary"), "X-Partial") {
			t.Errorf("Vary = %q", resp.Header.Get("Vary"))
		}
		if resp.Header.Get("Cache-Control") != "public, max-age=60" {
			t.Errorf("Cache-Control = %q", resp.Header.Get("Cache-Control"))
		}
	}

	missing, _ := get(t, s, "/nope", http.Header{"X-Partial": {"1"}})
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", missing.StatusCode)
	}
	if missing.Header.Get("Cache-Control") != "no-store" {
		t.Errorf("404 Cache-Control = %q", missing.Header.Get("Cache-Control"))
	}
}

func TestNavigation(t *testing.T) {
	s := newSite(t)

	_, public := get(t, s, "/", nil)
	for _, want := range []string{`href="/docs"`, `href="/docs/intro"`, `href="/"`} {
		if !strings.Contains(public, want) {
			t.Errorf("public nav missing %s", want)
		}
	}
	if strings.Contains(public, `href="/admin/users"`) {
		t.Error("public nav links to admin pages")
	}

	_, admin := get(t, s, "/admin/", nil)
	if !strings.Contains(admin, `href="/admin/users"`) {
		t.Error("admin nav missing users")
	}
	if !strings.Contains(admin, `<body class="admin">`) {
		t.Error("admin section class missing")
	}
}

func TestMarkdownCodeBlocks(t *testing.T) {
	s := newSite(t)
	_, body := get(t, s, "/docs/intro", nil)
	if !strings.Contains(body, `<pre><code class="language-go">`) {
		t.Errorf("fenced block not labelled:\n%s", body)
	}
}

func TestStylesheet(t *testing.T) {
	s := newSite(t)
	s.SetStylesheet(".chroma { color: red }")
	resp, body := get(t, s, "/static/chroma.css", nil)
	if resp.StatusCode != 200 || body != ".chroma { color: red }" {
		t.Errorf("status = %d body = %q", resp.StatusCode, body)
	}
}

func TestNewRequiresPages(t *testing.T) {
	if _, err := New(DefaultOptions()); err == nil {
		t.Error("New without pages should fail")
	}
}
