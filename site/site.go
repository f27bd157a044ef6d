// Package site serves a small markdown content site that speaks the partial
// navigation protocol. It is the development and test server for quicknav.
package site

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// Options configures the site. Pages holds markdown files; files under
// admin/ are only reachable below AdminPrefix.
type Options struct {
	Pages         fs.FS
	Title         string
	ContentID     string
	AdminPrefix   string
	PartialHeader string
	MaxAge        time.Duration
	Logger        *slog.Logger
}

// DefaultOptions returns the stock configuration without pages.
func DefaultOptions() Options {
	return Options{
		Title:         "quicknav",
		ContentID:     "page-content",
		AdminPrefix:   "/admin",
		PartialHeader: "X-Partial",
		MaxAge:        60 * time.Second,
	}
}

const adminDir = "admin"

type navLink struct {
	Href  string
	Label string
}

type pageData struct {
	Title     string
	Site      string
	Section   string
	ContentID string
	Nav       []navLink
	Body      template.HTML
}

var layout = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}} · {{.Site}}</title>
<link rel="stylesheet" href="/static/chroma.css">
</head>
<body class="{{.Section}}">
<nav>{{range .Nav}}
<a href="{{.Href}}">{{.Label}}</a>{{end}}
</nav>
<main id="{{.ContentID}}">
{{.Body}}
</main>
</body>
</html>
`))

// Site is an http.Handler serving the pages.
type Site struct {
	opts     Options
	md       goldmark.Markdown
	router   chi.Router
	nav      []navLink
	adminNav []navLink
	logger   *slog.Logger
	css      string
}

// New builds the site and indexes its pages for the navigation bar.
func New(opts Options) (*Site, error) {
	if opts.Pages == nil {
		return nil, errors.New("site: no pages")
	}
	def := DefaultOptions()
	if opts.Title == "" {
		opts.Title = def.Title
	}
	if opts.ContentID == "" {
		opts.ContentID = def.ContentID
	}
	if opts.AdminPrefix == "" {
		opts.AdminPrefix = def.AdminPrefix
	}
	opts.AdminPrefix = "/" + strings.Trim(opts.AdminPrefix, "/")
	if opts.PartialHeader == "" {
		opts.PartialHeader = def.PartialHeader
	}
	if opts.MaxAge < 0 {
		opts.MaxAge = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Site{
		opts:   opts,
		logger: logger,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
	}
	if err := s.index(); err != nil {
		return nil, err
	}
	s.router = s.buildRouter()
	return s, nil
}

// SetStylesheet sets the CSS served at /static/chroma.css.
func (s *Site) SetStylesheet(css string) {
	s.css = css
}

func (s *Site) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/static/chroma.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Header().Set("Cache-Control", s.cacheControl())
		fmt.Fprint(w, s.css)
	})
	r.Route(s.opts.AdminPrefix, func(r chi.Router) {
		r.Get("/", s.serveAdmin)
		r.Get("/*", s.serveAdmin)
	})
	r.Get("/*", s.servePublic)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.notFound(w, r, s.nav, "public")
	})
	return r
}

func (s *Site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Site) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("site: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"partial", r.Header.Get(s.opts.PartialHeader) != "",
			"elapsed", time.Since(start),
		)
	})
}

func (s *Site) servePublic(w http.ResponseWriter, r *http.Request) {
	name := pageName(chi.URLParam(r, "*"))
	if name == adminDir || strings.HasPrefix(name, adminDir+"/") {
		s.notFound(w, r, s.nav, "public")
		return
	}
	s.servePage(w, r, name, s.nav, "public")
}

func (s *Site) serveAdmin(w http.ResponseWriter, r *http.Request) {
	name := pageName(chi.URLParam(r, "*"))
	if name == "" {
		name = adminDir
	} else {
		name = adminDir + "/" + name
	}
	s.servePage(w, r, name, s.adminNav, "admin")
}

// pageName turns a url path into a page name without extension.
func pageName(p string) string {
	return strings.Trim(path.Clean("/"+p), "/")
}

func (s *Site) lookup(name string) ([]byte, error) {
	candidates := []string{name + ".md", path.Join(name, "index.md")}
	if name == "" {
		candidates = []string{"index.md"}
	}
	for _, c := range candidates {
		src, err := fs.ReadFile(s.opts.Pages, c)
		if err == nil {
			return src, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return nil, fs.ErrNotExist
}

func (s *Site) servePage(w http.ResponseWriter, r *http.Request, name string, nav []navLink, section string) {
	src, err := s.lookup(name)
	if errors.Is(err, fs.ErrNotExist) {
		s.notFound(w, r, nav, section)
		return
	}
	if err != nil {
		s.logger.Error("site: reading page", "page", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var body bytes.Buffer
	if err := s.md.Convert(src, &body); err != nil {
		s.logger.Error("site: rendering page", "page", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.write(w, http.StatusOK, pageData{
		Title:   titleOf(src, name),
		Section: section,
		Nav:     nav,
		Body:    template.HTML(body.String()),
	})
}

func (s *Site) notFound(w http.ResponseWriter, r *http.Request, nav []navLink, section string) {
	s.write(w, http.StatusNotFound, pageData{
		Title:   "Not found",
		Section: section,
		Nav:     nav,
		Body:    template.HTML("<h1>Not found</h1><p>No page at " + template.HTMLEscapeString(r.URL.Path) + ".</p>"),
	})
}

// write renders the layout. Partial requests get the same full document;
// the marker only changes the cache key.
func (s *Site) write(w http.ResponseWriter, status int, data pageData) {
	data.Site = s.opts.Title
	data.ContentID = s.opts.ContentID

	var buf bytes.Buffer
	if err := layout.Execute(&buf, data); err != nil {
		s.logger.Error("site: executing layout", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Add("Vary", s.opts.PartialHeader)
	if status == http.StatusOK {
		h.Set("Cache-Control", s.cacheControl())
	} else {
		h.Set("Cache-Control", "no-store")
	}
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func (s *Site) cacheControl() string {
	return fmt.Sprintf("public, max-age=%d", int(s.opts.MaxAge/time.Second))
}

// index builds the public and admin navigation bars from the page tree.
func (s *Site) index() error {
	err := fs.WalkDir(s.opts.Pages, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != ".md" {
			return nil
		}
		src, err := fs.ReadFile(s.opts.Pages, p)
		if err != nil {
			return err
		}

		name := strings.TrimSuffix(p, ".md")
		if path.Base(name) == "index" {
			name = strings.TrimSuffix(path.Dir(name), ".")
		}

		if name == adminDir || strings.HasPrefix(name, adminDir+"/") {
			rest := strings.TrimPrefix(strings.TrimPrefix(name, adminDir), "/")
			href := s.opts.AdminPrefix + "/" + rest
			s.adminNav = append(s.adminNav, navLink{Href: href, Label: titleOf(src, name)})
			return nil
		}
		s.nav = append(s.nav, navLink{Href: "/" + name, Label: titleOf(src, name)})
		return nil
	})
	if err != nil {
		return fmt.Errorf("site: indexing pages: %w", err)
	}
	sort.Slice(s.nav, func(i, j int) bool { return s.nav[i].Href < s.nav[j].Href })
	sort.Slice(s.adminNav, func(i, j int) bool { return s.adminNav[i].Href < s.adminNav[j].Href })
	return nil
}

// titleOf returns the first level-one heading, or the page name.
func titleOf(src []byte, name string) string {
	sc := bufio.NewScanner(bytes.NewReader(src))
	for sc.Scan() {
		if t, ok := strings.CutPrefix(strings.TrimSpace(sc.Text()), "# "); ok {
			return strings.TrimSpace(t)
		}
	}
	if name == "" {
		return "Home"
	}
	return path.Base(name)
}
