// Package session is one browser tab: a shared HTTP cache and fetcher, the
// joint history, and the currently loaded page with its prefetcher,
// preview controller and router.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"github.com/google/uuid"
	"golang.org/x/net/html"

	"quicknav/dom"
	"quicknav/event"
	"quicknav/fetcher"
	"quicknav/fragcache"
	"quicknav/httpcache"
	"quicknav/prefetch"
	"quicknav/preview"
	"quicknav/router"
)

var (
	// ErrNoPage is returned by interaction helpers before the first Open.
	ErrNoPage = errors.New("no page loaded")
	// ErrNoHistory is returned by Back and Forward at either end.
	ErrNoHistory = errors.New("no history entry")
	// ErrNoLink is returned for an out of range link index.
	ErrNoLink = errors.New("no such link")
)

var anchors = cascadia.MustCompile("a[href]")

// Options configures a Session. Zero values get the components' defaults.
type Options struct {
	Fetcher     fetcher.Options
	Store       httpcache.Store
	Prefetch    prefetch.Options
	Preview     preview.Options
	Router      router.Options
	Highlighter dom.Highlighter
	Viewport    dom.Viewport
	Clock       dom.Clock
	Idler       dom.Idler

	DisablePrefetch bool
	DisablePreview  bool
	DisableRouter   bool

	Logger *slog.Logger
}

// Page is one loaded document and the components bound to it. A full
// navigation replaces the whole Page, which resets the navigation token,
// the prefetch dedup set and the fragment cache.
type Page struct {
	DocID     string
	Window    *dom.Window
	Bus       *event.Bus
	Fragments *fragcache.Cache
	Prefetch  *prefetch.Scheduler
	Preview   *preview.Controller
	Router    *router.Router
}

func (p *Page) start() {
	if p.Prefetch != nil {
		p.Prefetch.Start()
	}
	if p.Preview != nil {
		p.Preview.Start(p.Bus)
	}
	if p.Router != nil {
		p.Router.Start(p.Bus)
	}
}

// Wait blocks until the page's background work has settled.
func (p *Page) Wait() {
	if p.Router != nil {
		p.Router.Wait()
	}
	if p.Preview != nil {
		p.Preview.Wait()
	}
	if p.Prefetch != nil {
		p.Prefetch.Wait()
	}
}

// Close tears the page's components down.
func (p *Page) Close() {
	if p.Router != nil {
		p.Router.Close()
	}
	if p.Preview != nil {
		p.Preview.Close()
	}
	if p.Prefetch != nil {
		p.Prefetch.Close()
	}
}

// Link is an anchor in the current document.
type Link struct {
	Index int
	Href  string
	Text  string
	Node  *html.Node
}

// ClickResult says what a click did.
type ClickResult int

const (
	// ClickPartial means the router took the click.
	ClickPartial ClickResult = iota + 1
	// ClickFullLoad means the click loaded a new document.
	ClickFullLoad
	// ClickFragment means the click moved to an anchor in the same document.
	ClickFragment
	// ClickElsewhere means the click targets another browsing context and
	// this tab did nothing.
	ClickElsewhere
)

func (c ClickResult) String() string {
	switch c {
	case ClickPartial:
		return "partial"
	case ClickFullLoad:
		return "full load"
	case ClickFragment:
		return "fragment"
	case ClickElsewhere:
		return "elsewhere"
	default:
		return "unknown"
	}
}

// Session is a browser tab.
type Session struct {
	id     string
	opts   Options
	client *fetcher.Client
	logger *slog.Logger

	// mu guards page, history and closed. It is never held while calling
	// into a page component, since the router calls back into the session
	// while holding its own lock.
	mu      sync.Mutex
	page    *Page
	history Buffer
	closed  bool

	// swapMu serializes page teardown and startup. A router falling back
	// installs pages from its own goroutine, concurrently with the driver.
	swapMu sync.Mutex
}

// New returns an empty tab.
func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Store == nil {
		opts.Store = httpcache.NewMemory()
	}
	id := uuid.NewString()
	return &Session{
		id:     id,
		opts:   opts,
		client: fetcher.New(opts.Fetcher, opts.Store, opts.Logger),
		logger: opts.Logger.With("session", id),
	}
}

// ID returns the session's id.
func (s *Session) ID() string { return s.id }

// Client returns the session's fetcher.
func (s *Session) Client() *fetcher.Client { return s.client }

// Page returns the current page, or nil before the first Open.
func (s *Session) Page() *Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// History returns a copy of the history stacks.
func (s *Session) History() Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := Buffer{
		History: append([]PageState(nil), s.history.History...),
		Current: s.history.Current,
		Forward: append([]PageState(nil), s.history.Forward...),
	}
	return b
}

// Open performs a full navigation to rawURL and pushes a history entry.
func (s *Session) Open(ctx context.Context, rawURL string) error {
	page, err := s.load(ctx, rawURL)
	if err != nil {
		return err
	}

	s.mu.Lock()
	old := s.page
	s.page = page
	if s.history.Current.URL != "" {
		s.history.History = append(s.history.History, s.history.Current)
	}
	s.history.Current = PageState{URL: page.Window.Location().String(), DocID: page.DocID}
	s.history.Forward = nil
	s.mu.Unlock()

	s.swap(old, page)
	return nil
}

// Assign is the full navigation path used when the router falls back.
func (s *Session) Assign(rawURL string) {
	if err := s.Open(context.Background(), rawURL); err != nil {
		s.logger.Warn("session: full navigation failed", "url", rawURL, "error", err)
	}
}

// load fetches and parses a document and builds a page for it. Error
// statuses still produce a page, as a browser shows the error document.
func (s *Session) load(ctx context.Context, rawURL string) (*Page, error) {
	resp, err := s.client.Document(ctx, rawURL)
	var se *fetcher.StatusError
	switch {
	case errors.As(err, &se) && resp != nil:
		s.logger.Info("session: loaded error page", "url", rawURL, "status", se.StatusCode)
	case err != nil:
		return nil, err
	}

	doc, err := dom.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", rawURL, err)
	}
	loc, err := url.Parse(resp.URL)
	if err != nil || resp.URL == "" {
		if loc, err = url.Parse(rawURL); err != nil {
			return nil, fmt.Errorf("parsing url %q: %w", rawURL, err)
		}
	}
	// the requested fragment survives the load
	if req, err := url.Parse(rawURL); err == nil && loc.Fragment == "" {
		loc.Fragment = req.Fragment
	}
	return s.newPage(loc, doc), nil
}

func (s *Session) newPage(loc *url.URL, doc *html.Node) *Page {
	id := uuid.NewString()
	p := &Page{
		DocID:     id,
		Bus:       event.NewBus(),
		Fragments: fragcache.New(),
	}
	p.Window = dom.NewWindow(loc, doc, dom.Options{
		Clock:       s.opts.Clock,
		Idler:       s.opts.Idler,
		History:     pageHistory{s: s, docID: id},
		Navigator:   s,
		Highlighter: s.opts.Highlighter,
		Viewport:    s.opts.Viewport,
		Logger:      s.opts.Logger,
	})

	if !s.opts.DisablePrefetch {
		o := s.opts.Prefetch
		o.Logger = s.logger
		p.Prefetch = prefetch.New(p.Window, s.client, o)
	}
	if !s.opts.DisablePreview {
		o := s.opts.Preview
		o.Logger = s.logger
		p.Preview = preview.New(p.Window, s.client, p.Fragments, o)
	}
	if !s.opts.DisableRouter {
		o := s.opts.Router
		o.Logger = s.logger
		p.Router = router.New(p.Window, s.client, o)
	}
	return p
}

func (s *Session) swap(old, page *Page) {
	s.swapMu.Lock()
	defer s.swapMu.Unlock()
	if old != nil {
		old.Close()
	}
	s.mu.Lock()
	current, closed := s.page == page, s.closed
	if closed && current {
		s.page = nil
	}
	s.mu.Unlock()
	if closed {
		page.Close()
		return
	}
	// a later navigation already replaced page and closed it
	if !current {
		s.logger.Debug("session: page superseded before start", "doc", page.DocID)
		return
	}
	// highlight the initial document before the components see it
	page.Window.Highlight(page.documentRoot())
	page.start()
	s.logger.Debug("session: page loaded", "url", page.Window.Location().String(), "doc", page.DocID)
}

func (p *Page) documentRoot() *html.Node {
	var root *html.Node
	p.Window.Read(func(doc *html.Node) { root = doc })
	return root
}

// pageHistory records same-document entries for one page.
type pageHistory struct {
	s     *Session
	docID string
}

func (h pageHistory) PushState(rawURL string) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if h.s.page == nil || h.s.page.DocID != h.docID {
		return
	}
	h.s.history.History = append(h.s.history.History, h.s.history.Current)
	h.s.history.Current = PageState{URL: rawURL, DocID: h.docID}
	h.s.history.Forward = nil
}

// Back moves one entry back.
func (s *Session) Back(ctx context.Context) error {
	s.mu.Lock()
	n := len(s.history.History)
	if n == 0 {
		s.mu.Unlock()
		return ErrNoHistory
	}
	target := s.history.History[n-1]
	s.history.History = s.history.History[:n-1]
	s.history.Forward = append(s.history.Forward, s.history.Current)
	s.history.Current = target
	page := s.page
	s.mu.Unlock()

	return s.traverse(ctx, target, page)
}

// Forward moves one entry forward.
func (s *Session) Forward(ctx context.Context) error {
	s.mu.Lock()
	n := len(s.history.Forward)
	if n == 0 {
		s.mu.Unlock()
		return ErrNoHistory
	}
	target := s.history.Forward[n-1]
	s.history.Forward = s.history.Forward[:n-1]
	s.history.History = append(s.history.History, s.history.Current)
	s.history.Current = target
	page := s.page
	s.mu.Unlock()

	return s.traverse(ctx, target, page)
}

// traverse makes target current. Entries of the live document become a
// pop-state; anything else is a full load that replaces the entry's
// document id.
func (s *Session) traverse(ctx context.Context, target PageState, page *Page) error {
	if page != nil && target.DocID == page.DocID {
		if err := page.Window.SetLocation(target.URL); err != nil {
			return err
		}
		page.Bus.Publish(event.PopState{URL: target.URL})
		return nil
	}

	next, err := s.load(ctx, target.URL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	old := s.page
	s.page = next
	if s.history.Current.URL == target.URL && s.history.Current.DocID == target.DocID {
		s.history.Current.DocID = next.DocID
	}
	s.mu.Unlock()

	s.swap(old, next)
	return nil
}

// Links lists the anchors of the current document in document order,
// leaving out the preview popup.
func (s *Session) Links() []Link {
	page := s.Page()
	if page == nil {
		return nil
	}
	var popup *html.Node
	if page.Preview != nil {
		popup = page.Preview.Popup()
	}

	var links []Link
	page.Window.Read(func(doc *html.Node) {
		for _, a := range anchors.MatchAll(doc) {
			if popup != nil && dom.Contains(popup, a) {
				continue
			}
			links = append(links, Link{
				Index: len(links),
				Href:  dom.Attr(a, "href"),
				Text:  strings.Join(strings.Fields(dom.TextContent(a)), " "),
				Node:  a,
			})
		}
	})
	return links
}

func (s *Session) link(i int) (*Page, *html.Node, error) {
	page := s.Page()
	if page == nil {
		return nil, nil, ErrNoPage
	}
	links := s.Links()
	if i < 0 || i >= len(links) {
		return nil, nil, fmt.Errorf("link %d: %w", i, ErrNoLink)
	}
	return page, links[i].Node, nil
}

// Hover moves the pointer onto link i at (x, y).
func (s *Session) Hover(i, x, y int) error {
	page, a, err := s.link(i)
	if err != nil {
		return err
	}
	page.Bus.Publish(event.LinkHovered{Link: a, X: x, Y: y})
	return nil
}

// Move moves the pointer within link i.
func (s *Session) Move(i, x, y int) error {
	page, a, err := s.link(i)
	if err != nil {
		return err
	}
	page.Bus.Publish(event.PointerMoved{Link: a, X: x, Y: y})
	return nil
}

// Leave moves the pointer off link i.
func (s *Session) Leave(i int) error {
	page, a, err := s.link(i)
	if err != nil {
		return err
	}
	page.Bus.Publish(event.LinkLeft{Link: a})
	return nil
}

// EnterPopup moves the pointer onto the preview popup.
func (s *Session) EnterPopup() error {
	page := s.Page()
	if page == nil {
		return ErrNoPage
	}
	page.Bus.Publish(event.PopupEntered{})
	return nil
}

// LeavePopup moves the pointer off the preview popup.
func (s *Session) LeavePopup() error {
	page := s.Page()
	if page == nil {
		return ErrNoPage
	}
	page.Bus.Publish(event.PopupLeft{})
	return nil
}

// Click clicks link i. When no handler takes the click the browser's
// default action runs: a same-document fragment move, a full load, or
// nothing for clicks aimed at another browsing context.
func (s *Session) Click(ctx context.Context, i int, mods event.Modifiers) (ClickResult, error) {
	page, a, err := s.link(i)
	if err != nil {
		return 0, err
	}
	if page.Bus.Publish(event.LinkClicked{Target: a, Modifiers: mods}) {
		return ClickPartial, nil
	}

	var href, target string
	page.Window.Read(func(*html.Node) {
		href = dom.Attr(a, "href")
		target = dom.Attr(a, "target")
	})
	if mods.Any() || (target != "" && !strings.EqualFold(target, "_self")) {
		return ClickElsewhere, nil
	}

	loc := page.Window.Location()
	dest, err := dom.Resolve(loc, href)
	if err != nil {
		return 0, fmt.Errorf("resolving %q: %w", href, err)
	}
	if dest.Fragment != "" && dom.StripFragment(dest).String() == dom.StripFragment(loc).String() {
		if err := page.Window.PushState(dest.String()); err != nil {
			return 0, err
		}
		return ClickFragment, nil
	}
	if err := s.Open(ctx, dest.String()); err != nil {
		return 0, err
	}
	return ClickFullLoad, nil
}

// Wait blocks until the current page has settled, following full
// navigations started by a router fallback.
func (s *Session) Wait() {
	for {
		page := s.Page()
		if page == nil {
			return
		}
		page.Wait()
		if s.Page() == page {
			return
		}
	}
}

// State returns the persistable form of the session.
func (s *Session) State() *State {
	return &State{ID: s.id, Buffers: []Buffer{s.History()}}
}

// Save writes the session to path.
func (s *Session) Save(path string) error {
	return SaveState(path, s.State())
}

// Restore replaces history with st and loads its current entry.
func (s *Session) Restore(ctx context.Context, st *State) error {
	if len(st.Buffers) == 0 {
		return ErrNoHistory
	}
	idx := st.CurrentBufferIdx
	if idx < 0 || idx >= len(st.Buffers) {
		idx = 0
	}
	buf := st.Buffers[idx]
	if buf.Current.URL == "" {
		return ErrNoHistory
	}

	page, err := s.load(ctx, buf.Current.URL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	old := s.page
	s.page = page
	s.history = Buffer{
		History: append([]PageState(nil), buf.History...),
		Current: PageState{URL: buf.Current.URL, DocID: page.DocID},
		Forward: append([]PageState(nil), buf.Forward...),
	}
	s.mu.Unlock()

	s.swap(old, page)
	return nil
}

// Close tears down the current page and the cache store.
func (s *Session) Close() error {
	s.swapMu.Lock()
	defer s.swapMu.Unlock()
	s.mu.Lock()
	page := s.page
	s.page = nil
	s.closed = true
	s.mu.Unlock()
	if page != nil {
		page.Close()
	}
	return s.client.Store().Close()
}
