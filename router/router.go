// Package router turns same-origin link clicks into partial navigations:
// fetch the destination, swap its content region into the live document
// and push a history entry.
package router

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"quicknav/dom"
	"quicknav/event"
	"quicknav/fetcher"
)

// ErrNoContentRegion is reported when either document lacks the content
// region.
var ErrNoContentRegion = errors.New("content region not found")

// Fetcher is the part of fetcher.Client the router needs.
type Fetcher interface {
	Fetch(ctx context.Context, req fetcher.Request) (*fetcher.Response, error)
}

// Outcome is how a navigation ended.
type Outcome int

const (
	// Applied means the content region was swapped in place.
	Applied Outcome = iota + 1
	// Superseded means a newer navigation started first; nothing changed.
	Superseded
	// FellBack means a full navigation was requested instead.
	FellBack
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Superseded:
		return "superseded"
	case FellBack:
		return "fell back"
	default:
		return "pending"
	}
}

// Result describes a finished navigation.
type Result struct {
	URL     string
	Token   uint64
	Outcome Outcome
	Err     error
}

// Navigation is a handle on a navigation in progress.
type Navigation struct {
	URL   string
	Token uint64
	Push  bool

	done   chan struct{}
	result Result
}

// Wait blocks until the navigation has finished and returns its result.
func (n *Navigation) Wait() Result {
	<-n.done
	return n.result
}

// Options configures a Router.
type Options struct {
	ContentID    string
	PartialName  string
	PartialValue string
	Logger       *slog.Logger
}

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	return Options{
		ContentID:    "page-content",
		PartialName:  "X-Partial",
		PartialValue: "1",
	}
}

// Router runs partial navigations for one window. Only the most recently
// started navigation may change the document.
type Router struct {
	win    *dom.Window
	fetch  Fetcher
	opts   Options
	logger *slog.Logger

	wg sync.WaitGroup

	// mu is held while a swap is applied; the lock order is mu then the
	// window lock.
	mu     sync.Mutex
	token  uint64
	cancel context.CancelFunc
	closed bool
	unsub  func()
}

// New returns a router for win.
func New(win *dom.Window, f Fetcher, opts Options) *Router {
	def := DefaultOptions()
	if opts.ContentID == "" {
		opts.ContentID = def.ContentID
	}
	if opts.PartialName == "" {
		opts.PartialName = def.PartialName
		opts.PartialValue = def.PartialValue
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{win: win, fetch: f, opts: opts, logger: logger}
}

// Start subscribes to clicks and history pops on bus.
func (r *Router) Start(bus *event.Bus) {
	unsub := bus.Subscribe(event.HandlerFunc(func(e event.Event) bool {
		switch e := e.(type) {
		case event.LinkClicked:
			return r.HandleClick(e.Target, e.Modifiers)
		case event.PopState:
			r.Navigate(e.URL, false)
		}
		return false
	}))
	r.mu.Lock()
	r.unsub = unsub
	r.mu.Unlock()
}

// HandleClick starts a navigation for a qualifying click and reports
// whether the default action should be prevented.
func (r *Router) HandleClick(target *html.Node, mods event.Modifiers) bool {
	dest, ok := r.Qualifies(target, mods)
	if !ok {
		return false
	}
	r.Navigate(dest, true)
	return true
}

// Qualifies reports whether a click on target should be handled as a
// partial navigation, and returns the destination url if so.
func (r *Router) Qualifies(target *html.Node, mods event.Modifiers) (string, bool) {
	if mods.Any() {
		return "", false
	}

	var href, browsingContext string
	var download bool
	found := false
	r.win.Read(func(*html.Node) {
		a := dom.ClosestAnchor(target)
		if a == nil {
			return
		}
		found = true
		href = dom.Attr(a, "href")
		browsingContext = dom.Attr(a, "target")
		download = dom.HasAttr(a, "download")
	})
	if !found || download {
		return "", false
	}
	if browsingContext != "" && !strings.EqualFold(browsingContext, "_self") {
		return "", false
	}
	if strings.HasPrefix(strings.TrimSpace(href), "#") {
		return "", false
	}

	loc := r.win.Location()
	u, err := dom.Resolve(loc, href)
	if err != nil || !dom.SameOrigin(u, loc) {
		return "", false
	}
	if u.Fragment != "" && u.Path == loc.Path {
		return "", false
	}
	return u.String(), true
}

// Navigate mints a new token, aborts the previous navigation's request and
// starts fetching rawURL. With push set, an applied navigation adds a
// history entry.
func (r *Router) Navigate(rawURL string, push bool) *Navigation {
	nav := &Navigation{URL: rawURL, Push: push, done: make(chan struct{})}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		nav.result = Result{URL: rawURL, Outcome: Superseded}
		close(nav.done)
		return nav
	}
	r.token++
	nav.Token = r.token
	if r.cancel != nil {
		r.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer cancel()
		nav.result = r.run(ctx, nav)
		close(nav.done)
	}()
	return nav
}

func (r *Router) run(ctx context.Context, nav *Navigation) Result {
	res := Result{URL: nav.URL, Token: nav.Token}

	resp, err := r.fetch.Fetch(ctx, fetcher.Request{
		URL:      nav.URL,
		Header:   http.Header{r.opts.PartialName: {r.opts.PartialValue}},
		Priority: fetcher.PriorityHigh,
	})
	if r.stale(nav.Token) {
		r.logger.Debug("router: discarding superseded navigation", "url", nav.URL, "token", nav.Token)
		res.Outcome = Superseded
		return res
	}
	if err != nil {
		return r.fallback(res, err)
	}
	if !resp.OK() {
		return r.fallback(res, &fetcher.StatusError{URL: nav.URL, StatusCode: resp.StatusCode})
	}

	doc, err := dom.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return r.fallback(res, fmt.Errorf("parsing %s: %w", nav.URL, err))
	}
	incoming := dom.FindByID(doc, r.opts.ContentID)
	if incoming == nil {
		return r.fallback(res, fmt.Errorf("incoming document: %w", ErrNoContentRegion))
	}
	title := dom.Title(doc)

	r.mu.Lock()
	if nav.Token != r.token || r.closed {
		r.mu.Unlock()
		res.Outcome = Superseded
		return res
	}
	if err := r.win.ReplaceByID(r.opts.ContentID, incoming); err != nil {
		r.mu.Unlock()
		return r.fallback(res, fmt.Errorf("current document: %w", ErrNoContentRegion))
	}
	r.win.SetTitle(title)
	if nav.Push {
		if err := r.win.PushState(nav.URL); err != nil {
			r.logger.Warn("router: push state failed", "url", nav.URL, "error", err)
		}
	}
	r.win.Highlight(incoming)
	r.mu.Unlock()

	r.logger.Debug("router: applied", "url", nav.URL, "token", nav.Token, "cached", resp.FromCache)
	res.Outcome = Applied
	return res
}

func (r *Router) stale(token uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return token != r.token || r.closed
}

// fallback hands the url to a full navigation. It is only reached by the
// current navigation.
func (r *Router) fallback(res Result, cause error) Result {
	r.logger.Info("router: falling back to full navigation", "url", res.URL, "error", cause)
	r.win.Assign(res.URL)
	res.Outcome = FellBack
	res.Err = cause
	return res
}

// Token returns the most recently minted navigation token.
func (r *Router) Token() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.token
}

// Wait blocks until every started navigation has finished.
func (r *Router) Wait() {
	r.wg.Wait()
}

// Close unsubscribes, aborts the current request and makes any later
// result stale. It does not wait: a navigation falling back may be the
// caller.
func (r *Router) Close() {
	r.mu.Lock()
	r.closed = true
	unsub := r.unsub
	r.unsub = nil
	cancel := r.cancel
	r.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
}
