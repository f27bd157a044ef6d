// Package preview shows a floating preview of a same-origin page while the
// pointer rests on a link to it.
package preview

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/sync/singleflight"

	"quicknav/dom"
	"quicknav/event"
	"quicknav/fetcher"
	"quicknav/fragcache"
)

const (
	// PopupClass is the class of the popup element.
	PopupClass = "link-preview-popup"
	// Marker is the attribute set on anchors that have preview handling.
	Marker = "data-preview"

	loadingHTML     = "<em>Loading…</em>"
	unavailableHTML = "<em>Preview unavailable</em>"
)

// rootRelative matches links that stay on the current origin by path.
var rootRelative = cascadia.MustCompile("a[href^='/']")

// Fetcher is the part of fetcher.Client the controller needs.
type Fetcher interface {
	Fetch(ctx context.Context, req fetcher.Request) (*fetcher.Response, error)
}

// Options configures a Controller.
type Options struct {
	ContentID string
	HideDelay time.Duration
	Margin    int // offset from the pointer; zero means the default
	Policy    Policy
	Measurer  Measurer
	Logger    *slog.Logger
}

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	return Options{
		ContentID: "page-content",
		HideDelay: 120 * time.Millisecond,
		Margin:    20,
		Measurer:  DefaultMeasurer,
	}
}

// PopupState is a snapshot of the popup for drivers and tests.
type PopupState struct {
	Exists  bool
	Visible bool
	Left    int
	Top     int
	URL     string
	Content string
}

// Controller owns the popup singleton for one window.
type Controller struct {
	win    *dom.Window
	fetch  Fetcher
	cache  *fragcache.Cache
	opts   Options
	logger *slog.Logger
	group  singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu is held across popup writes; the lock order is mu then the
	// window lock.
	mu        sync.Mutex
	popup     *html.Node
	visible   bool
	left, top int
	url       string
	token     uint64
	hideGen   uint64
	hideTimer dom.Timer
	unsub     []func()
}

// New returns a controller for win. cache may be shared with other
// controllers of the same page.
func New(win *dom.Window, f Fetcher, cache *fragcache.Cache, opts Options) *Controller {
	def := DefaultOptions()
	if opts.ContentID == "" {
		opts.ContentID = def.ContentID
	}
	if opts.HideDelay <= 0 {
		opts.HideDelay = def.HideDelay
	}
	if opts.Margin <= 0 {
		opts.Margin = def.Margin
	}
	if opts.Measurer == nil {
		opts.Measurer = def.Measurer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cache == nil {
		cache = fragcache.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		win:    win,
		fetch:  f,
		cache:  cache,
		opts:   opts,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start instruments the document, re-instruments after mutations and
// subscribes to pointer events on bus.
func (c *Controller) Start(bus *event.Bus) {
	c.Attach(nil)
	unobserve := c.win.Observe(func(m dom.Mutation) {
		c.Attach(m.Target)
	})
	unsub := bus.Subscribe(event.HandlerFunc(c.handle))

	c.mu.Lock()
	c.unsub = append(c.unsub, unobserve, unsub)
	c.mu.Unlock()
}

func (c *Controller) handle(e event.Event) bool {
	switch e := e.(type) {
	case event.LinkHovered:
		c.Show(e.Link, e.X, e.Y)
	case event.PointerMoved:
		if c.instrumented(e.Link) {
			c.PositionPopup(e.X, e.Y)
		}
	case event.LinkLeft:
		if c.instrumented(e.Link) {
			c.ScheduleHide()
		}
	case event.PopupEntered:
		c.CancelHide()
	case event.PopupLeft:
		c.ScheduleHide()
	}
	return false
}

// Attach marks every root-relative anchor under root that is not marked
// yet and returns how many were newly marked. A nil root means the whole
// document.
func (c *Controller) Attach(root *html.Node) int {
	n := 0
	c.win.Write(func(doc *html.Node) {
		if root == nil {
			root = doc
		}
		for _, a := range rootRelative.MatchAll(root) {
			if dom.HasAttr(a, Marker) {
				continue
			}
			dom.SetAttr(a, Marker, "1")
			n++
		}
	})
	return n
}

func (c *Controller) instrumented(link *html.Node) bool {
	ok := false
	c.win.Read(func(*html.Node) {
		ok = link != nil && dom.Attr(link, Marker) == "1"
	})
	return ok
}

// Show opens the popup for link near the pointer at (x, y). Cross-origin
// and un-instrumented links are ignored. A cached fragment is rendered
// straight away; otherwise a placeholder is shown while the page loads.
func (c *Controller) Show(link *html.Node, x, y int) {
	link = dom.ClosestAnchor(link)
	if !c.instrumented(link) {
		return
	}

	var href string
	c.win.Read(func(*html.Node) { href = dom.Attr(link, "href") })
	loc := c.win.Location()
	u, err := dom.Resolve(loc, href)
	if err != nil || !dom.SameOrigin(u, loc) {
		return
	}
	target := u.String()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.ensurePopup()
	c.cancelHideLocked()
	c.token++
	token := c.token
	c.url = target

	if frag, ok := c.cache.Get(target); ok {
		c.renderFragment(frag)
		c.visible = true
		c.positionLocked(x, y)
		c.win.Highlight(c.popup)
		return
	}

	c.setContent(loadingHTML)
	c.visible = true
	c.positionLocked(x, y)

	c.wg.Add(1)
	go c.load(token, target)
}

func (c *Controller) load(token uint64, target string) {
	defer c.wg.Done()

	frag, err := c.LoadPage(c.ctx, target)

	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.token {
		c.logger.Debug("preview: discarding stale load", "url", target)
		return
	}
	if err != nil {
		c.logger.Debug("preview: load failed", "url", target, "error", err)
		c.setContent(unavailableHTML)
		return
	}
	c.renderFragment(frag)
	c.win.Highlight(c.popup)
}

// LoadPage returns the sanitized content region of target, from the cache
// when possible. Concurrent loads of the same url share one fetch.
func (c *Controller) LoadPage(ctx context.Context, target string) (*html.Node, error) {
	if frag, ok := c.cache.Get(target); ok {
		return frag, nil
	}

	_, err, _ := c.group.Do(target, func() (interface{}, error) {
		if _, ok := c.cache.Get(target); ok {
			return nil, nil
		}
		resp, err := c.fetch.Fetch(ctx, fetcher.Request{URL: target})
		if err != nil {
			return nil, err
		}
		if !resp.OK() {
			return nil, &fetcher.StatusError{URL: target, StatusCode: resp.StatusCode}
		}

		doc, err := dom.Parse(bytes.NewReader(resp.Body))
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", target, err)
		}
		frag, err := ExtractContent(doc, c.opts.ContentID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", target, err)
		}

		base, err := url.Parse(resp.URL)
		if err != nil || resp.URL == "" {
			base, _ = url.Parse(target)
		}
		Sanitize(frag, base, c.opts.Policy)
		c.cache.Put(target, frag)
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	frag, ok := c.cache.Get(target)
	if !ok {
		return nil, fmt.Errorf("%s: %w", target, ErrNoContentRegion)
	}
	return frag, nil
}

// PositionPopup places the popup margin pixels below and right of the
// pointer, then on the next frame pulls it back inside the viewport.
func (c *Controller) PositionPopup(x, y int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.popup == nil {
		return
	}
	c.positionLocked(x, y)
}

func (c *Controller) positionLocked(x, y int) {
	c.left = x + c.opts.Margin
	c.top = y + c.opts.Margin
	c.writeStyle()

	c.win.RequestFrame(c.clamp)
}

func (c *Controller) clamp() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.popup == nil || !c.visible {
		return
	}

	var w, h int
	c.win.Read(func(*html.Node) {
		w, h = c.opts.Measurer.Measure(c.popup)
	})
	vp := c.win.Viewport()
	m := c.opts.Margin

	if c.left+w > vp.Width {
		c.left = max(vp.Width-w-m, 0)
	}
	if c.top+h > vp.Height {
		c.top = max(vp.Height-h-m, 0)
	}
	c.writeStyle()
}

// ScheduleHide hides the popup after the hide delay unless the pointer
// comes back to the link or the popup first.
func (c *Controller) ScheduleHide() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.popup == nil {
		return
	}
	c.cancelHideLocked()
	gen := c.hideGen
	c.hideTimer = c.win.SetTimeout(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.hideGen {
			return
		}
		c.visible = false
		c.writeStyle()
	}, c.opts.HideDelay)
}

// CancelHide cancels a pending hide.
func (c *Controller) CancelHide() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelHideLocked()
}

// cancelHideLocked also invalidates a hide callback that has already
// fired but not yet taken the lock.
func (c *Controller) cancelHideLocked() {
	c.hideGen++
	if c.hideTimer != nil {
		c.hideTimer.Stop()
		c.hideTimer = nil
	}
}

func (c *Controller) ensurePopup() {
	if c.popup != nil {
		return
	}
	popup := dom.NewElement("div",
		html.Attribute{Key: "class", Val: PopupClass},
		html.Attribute{Key: "style", Val: "display:none"},
	)
	var parent *html.Node
	c.win.Read(func(doc *html.Node) {
		parent = dom.FindElement(doc, "body")
		if parent == nil {
			parent = doc
		}
	})
	c.win.Mutate(parent, func(*html.Node) {
		parent.AppendChild(popup)
	})
	c.popup = popup
}

func (c *Controller) writeStyle() {
	style := "display:none"
	if c.visible {
		style = fmt.Sprintf("display:block;left:%dpx;top:%dpx", c.left, c.top)
	}
	c.win.Write(func(*html.Node) {
		dom.SetAttr(c.popup, "style", style)
	})
}

func (c *Controller) setContent(markup string) {
	nodes, _ := dom.ParseFragment(markup)
	c.win.Mutate(c.popup, func(*html.Node) {
		dom.RemoveChildren(c.popup)
		for _, n := range nodes {
			c.popup.AppendChild(n)
		}
	})
}

func (c *Controller) renderFragment(frag *html.Node) {
	// ids in the live document stay unique
	dom.RemoveAttr(frag, "id")
	c.win.Mutate(c.popup, func(*html.Node) {
		dom.RemoveChildren(c.popup)
		c.popup.AppendChild(frag)
	})
}

// State returns a snapshot of the popup.
func (c *Controller) State() PopupState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := PopupState{
		Exists:  c.popup != nil,
		Visible: c.visible,
		Left:    c.left,
		Top:     c.top,
		URL:     c.url,
	}
	if c.popup != nil {
		c.win.Read(func(*html.Node) {
			st.Content = dom.InnerHTML(c.popup)
		})
	}
	return st
}

// Popup returns the popup element, or nil before the first hover.
func (c *Controller) Popup() *html.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.popup
}

// Wait blocks until in-flight loads have finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close unsubscribes from events and abandons in-flight loads.
func (c *Controller) Close() {
	c.mu.Lock()
	unsub := c.unsub
	c.unsub = nil
	c.token++
	c.cancelHideLocked()
	c.mu.Unlock()

	for _, u := range unsub {
		u()
	}
	c.cancel()
	c.wg.Wait()
}
