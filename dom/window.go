// Package dom models the browser side of a loaded page: its location, its
// document tree and the facilities scripts use (timers, idle callbacks,
// animation frames, mutation observers, history).
package dom

import (
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/html"
)

// FrameInterval is the delay used for animation frame callbacks.
const FrameInterval = 16 * time.Millisecond

// Viewport is the visible area popups are clamped to.
type Viewport struct {
	Width  int
	Height int
}

// Mutation describes a childList change under Target.
type Mutation struct {
	Target *html.Node
}

// Idler runs f when the host is idle, or after timeout at the latest.
type Idler interface {
	RequestIdle(f func(), timeout time.Duration)
}

// History receives same-document history entries.
type History interface {
	PushState(rawURL string)
}

// Navigator performs a full, non-partial navigation.
type Navigator interface {
	Assign(rawURL string)
}

// Highlighter re-runs syntax highlighting over a subtree.
type Highlighter interface {
	HighlightUnder(root *html.Node)
}

// Options configures a Window. Every field is optional.
type Options struct {
	Clock       Clock
	Idler       Idler
	History     History
	Navigator   Navigator
	Highlighter Highlighter
	Viewport    Viewport
	Logger      *slog.Logger
}

// Window owns a document and its location. All access to the tree goes
// through Read, Write or Mutate so that fetch continuations running on
// other goroutines never race with each other.
type Window struct {
	mu       sync.RWMutex
	location *url.URL
	doc      *html.Node
	title    string

	clock       Clock
	idler       Idler
	history     History
	navigator   Navigator
	highlighter Highlighter
	viewport    Viewport
	logger      *slog.Logger

	obsMu     sync.Mutex
	observers map[int]func(Mutation)
	nextObs   int
}

// NewWindow wraps doc loaded from location.
func NewWindow(location *url.URL, doc *html.Node, opts Options) *Window {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Viewport.Width <= 0 {
		opts.Viewport.Width = 1280
	}
	if opts.Viewport.Height <= 0 {
		opts.Viewport.Height = 800
	}
	loc := *location
	return &Window{
		location:    &loc,
		doc:         doc,
		title:       Title(doc),
		clock:       opts.Clock,
		idler:       opts.Idler,
		history:     opts.History,
		navigator:   opts.Navigator,
		highlighter: opts.Highlighter,
		viewport:    opts.Viewport,
		logger:      opts.Logger,
		observers:   make(map[int]func(Mutation)),
	}
}

// Location returns a copy of the current URL.
func (w *Window) Location() *url.URL {
	w.mu.RLock()
	defer w.mu.RUnlock()
	loc := *w.location
	return &loc
}

// Resolve resolves href against the current location.
func (w *Window) Resolve(href string) (*url.URL, error) {
	return Resolve(w.Location(), href)
}

// SetLocation changes the URL without touching history, as happens when
// the user moves through same-document history entries.
func (w *Window) SetLocation(rawURL string) error {
	u, err := w.Resolve(rawURL)
	if err != nil {
		return fmt.Errorf("dom: set location %q: %w", rawURL, err)
	}
	w.mu.Lock()
	w.location = u
	w.mu.Unlock()
	return nil
}

// PushState records a same-document history entry and moves the location.
func (w *Window) PushState(rawURL string) error {
	if err := w.SetLocation(rawURL); err != nil {
		return err
	}
	if w.history != nil {
		w.history.PushState(w.Location().String())
	}
	return nil
}

// Assign performs a full navigation. Without a navigator it only logs.
func (w *Window) Assign(rawURL string) {
	if w.navigator == nil {
		w.logger.Warn("dom: full navigation requested with no navigator", "url", rawURL)
		return
	}
	w.navigator.Assign(rawURL)
}

// Title returns document.title.
func (w *Window) Title() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.title
}

// SetTitle updates document.title and the <title> element if present.
func (w *Window) SetTitle(title string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.title = title
	if t := FindElement(w.doc, "title"); t != nil {
		RemoveChildren(t)
		t.AppendChild(&html.Node{Type: html.TextNode, Data: title})
	}
}

// Viewport returns the visible area.
func (w *Window) Viewport() Viewport {
	return w.viewport
}

// Clock returns the clock timers are scheduled on.
func (w *Window) Clock() Clock {
	return w.clock
}

// Read runs fn with shared access to the document.
func (w *Window) Read(fn func(doc *html.Node)) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	fn(w.doc)
}

// Write runs fn with exclusive access for attribute-only changes.
// Observers are not notified.
func (w *Window) Write(fn func(doc *html.Node)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(w.doc)
}

// Mutate runs fn with exclusive access for a childList change under target,
// then notifies observers once the lock is released.
func (w *Window) Mutate(target *html.Node, fn func(doc *html.Node)) {
	w.mu.Lock()
	fn(w.doc)
	w.mu.Unlock()
	w.notify(Mutation{Target: target})
}

// ReplaceByID swaps the element with the given id for replacement.
func (w *Window) ReplaceByID(id string, replacement *html.Node) error {
	var old *html.Node
	w.mu.Lock()
	old = FindByID(w.doc, id)
	if old == nil || old.Parent == nil {
		w.mu.Unlock()
		return fmt.Errorf("dom: no element with id %q", id)
	}
	Detach(replacement)
	parent := old.Parent
	parent.InsertBefore(replacement, old)
	parent.RemoveChild(old)
	w.mu.Unlock()
	w.notify(Mutation{Target: parent})
	return nil
}

// Observe registers fn for childList mutations anywhere in the document.
// The returned func unregisters it.
func (w *Window) Observe(fn func(Mutation)) func() {
	w.obsMu.Lock()
	id := w.nextObs
	w.nextObs++
	w.observers[id] = fn
	w.obsMu.Unlock()
	return func() {
		w.obsMu.Lock()
		delete(w.observers, id)
		w.obsMu.Unlock()
	}
}

func (w *Window) notify(m Mutation) {
	w.obsMu.Lock()
	fns := make([]func(Mutation), 0, len(w.observers))
	for _, fn := range w.observers {
		fns = append(fns, fn)
	}
	w.obsMu.Unlock()
	for _, fn := range fns {
		fn(m)
	}
}

// SetTimeout arms f after d.
func (w *Window) SetTimeout(f func(), d time.Duration) Timer {
	return w.clock.AfterFunc(d, f)
}

// RequestIdle defers f to an idle period, falling back to a timer that
// fires after timeout when no idle facility is installed.
func (w *Window) RequestIdle(f func(), timeout time.Duration) {
	if w.idler != nil {
		w.idler.RequestIdle(f, timeout)
		return
	}
	w.clock.AfterFunc(timeout, f)
}

// RequestFrame runs f once layout for pending changes is available.
func (w *Window) RequestFrame(f func()) {
	w.clock.AfterFunc(FrameInterval, f)
}

// Highlight runs the highlighter over root. Absent a highlighter it is a no-op.
func (w *Window) Highlight(root *html.Node) {
	if w.highlighter == nil || root == nil {
		return
	}
	w.Mutate(root, func(*html.Node) {
		w.highlighter.HighlightUnder(root)
	})
}
