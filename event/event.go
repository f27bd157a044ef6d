// Package event carries user interaction from whatever drives a page (a
// terminal, a test, a headless browser bridge) to the components that react
// to it.
package event

import (
	"sync"

	"golang.org/x/net/html"
)

// Event is one of the payload types below.
type Event interface {
	event()
}

// Modifiers are the keys held during a click.
type Modifiers struct {
	Meta  bool
	Ctrl  bool
	Shift bool
	Alt   bool
}

// Any reports whether any modifier is held.
func (m Modifiers) Any() bool {
	return m.Meta || m.Ctrl || m.Shift || m.Alt
}

// LinkHovered fires when the pointer enters an anchor.
type LinkHovered struct {
	Link *html.Node
	X, Y int
}

// PointerMoved fires when the pointer moves within an anchor.
type PointerMoved struct {
	Link *html.Node
	X, Y int
}

// LinkLeft fires when the pointer leaves an anchor.
type LinkLeft struct {
	Link *html.Node
}

// PopupEntered fires when the pointer enters the preview popup.
type PopupEntered struct{}

// PopupLeft fires when the pointer leaves the preview popup.
type PopupLeft struct{}

// LinkClicked fires on a primary click. Target is the clicked node, which
// may be a descendant of the anchor.
type LinkClicked struct {
	Target    *html.Node
	Modifiers Modifiers
}

// PopState fires after the location moved to a same-document history entry.
type PopState struct {
	URL string
}

func (LinkHovered) event()  {}
func (PointerMoved) event() {}
func (LinkLeft) event()     {}
func (PopupEntered) event() {}
func (PopupLeft) event()    {}
func (LinkClicked) event()  {}
func (PopState) event()     {}

// Handler reacts to an event. Returning true cancels the default action,
// like preventDefault on a DOM event.
type Handler interface {
	Handle(e Event) bool
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(e Event) bool

func (f HandlerFunc) Handle(e Event) bool { return f(e) }

// Bus fans events out to subscribers in subscription order.
type Bus struct {
	mu   sync.RWMutex
	subs []subscription
	next int
}

type subscription struct {
	id int
	h  Handler
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe adds h and returns a func that removes it.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs = append(b.subs, subscription{id: id, h: h})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers e to every subscriber and reports whether any of them
// cancelled the default action.
func (b *Bus) Publish(e Event) bool {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	prevented := false
	for _, s := range subs {
		if s.h.Handle(e) {
			prevented = true
		}
	}
	return prevented
}
