// Package httpcache is the response cache behind the fetcher: what a
// browser keeps in its HTTP cache and what prefetching warms.
package httpcache

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Entry is a stored response.
type Entry struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	// Request holds the request header fields named by the response's
	// Vary header, as sent when the entry was stored.
	Request    http.Header
	StoredAt   time.Time
	FreshUntil time.Time
}

// Fresh reports whether the entry may be reused without revalidation.
func (e *Entry) Fresh(now time.Time) bool {
	return now.Before(e.FreshUntil)
}

// Matches reports whether a request with header h may be served this
// entry under the response's Vary rules.
func (e *Entry) Matches(h http.Header) bool {
	for _, field := range varyFields(e.Header) {
		if field == "*" {
			return false
		}
		if h.Get(field) != e.Request.Get(field) {
			return false
		}
	}
	return true
}

func varyFields(h http.Header) []string {
	var out []string
	for _, v := range h.Values("Vary") {
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				out = append(out, http.CanonicalHeaderKey(f))
			}
		}
	}
	return out
}

// Store persists entries by key.
type Store interface {
	Get(key string) (*Entry, bool)
	Put(key string, e *Entry) error
	Len() int
	Close() error
}

// Cacheable reports whether a response may be stored at all.
func Cacheable(status int, h http.Header) bool {
	if status != http.StatusOK {
		return false
	}
	cc := parseCacheControl(h.Get("Cache-Control"))
	if _, ok := cc["no-store"]; ok {
		return false
	}
	return true
}

// NewEntry builds an entry and computes its freshness lifetime from the
// response headers: max-age, then Expires, then the 10% Last-Modified
// heuristic. no-cache makes the entry immediately stale.
func NewEntry(rawURL string, status int, h http.Header, body []byte, now time.Time) *Entry {
	return &Entry{
		URL:        rawURL,
		StatusCode: status,
		Header:     h.Clone(),
		Body:       body,
		Request:    make(http.Header),
		StoredAt:   now,
		FreshUntil: now.Add(freshness(h, now)),
	}
}

// Vary records the request fields the response varies on.
func (e *Entry) Vary(req http.Header) *Entry {
	for _, field := range varyFields(e.Header) {
		if v := req.Get(field); v != "" {
			e.Request.Set(field, v)
		}
	}
	return e
}

func freshness(h http.Header, now time.Time) time.Duration {
	cc := parseCacheControl(h.Get("Cache-Control"))
	if _, ok := cc["no-cache"]; ok {
		return 0
	}
	if v, ok := cc["max-age"]; ok {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
		return 0
	}
	if exp := h.Get("Expires"); exp != "" {
		t, err := http.ParseTime(exp)
		if err != nil {
			return 0
		}
		date := now
		if d, err := http.ParseTime(h.Get("Date")); err == nil {
			date = d
		}
		if t.After(date) {
			return t.Sub(date)
		}
		return 0
	}
	if lm, err := http.ParseTime(h.Get("Last-Modified")); err == nil && lm.Before(now) {
		return now.Sub(lm) / 10
	}
	return 0
}

func parseCacheControl(v string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, val, _ := strings.Cut(part, "=")
		out[strings.ToLower(strings.TrimSpace(key))] = strings.Trim(strings.TrimSpace(val), `"`)
	}
	return out
}

// Memory is an in-process store, lost when the process exits.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemory returns an empty memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*Entry)}
}

func (m *Memory) Get(key string) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return e, ok
}

func (m *Memory) Put(key string, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = e
	return nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) Close() error { return nil }
