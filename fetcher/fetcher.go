// Package fetcher provides the page's fetch facility: HTTP requests that go
// through a shared response cache, with optional browser rendering for full
// document loads.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync/atomic"
	"time"

	"quicknav/httpcache"
)

// Mode selects how a request uses the cache, after the fetch() cache modes.
type Mode int

const (
	// ModeDefault serves fresh cache entries and otherwise goes to the network.
	ModeDefault Mode = iota
	// ModeForceCache serves any matching cache entry regardless of age.
	ModeForceCache
)

func (m Mode) String() string {
	switch m {
	case ModeForceCache:
		return "force-cache"
	default:
		return "default"
	}
}

// Priority is a fetch priority hint, sent as an RFC 9218 Priority header.
type Priority int

const (
	PriorityAuto Priority = iota
	PriorityLow
	PriorityHigh
)

func (p Priority) header() string {
	switch p {
	case PriorityLow:
		return "u=6"
	case PriorityHigh:
		return "u=1"
	default:
		return ""
	}
}

// Request describes a single GET.
type Request struct {
	URL      string
	Header   http.Header
	Mode     Mode
	Priority Priority
	// Purpose is sent as Sec-Purpose, e.g. "prefetch".
	Purpose string
}

// Response is a fetched (or cached) response with its body fully read.
type Response struct {
	URL         string // URL after following redirects
	StatusCode  int
	Header      http.Header
	Body        []byte
	FromCache   bool
	UsedBrowser bool
	FetchTime   time.Duration
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// StatusError is returned by callers that treat a non-2xx status as failure.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetching %s: status %d", e.URL, e.StatusCode)
}

// Options configures the fetcher behavior.
type Options struct {
	UserAgent      string
	TimeoutSeconds int
	ChromePath     string // Path to Chrome binary (empty = auto-detect)
	UseBrowser     bool   // Render full document loads in headless Chrome
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		UserAgent:      "quicknav/1.0 (+https://github.com/quicknav)",
		TimeoutSeconds: 30,
	}
}

// Client fetches through a cache store. It is safe for concurrent use.
type Client struct {
	opts   Options
	http   *http.Client
	store  httpcache.Store
	logger *slog.Logger
	now    func() time.Time

	requests atomic.Int64
	hits     atomic.Int64
}

// New returns a client using store as its HTTP cache. A nil store gets a
// fresh memory store.
func New(o Options, store httpcache.Store, logger *slog.Logger) *Client {
	def := DefaultOptions()
	if o.UserAgent == "" {
		o.UserAgent = def.UserAgent
	}
	if o.TimeoutSeconds < 0 {
		o.TimeoutSeconds = 0
	}
	if store == nil {
		store = httpcache.NewMemory()
	}
	if logger == nil {
		logger = slog.Default()
	}
	jar, _ := cookiejar.New(nil)
	return &Client{
		opts: o,
		http: &http.Client{
			Timeout: time.Duration(o.TimeoutSeconds) * time.Second,
			Jar:     jar,
		},
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Options returns the options the client was built with.
func (c *Client) Options() Options {
	return c.opts
}

// Store returns the client's cache.
func (c *Client) Store() httpcache.Store {
	return c.store
}

// Requests returns how many requests went to the network.
func (c *Client) Requests() int64 {
	return c.requests.Load()
}

// CacheHits returns how many requests were served from the cache.
func (c *Client) CacheHits() int64 {
	return c.hits.Load()
}

func cacheKey(u *url.URL) string {
	k := *u
	k.Fragment = ""
	k.RawFragment = ""
	return "GET " + k.String()
}

// Fetch performs req. Non-2xx responses are returned without error; the
// caller decides what a failed status means.
func (c *Client) Fetch(ctx context.Context, req Request) (*Response, error) {
	start := c.now()

	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing url %q: %w", req.URL, err)
	}
	key := cacheKey(u)

	if e, ok := c.store.Get(key); ok && e.Matches(req.Header) {
		if req.Mode == ModeForceCache || e.Fresh(c.now()) {
			c.hits.Add(1)
			c.logger.Debug("fetcher: cache hit", "url", req.URL, "mode", req.Mode)
			return &Response{
				URL:        e.URL,
				StatusCode: e.StatusCode,
				Header:     e.Header.Clone(),
				Body:       e.Body,
				FromCache:  true,
				FetchTime:  c.now().Sub(start),
			}, nil
		}
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	hreq.Header.Set("User-Agent", c.opts.UserAgent)
	if p := req.Priority.header(); p != "" {
		hreq.Header.Set("Priority", p)
	}
	if req.Purpose != "" {
		hreq.Header.Set("Sec-Purpose", req.Purpose)
	}

	c.requests.Add(1)
	resp, err := c.http.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	// Capture final URL after redirects
	finalURL := resp.Request.URL.String()

	if httpcache.Cacheable(resp.StatusCode, resp.Header) {
		e := httpcache.NewEntry(finalURL, resp.StatusCode, resp.Header, body, c.now()).Vary(req.Header)
		if err := c.store.Put(key, e); err != nil {
			c.logger.Warn("fetcher: cache store failed", "url", req.URL, "error", err)
		}
	}

	return &Response{
		URL:        finalURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		FetchTime:  c.now().Sub(start),
	}, nil
}

// Document loads a page for a full navigation. With UseBrowser set the page
// is rendered in headless Chrome, otherwise it is a plain default-mode fetch.
// A non-2xx status is reported as a *StatusError.
func (c *Client) Document(ctx context.Context, rawURL string) (*Response, error) {
	var (
		resp *Response
		err  error
	)
	if c.opts.UseBrowser {
		resp, err = c.withBrowser(ctx, rawURL)
	} else {
		resp, err = c.Fetch(ctx, Request{URL: rawURL, Priority: PriorityHigh})
	}
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return resp, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	return resp, nil
}
