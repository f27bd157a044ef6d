// Package prefetch warms the HTTP cache with the page's same-origin links
// in the background, a few at a time.
package prefetch

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"quicknav/dom"
	"quicknav/fetcher"
)

// DefaultMaxConcurrent is the number of prefetches allowed in flight.
const DefaultMaxConcurrent = 4

var anchors = cascadia.MustCompile("a[href]")

// Fetcher is the part of fetcher.Client the scheduler needs.
type Fetcher interface {
	Fetch(ctx context.Context, req fetcher.Request) (*fetcher.Response, error)
}

// Options configures a Scheduler.
type Options struct {
	MaxConcurrent    int
	ExcludedPrefixes []string
	// RescanDelay bounds how long a mutation-triggered rescan may wait.
	RescanDelay time.Duration
	// SweepDelay bounds the wait for the one-off late sweep.
	SweepDelay time.Duration
	Logger     *slog.Logger
}

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	return Options{
		MaxConcurrent:    DefaultMaxConcurrent,
		ExcludedPrefixes: []string{"/admin/"},
		RescanDelay:      100 * time.Millisecond,
		SweepDelay:       2 * time.Second,
	}
}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	Seen      int
	Queued    int
	InFlight  int
	Peak      int
	Completed int
	Failed    int
}

// Scheduler discovers links on one page and fetches each of them at most
// once, never running more than MaxConcurrent fetches at a time.
type Scheduler struct {
	win    *dom.Window
	fetch  Fetcher
	opts   Options
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	seen      map[string]struct{}
	queue     []string
	next      int
	inFlight  int
	peak      int
	completed int
	failed    int
	dirty     bool
	closed    bool
	unobserve func()
}

// New returns a scheduler for win. Nothing happens until Start.
func New(win *dom.Window, f Fetcher, opts Options) *Scheduler {
	def := DefaultOptions()
	if opts.MaxConcurrent <= 0 || opts.MaxConcurrent > DefaultMaxConcurrent {
		opts.MaxConcurrent = def.MaxConcurrent
	}
	if opts.ExcludedPrefixes == nil {
		opts.ExcludedPrefixes = def.ExcludedPrefixes
	}
	if opts.RescanDelay <= 0 {
		opts.RescanDelay = def.RescanDelay
	}
	if opts.SweepDelay <= 0 {
		opts.SweepDelay = def.SweepDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		win:    win,
		fetch:  f,
		opts:   opts,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		seen:   make(map[string]struct{}),
	}
}

// Start runs the initial sweep, installs the mutation watcher and arms the
// final idle sweep.
func (s *Scheduler) Start() {
	s.DiscoverLinks(nil)

	unobserve := s.win.Observe(s.onMutation)
	s.mu.Lock()
	s.unobserve = unobserve
	s.mu.Unlock()

	s.win.RequestIdle(func() {
		if s.isClosed() {
			return
		}
		s.DiscoverLinks(nil)
	}, s.opts.SweepDelay)
}

func (s *Scheduler) onMutation(dom.Mutation) {
	s.mu.Lock()
	if s.dirty || s.closed {
		s.mu.Unlock()
		return
	}
	s.dirty = true
	s.mu.Unlock()

	s.win.RequestIdle(func() {
		s.mu.Lock()
		s.dirty = false
		closed := s.closed
		s.mu.Unlock()
		if !closed {
			s.DiscoverLinks(nil)
		}
	}, s.opts.RescanDelay)
}

// DiscoverLinks submits every eligible anchor under root. A nil root means
// the whole document.
func (s *Scheduler) DiscoverLinks(root *html.Node) {
	base := s.win.Location()

	var hrefs []string
	s.win.Read(func(doc *html.Node) {
		if root == nil {
			root = doc
		}
		for _, a := range anchors.MatchAll(root) {
			hrefs = append(hrefs, dom.Attr(a, "href"))
		}
	})

	for _, href := range hrefs {
		u, err := dom.Resolve(base, href)
		if err != nil {
			continue
		}
		if !dom.SameOrigin(u, base) || s.excluded(u.Path) {
			continue
		}
		s.Submit(dom.StripFragment(u).String())
	}
}

func (s *Scheduler) excluded(path string) bool {
	for _, p := range s.opts.ExcludedPrefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Submit queues url unless it has been seen before. It reports whether the
// url was new.
func (s *Scheduler) Submit(url string) bool {
	s.mu.Lock()
	if _, ok := s.seen[url]; ok || s.closed {
		s.mu.Unlock()
		return false
	}
	s.seen[url] = struct{}{}
	s.queue = append(s.queue, url)
	s.mu.Unlock()

	s.schedule()
	return true
}

func (s *Scheduler) schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.closed && s.inFlight < s.opts.MaxConcurrent && s.next < len(s.queue) {
		url := s.queue[s.next]
		s.next++
		s.inFlight++
		if s.inFlight > s.peak {
			s.peak = s.inFlight
		}
		s.wg.Add(1)
		go s.run(url)
	}
}

func (s *Scheduler) run(url string) {
	defer s.wg.Done()

	resp, err := s.fetch.Fetch(s.ctx, fetcher.Request{
		URL:      url,
		Mode:     fetcher.ModeForceCache,
		Priority: fetcher.PriorityLow,
		Purpose:  "prefetch",
	})

	s.mu.Lock()
	s.inFlight--
	if err != nil {
		s.failed++
	} else {
		s.completed++
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Debug("prefetch: fetch failed", "url", url, "error", err)
	} else {
		s.logger.Debug("prefetch: warmed", "url", url, "status", resp.StatusCode, "cached", resp.FromCache)
	}

	s.schedule()
}

// Stats returns current counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Seen:      len(s.seen),
		Queued:    len(s.queue) - s.next,
		InFlight:  s.inFlight,
		Peak:      s.peak,
		Completed: s.completed,
		Failed:    s.failed,
	}
}

// Wait blocks until no prefetch is in flight.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops watching the document and cancels outstanding prefetches.
// Queued urls are dropped.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unobserve := s.unobserve
	s.mu.Unlock()

	if unobserve != nil {
		unobserve()
	}
	s.cancel()
	s.wg.Wait()
}
