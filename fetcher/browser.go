package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// userDataDir returns a persistent directory for Chrome user data.
// This allows cookies and other session data to persist between loads.
func userDataDir() string {
	dir, _ := os.UserCacheDir()
	return filepath.Join(dir, "quicknav-chrome-profile")
}

// noAutomationScript hides the webdriver flag some sites check before
// serving content.
const noAutomationScript = `
Object.defineProperty(navigator, 'webdriver', {
    get: () => undefined,
});
`

func (c *Client) allocatorOptions() []chromedp.ExecAllocatorOption {
	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoFirstRun,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-component-update", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("password-store", "basic"),
		chromedp.Flag("use-mock-keychain", true),
		chromedp.Flag("headless", "new"),
		chromedp.UserAgent(c.opts.UserAgent),
		chromedp.WindowSize(1280, 800),
		chromedp.UserDataDir(userDataDir()),
	}

	// Add custom Chrome path if specified
	if c.opts.ChromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(c.opts.ChromePath))
	}
	return allocOpts
}

// withBrowser renders rawURL in headless Chrome and returns the resulting
// DOM serialised as HTML. Rendered documents bypass the cache.
func (c *Client) withBrowser(ctx context.Context, rawURL string) (*Response, error) {
	start := time.Now()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, c.allocatorOptions()...)
	defer allocCancel()

	// Browser loads get extra time
	timeout := time.Duration(c.opts.TimeoutSeconds) * time.Second
	if timeout < 30*time.Second {
		timeout = 45 * time.Second
	} else {
		timeout = timeout + 15*time.Second
	}
	tctx, cancel := context.WithTimeout(allocCtx, timeout)
	defer cancel()

	bctx, cancel := chromedp.NewContext(tctx)
	defer cancel()

	resp, err := chromedp.RunResponse(bctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(noAutomationScript).Do(ctx)
			return err
		}),
		network.SetExtraHTTPHeaders(network.Headers(map[string]interface{}{
			"Accept":          "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
		})),
		chromedp.Navigate(rawURL),
	)
	if err != nil {
		return nil, fmt.Errorf("browser fetch: %w", err)
	}

	var doc, finalURL string
	err = chromedp.Run(bctx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &doc, chromedp.ByQuery),
		// Capture final URL after any redirects
		chromedp.Location(&finalURL),
	)
	if err != nil {
		return nil, fmt.Errorf("browser fetch: %w", err)
	}

	c.requests.Add(1)
	c.logger.Debug("fetcher: rendered in browser", "url", rawURL, "elapsed", time.Since(start))

	status := http.StatusOK
	header := make(http.Header)
	if resp != nil {
		status = int(resp.Status)
		for k, v := range resp.Headers {
			header.Set(k, fmt.Sprint(v))
		}
	}

	return &Response{
		URL:         finalURL,
		StatusCode:  status,
		Header:      header,
		Body:        []byte(doc),
		UsedBrowser: true,
		FetchTime:   time.Since(start),
	}, nil
}
