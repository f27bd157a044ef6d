package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"quicknav/config"
	"quicknav/dom"
	"quicknav/fetcher"
	"quicknav/highlight"
	"quicknav/httpcache"
	"quicknav/prefetch"
	"quicknav/preview"
	"quicknav/router"
	"quicknav/session"
)

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// openStore opens the HTTP cache store the config asks for.
func openStore(cfg *config.Config, logger *slog.Logger) (httpcache.Store, error) {
	if cfg.Cache.Store != "sqlite" {
		return httpcache.NewMemory(), nil
	}
	path := cfg.Cache.Path
	if path == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("locating cache dir: %w", err)
		}
		path = filepath.Join(dir, "quicknav", "http.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return httpcache.OpenSQLite(path, logger)
}

// sessionOptions turns the config into session options. The viewport is
// passed in since it depends on the terminal.
func sessionOptions(cfg *config.Config, store httpcache.Store, viewport dom.Viewport, logger *slog.Logger) session.Options {
	opts := session.Options{
		Fetcher: fetcher.Options{
			UserAgent:      cfg.Fetcher.UserAgent,
			TimeoutSeconds: cfg.Fetcher.TimeoutSeconds,
			ChromePath:     cfg.Fetcher.ChromePath,
			UseBrowser:     cfg.Fetcher.UseBrowser,
		},
		Store: store,
		Prefetch: prefetch.Options{
			MaxConcurrent:    cfg.Prefetch.MaxConcurrent,
			ExcludedPrefixes: cfg.Prefetch.ExcludedPrefixes,
			RescanDelay:      ms(cfg.Prefetch.RescanDelayMs),
			SweepDelay:       ms(cfg.Prefetch.SweepDelayMs),
		},
		Preview: preview.Options{
			ContentID: cfg.Page.ContentID,
			HideDelay: ms(cfg.Preview.HideDelayMs),
			Margin:    cfg.Preview.Margin,
			Policy:    preview.Policy(cfg.Preview.Policy),
		},
		Router: router.Options{
			ContentID:    cfg.Page.ContentID,
			PartialName:  cfg.Router.PartialHeader,
			PartialValue: cfg.Router.PartialValue,
		},
		Viewport:        viewport,
		DisablePrefetch: !cfg.Prefetch.Enabled,
		DisablePreview:  !cfg.Preview.Enabled,
		DisableRouter:   !cfg.Router.Enabled,
		Logger:          logger,
	}
	if cfg.Highlight.Enabled {
		opts.Highlighter = highlight.New(cfg.Highlight.Style, logger)
	}
	return opts
}

// viewportFor prefers the configured size and falls back to the terminal.
func viewportFor(cfg *config.Config) dom.Viewport {
	if cfg.Page.ViewportWidth > 0 && cfg.Page.ViewportHeight > 0 {
		return dom.Viewport{Width: cfg.Page.ViewportWidth, Height: cfg.Page.ViewportHeight}
	}
	return terminalViewport()
}

func sessionPath(cfg *config.Config) (string, error) {
	if cfg.Session.Path != "" {
		return cfg.Session.Path, nil
	}
	return session.Path()
}
