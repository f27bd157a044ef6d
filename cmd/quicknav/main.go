// Command quicknav is a line-driven browser tab: it loads a page, runs the
// prefetcher, hover previews and partial navigation against it, and lets
// you hover and click links from the prompt.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"quicknav/config"
	"quicknav/dom"
	"quicknav/render"
	"quicknav/session"
)

func main() {
	url := ""
	initConfig := false
	verbose := false

	for _, arg := range os.Args[1:] {
		switch arg {
		case "--init-config":
			initConfig = true
		case "-v", "--verbose":
			verbose = true
		case "-h", "--help":
			printUsage()
			return
		default:
			if url == "" {
				url = arg
			}
		}
	}

	if initConfig {
		fmt.Print(config.DefaultTOML())
		return
	}

	if err := run(url, verbose); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`quicknav - headless link prefetch, preview and partial navigation

Usage: quicknav [options] [url]

Options:
  -v, --verbose     Log component activity to stderr
  --init-config     Output default config (redirect to ~/.config/quicknav/config.toml)
  -h, --help        Show this help

Examples:
  quicknav http://localhost:8080/
  quicknav --init-config > ~/.config/quicknav/config.toml

Type help at the prompt for commands.`)
}

func terminalViewport() dom.Viewport {
	return render.TerminalViewport(os.Stdout, dom.Viewport{Width: 1280, Height: 800})
}

func run(url string, verbose bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w\n\n%s", err, config.FormatError(err))
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	store, err := openStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	s := session.New(sessionOptions(cfg, store, viewportFor(cfg), logger))
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	statePath, pathErr := sessionPath(cfg)
	switch {
	case url != "":
		if err := s.Open(ctx, url); err != nil {
			return err
		}
	case cfg.Session.RestoreSession && pathErr == nil:
		if st, err := session.LoadState(statePath); err == nil {
			if err := s.Restore(ctx, st); err != nil {
				logger.Warn("quicknav: restoring session failed", "error", err)
			}
		}
	}

	interactive := render.IsTerminal(os.Stdin)
	width := 80
	if cols, _, err := render.TerminalSize(os.Stdout); err == nil && cols > 0 {
		width = cols
	}
	r := &repl{
		s:   s,
		r:   render.NewRenderer(width, render.IsTerminal(os.Stdout)),
		out: os.Stdout,
	}
	if s.Page() != nil {
		s.Wait()
		r.where()
	}

	prompt := ""
	if interactive {
		prompt = "quicknav> "
	}
	if err := r.run(ctx, os.Stdin, prompt); err != nil {
		return err
	}

	if cfg.Session.RestoreSession && pathErr == nil && s.Page() != nil {
		if err := s.Save(statePath); err != nil {
			logger.Warn("quicknav: saving session failed", "error", err)
		}
	}
	return nil
}
