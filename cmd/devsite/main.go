// Command devsite serves a markdown content site that speaks the partial
// navigation protocol, for trying quicknav against.
package main

import (
	"context"
	"embed"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quicknav/highlight"
	"quicknav/site"
)

//go:embed pages
var pages embed.FS

func main() {
	var (
		addr    = flag.String("addr", ":8080", "Listen address")
		dir     = flag.String("dir", "", "Directory of markdown pages (default: built-in pages)")
		style   = flag.String("style", "monokai", "Chroma style for code blocks")
		maxAge  = flag.Duration("max-age", 60*time.Second, "Cache-Control max-age for pages")
		verbose = flag.Bool("v", false, "Log every request")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var content fs.FS
	if *dir != "" {
		content = os.DirFS(*dir)
	} else {
		sub, err := fs.Sub(pages, "pages")
		if err != nil {
			log.Fatalf("loading built-in pages: %v", err)
		}
		content = sub
	}

	opts := site.DefaultOptions()
	opts.Pages = content
	opts.MaxAge = *maxAge
	opts.Logger = logger
	s, err := site.New(opts)
	if err != nil {
		log.Fatalf("building site: %v", err)
	}
	s.SetStylesheet(highlight.New(*style, logger).CSS())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := serve(ctx, *addr, s, logger); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// serve runs the HTTP server until ctx ends.
func serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	logger.Info("devsite: listening", "addr", addr)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}
