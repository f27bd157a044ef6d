package render

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"quicknav/dom"
)

// Cell metrics used to turn a terminal size into a pixel viewport. They
// match the preview's default text measurer.
const (
	CellWidth  = 8
	CellHeight = 20
)

// TerminalSize returns the terminal dimensions of f in cells.
func TerminalSize(f *os.File) (width, height int, err error) {
	ws, err := unix.IoctlGetWinsize(int(f.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		return 0, 0, fmt.Errorf("getting terminal size: %w", err)
	}
	return int(ws.Col), int(ws.Row), nil
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	_, err := unix.IoctlGetTermios(int(f.Fd()), ioctlGetTermios)
	return err == nil
}

// Viewport converts a terminal of cols by rows cells into the pixel
// viewport the preview clamps against.
func Viewport(cols, rows int) dom.Viewport {
	return dom.Viewport{Width: cols * CellWidth, Height: rows * CellHeight}
}

// TerminalViewport returns the viewport for f, or fallback when f is not a
// terminal.
func TerminalViewport(f *os.File, fallback dom.Viewport) dom.Viewport {
	cols, rows, err := TerminalSize(f)
	if err != nil || cols == 0 || rows == 0 {
		return fallback
	}
	return Viewport(cols, rows)
}

const (
	ClearLine = "\033[2K"
	Bold      = "\033[1m"
	Dim       = "\033[2m"
	Reset     = "\033[0m"
)
