package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"quicknav/event"
	"quicknav/render"
	"quicknav/session"
)

var errQuit = errors.New("quit")

// repl drives a session from line commands.
type repl struct {
	s   *session.Session
	r   *render.Renderer
	out io.Writer
}

const helpText = `Commands:
  open URL                 Load URL as a new document
  links                    List links in the current document
  hover N [X Y]            Move the pointer onto link N
  move N X Y               Move the pointer within link N
  leave N                  Move the pointer off link N
  enter | exit             Move the pointer onto / off the popup
  popup                    Show the preview popup
  click N [meta|ctrl|shift|alt]...
                           Click link N
  back | forward           Move through history
  history                  Show history
  where                    Show location and title
  stats                    Show cache and prefetch counters
  help                     Show this help
  quit                     Exit
`

// run reads commands until EOF or quit.
func (r *repl) run(ctx context.Context, in io.Reader, prompt string) error {
	sc := bufio.NewScanner(in)
	for {
		if prompt != "" {
			fmt.Fprint(r.out, prompt)
		}
		if !sc.Scan() {
			return sc.Err()
		}
		err := r.exec(ctx, sc.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
	}
}

func (r *repl) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "quit", "q":
		return errQuit
	case "help", "?":
		fmt.Fprint(r.out, helpText)
		return nil
	case "open", "o":
		if len(args) != 1 {
			return fmt.Errorf("usage: open URL")
		}
		if err := r.s.Open(ctx, args[0]); err != nil {
			return err
		}
		r.s.Wait()
		return r.where()
	}

	if r.s.Page() == nil {
		return session.ErrNoPage
	}

	switch cmd {
	case "links", "l":
		fmt.Fprint(r.out, r.r.Links(r.s.Links()))
	case "hover", "h":
		i, x, y, err := linkArgs(args, 1)
		if err != nil {
			return err
		}
		if err := r.s.Hover(i, x, y); err != nil {
			return err
		}
		r.s.Wait()
		return r.popup()
	case "move":
		i, x, y, err := linkArgs(args, 3)
		if err != nil {
			return err
		}
		if err := r.s.Move(i, x, y); err != nil {
			return err
		}
		r.s.Wait()
		return r.popup()
	case "leave":
		i, _, _, err := linkArgs(args, 1)
		if err != nil {
			return err
		}
		return r.s.Leave(i)
	case "enter":
		return r.s.EnterPopup()
	case "exit":
		return r.s.LeavePopup()
	case "popup", "p":
		return r.popup()
	case "click", "c":
		return r.click(ctx, args)
	case "back", "b":
		if err := r.s.Back(ctx); err != nil {
			return err
		}
		r.s.Wait()
		return r.where()
	case "forward", "f":
		if err := r.s.Forward(ctx); err != nil {
			return err
		}
		r.s.Wait()
		return r.where()
	case "history":
		r.history()
	case "where", "w":
		return r.where()
	case "stats":
		r.stats()
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return nil
}

// linkArgs parses "N [X Y]". want is the minimum number of arguments.
func linkArgs(args []string, want int) (i, x, y int, err error) {
	if len(args) < want || (len(args) != 1 && len(args) != 3) {
		return 0, 0, 0, fmt.Errorf("expected a link number and optional X Y")
	}
	nums := make([]int, len(args))
	for k, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("bad number %q", a)
		}
		nums[k] = n
	}
	i = nums[0]
	if len(nums) == 3 {
		x, y = nums[1], nums[2]
	}
	return i, x, y, nil
}

func parseModifiers(args []string) (event.Modifiers, error) {
	var m event.Modifiers
	for _, a := range args {
		switch strings.ToLower(a) {
		case "meta", "cmd":
			m.Meta = true
		case "ctrl":
			m.Ctrl = true
		case "shift":
			m.Shift = true
		case "alt":
			m.Alt = true
		default:
			return m, fmt.Errorf("unknown modifier %q", a)
		}
	}
	return m, nil
}

func (r *repl) click(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: click N [meta|ctrl|shift|alt]...")
	}
	i, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("bad number %q", args[0])
	}
	mods, err := parseModifiers(args[1:])
	if err != nil {
		return err
	}
	res, err := r.s.Click(ctx, i, mods)
	if err != nil {
		return err
	}
	r.s.Wait()
	fmt.Fprintf(r.out, "click: %s\n", res)
	return r.where()
}

func (r *repl) where() error {
	page := r.s.Page()
	if page == nil {
		return session.ErrNoPage
	}
	fmt.Fprintf(r.out, "%s\n  %s\n", page.Window.Title(), page.Window.Location())
	return nil
}

func (r *repl) popup() error {
	page := r.s.Page()
	if page.Preview == nil {
		fmt.Fprintln(r.out, "previews disabled")
		return nil
	}
	out, err := r.r.Popup(page.Preview.State())
	if err != nil {
		return err
	}
	fmt.Fprint(r.out, out)
	return nil
}

func (r *repl) history() {
	h := r.s.History()
	for _, e := range h.History {
		fmt.Fprintf(r.out, "  %s\n", e.URL)
	}
	fmt.Fprintf(r.out, "> %s\n", h.Current.URL)
	for i := len(h.Forward) - 1; i >= 0; i-- {
		fmt.Fprintf(r.out, "  %s\n", h.Forward[i].URL)
	}
}

func (r *repl) stats() {
	page := r.s.Page()
	c := r.s.Client()
	fmt.Fprintf(r.out, "requests: %d  cache hits: %d  cached entries: %d\n",
		c.Requests(), c.CacheHits(), c.Store().Len())
	if page.Prefetch != nil {
		st := page.Prefetch.Stats()
		fmt.Fprintf(r.out, "prefetch: seen %d  queued %d  in flight %d  peak %d  done %d  failed %d\n",
			st.Seen, st.Queued, st.InFlight, st.Peak, st.Completed, st.Failed)
	}
	fmt.Fprintf(r.out, "fragments: %d\n", page.Fragments.Len())
	if page.Router != nil {
		fmt.Fprintf(r.out, "navigation token: %d\n", page.Router.Token())
	}
}
