package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"volfusion/internal/models"
	"volfusion/pkg/session"
	"volfusion/pkg/slicestate"
	"volfusion/pkg/visualization"
)

// errQuit ends the command loop.
var errQuit = errors.New("quit")

// shell executes the interactive commands against a session.
type shell struct {
	session     *session.Session
	viewers     [3]*visualization.Viewer
	cache       *visualization.SliceCache
	out         io.Writer
	snapshotDir string
	zoom        int
}

// newShell creates a shell and subscribes it to the session's state events.
// out may be written from load goroutines.
func newShell(sess *session.Session, viewers [3]*visualization.Viewer, cache *visualization.SliceCache, out io.Writer, snapshotDir string, zoom int) *shell {
	s := &shell{
		session:     sess,
		viewers:     viewers,
		cache:       cache,
		out:         out,
		snapshotDir: snapshotDir,
		zoom:        zoom,
	}
	sess.State().On(s.onEvent)
	return s
}

func (s *shell) onEvent(e slicestate.Event) {
	if e.Type != slicestate.EventLoaded {
		return
	}
	if v := s.session.Volume(e.Role); v != nil {
		fmt.Fprintf(s.out, "Loaded %s series: %s, %s slice %d\n", e.Role, v.Geometry, e.Orientation, e.Slice+1)
	}
}

const shellHelp = `Commands:
  orient <axial|coronal|sagittal>   switch every view
  scroll <role> <delta>             scroll a view
  slice <role> <n>                  select a slice (0-based)
  wl <role> <window> <level>        set window/level
  auto <role>                       window/level from the 1st-99th percentile
  load <role> <dir>                 load a series (in the background)
  wait                              wait for queued loads and fusion
  status                            print every caption
  snapshot [dir]                    write a PNG of every view
  export <role> <dir>               write every slice of a view as JPEG
  cache [clear]                     show or drop the slice cache
  help                              show this text
  quit                              leave`

// run reads commands until EOF or quit.
func (s *shell) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(s.out, "> ")
	for scanner.Scan() {
		err := s.execute(ctx, scanner.Text())
		if err == errQuit {
			return nil
		}
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
		fmt.Fprint(s.out, "> ")
	}
	return scanner.Err()
}

func (s *shell) execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit", "q":
		return errQuit

	case "help", "?":
		fmt.Fprintln(s.out, shellHelp)
		return nil

	case "orient":
		if len(args) != 1 {
			return fmt.Errorf("usage: orient <axial|coronal|sagittal>")
		}
		o, err := models.ParseOrientation(args[0])
		if err != nil {
			return err
		}
		if err := s.session.State().SetOrientation(o); err != nil {
			return err
		}
		s.printStatus()
		return nil

	case "scroll", "slice":
		if len(args) != 2 {
			return fmt.Errorf("usage: %s <role> <n>", cmd)
		}
		role, err := models.ParseRole(args[0])
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid number %q", args[1])
		}
		v := s.viewers[role]
		if cmd == "scroll" {
			v.Scroll(n)
		} else {
			v.Select(n)
		}
		s.printCaption(role)
		return nil

	case "wl":
		if len(args) != 3 {
			return fmt.Errorf("usage: wl <role> <window> <level>")
		}
		role, err := models.ParseRole(args[0])
		if err != nil {
			return err
		}
		w, err := strconv.ParseFloat(args[1], 64)
		if err != nil || w <= 0 {
			return fmt.Errorf("invalid window %q", args[1])
		}
		l, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("invalid level %q", args[2])
		}
		s.viewers[role].SetWindowLevel(w, l)
		s.printCaption(role)
		return nil

	case "auto":
		if len(args) != 1 {
			return fmt.Errorf("usage: auto <role>")
		}
		role, err := models.ParseRole(args[0])
		if err != nil {
			return err
		}
		v := s.viewers[role]
		w, l := visualization.AutoWindowLevel(v.Volume())
		v.SetWindowLevel(w, l)
		s.printCaption(role)
		return nil

	case "load":
		if len(args) != 2 {
			return fmt.Errorf("usage: load <fixed|moving> <dir>")
		}
		role, err := models.ParseRole(args[0])
		if err != nil {
			return err
		}
		if !role.Loadable() {
			return fmt.Errorf("the %s view cannot be loaded directly", role)
		}
		task := s.session.Load(ctx, role, args[1])
		fmt.Fprintf(s.out, "Queued %s load %s\n", role, task.ID)
		go func() {
			<-task.Done()
			if err := task.Err(); err != nil && err != session.ErrSuperseded {
				fmt.Fprintf(s.out, "\n%s load failed: %v\n", role, err)
			}
		}()
		return nil

	case "wait":
		waitCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()
		if err := s.session.Idle(waitCtx); err != nil {
			return err
		}
		s.printStatus()
		return nil

	case "status":
		s.printStatus()
		return nil

	case "snapshot":
		dir := s.snapshotDir
		if len(args) > 0 {
			dir = args[0]
		}
		paths, err := s.snapshots(dir)
		for _, p := range paths {
			fmt.Fprintf(s.out, "Saved %s\n", p)
		}
		return err

	case "cache":
		if len(args) > 0 {
			if args[0] != "clear" {
				return fmt.Errorf("usage: cache [clear]")
			}
			s.cache.Clear()
		}
		s.printCacheStats()
		return nil

	case "export":
		if len(args) != 2 {
			return fmt.Errorf("usage: export <role> <dir>")
		}
		role, err := models.ParseRole(args[0])
		if err != nil {
			return err
		}
		v := s.viewers[role]
		n, err := v.SaveSliceSequence(v.Orientation(), args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Saved %d %s slices to %s\n", n, v.Orientation(), args[1])
		return nil
	}
	return fmt.Errorf("unknown command %q (try help)", cmd)
}

func (s *shell) printCaption(role models.Role) {
	c := s.session.Caption(role)
	fmt.Fprintf(s.out, "%-7s %s | %s | %s\n", role, c.View, c.Slice, c.WindowLevel)
}

func (s *shell) printStatus() {
	for _, role := range []models.Role{models.Fixed, models.Moving, models.Fusion} {
		s.printCaption(role)
	}
	if res := s.session.Registration(); res != nil {
		t := res.Translation
		fmt.Fprintf(s.out, "Translation: (%.2f, %.2f, %.2f) mm\n", t[0], t[1], t[2])
	}
	if s.cache != nil {
		s.printCacheStats()
	}
}

func (s *shell) printCacheStats() {
	if s.cache == nil {
		fmt.Fprintln(s.out, "Slice cache disabled")
		return
	}
	entries, hits, misses := s.cache.Stats()
	fmt.Fprintf(s.out, "Slice cache: %d planes, %d hits, %d misses\n", entries, hits, misses)
}

// snapshots writes one PNG per view with its caption burned in.
func (s *shell) snapshots(dir string) ([]string, error) {
	var paths []string
	for _, role := range []models.Role{models.Fixed, models.Moving, models.Fusion} {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", role, s.viewers[role].Orientation()))
		if err := s.viewers[role].Snapshot(path, s.session.Caption(role).Lines(), s.zoom); err != nil {
			return paths, fmt.Errorf("failed to save %s snapshot: %w", role, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
