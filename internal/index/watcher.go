package index

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wesm/cursor-history/internal/logging"
	"github.com/wesm/cursor-history/internal/parser"
)

// DefaultDebounce is the quiet period a watcher waits after the
// last filesystem event before rebuilding.
const DefaultDebounce = 500 * time.Millisecond

// treeWatcher watches projects roots and reports once events
// stop arriving for the debounce period. Every change leads to
// a full rebuild, so only the number of events is kept.
type treeWatcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	settled  func(events int)
}

func newTreeWatcher(
	debounce time.Duration, settled func(events int),
) (*treeWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	return &treeWatcher{
		fsw: fsw, debounce: debounce, settled: settled,
	}, nil
}

// addTree watches root and every directory below it. It
// returns how many directories were added and how many failed.
func (w *treeWatcher) addTree(root string) (added, failed int, err error) {
	err = filepath.WalkDir(root,
		func(path string, d fs.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil
			}
			if w.fsw.Add(path) != nil {
				failed++
			} else {
				added++
			}
			return nil
		})
	return added, failed, err
}

// relevant reports whether event can change the index, adding
// new directories to the watch list as a side effect.
func (w *treeWatcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|
		fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			// A new project dir may already hold transcripts.
			_, _, _ = w.addTree(event.Name)
			return true
		}
	}
	if _, ok := parser.FormatOf(event.Name); ok {
		return true
	}
	// Removed or renamed directories carry no extension.
	return event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 &&
		filepath.Ext(event.Name) == ""
}

// run delivers events until ctx is done, then closes the
// underlying watcher.
func (w *treeWatcher) run(ctx context.Context) {
	defer w.fsw.Close()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()
	pending := 0

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			pending++
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Warn().Err(err).Msg("watcher error")

		case <-timer.C:
			if pending == 0 {
				continue
			}
			n := pending
			pending = 0
			logging.Info().Int("events", n).
				Msg("transcripts changed, rebuilding index")
			w.settled(n)
		}
	}
}

// WatchCache rebuilds c whenever a transcript under its roots
// changes, until ctx is done. onRebuild, if set, receives the
// outcome of every rebuild. Roots that do not exist yet are not
// watched.
func WatchCache(
	ctx context.Context, c *Cache, debounce time.Duration,
	onRebuild func(Index, error),
) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := newTreeWatcher(debounce, func(int) {
		idx, err := c.Rebuild(ctx)
		if onRebuild != nil {
			onRebuild(idx, err)
		}
	})
	if err != nil {
		return err
	}

	for _, root := range c.builder.Roots() {
		added, failed, err := w.addTree(root)
		if err != nil {
			w.fsw.Close()
			return fmt.Errorf("watching %s: %w", root, err)
		}
		logging.Info().Str("root", root).
			Int("watched", added).
			Int("unwatched", failed).
			Msg("watching projects root")
	}

	w.run(ctx)
	return nil
}
