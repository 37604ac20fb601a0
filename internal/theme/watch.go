package theme

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 250 * time.Millisecond

// Watch invalidates the resolver when anything under the base directories
// changes and then calls onChange. Bursts of events are coalesced. Watch
// blocks until ctx is done.
func (r *Resolver) Watch(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	for _, base := range r.bases {
		r.addTree(w, base)
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	fire := func() {
		r.Invalidate()
		if onChange != nil {
			onChange()
		}
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					r.addTree(w, ev.Name)
				}
			}
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, fire)
			mu.Unlock()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.log.Warn().Err(err).Msg("watching sound themes")
		}
	}
}

// addTree watches root and every directory below it. Missing roots are
// ignored.
func (r *Resolver) addTree(w *fsnotify.Watcher, root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable entries are skipped
		}
		if d.IsDir() {
			if err := w.Add(path); err != nil {
				r.log.Debug().Err(err).Str("dir", path).Msg("cannot watch")
			}
		}
		return nil
	})
}
