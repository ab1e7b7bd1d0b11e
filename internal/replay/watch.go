package replay

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"gpsd-sim/internal/gps"
)

// Watcher reloads the replay file into a driver whenever it changes on disk.
type Watcher struct {
	path     string
	reload   func([]gps.Sentence)
	log      *slog.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration
	done     chan struct{}
}

// NewWatcher watches path and hands every successfully re-read sequence to
// reload. The directory is watched rather than the file so editors that
// replace the file on save are still seen.
func NewWatcher(path string, reload func([]gps.Sentence), log *slog.Logger) (*Watcher, error) {
	if reload == nil {
		return nil, fmt.Errorf("reload func is nil")
	}
	if log == nil {
		log = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve replay path: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{
		path:     abs,
		reload:   reload,
		log:      log,
		watcher:  fw,
		debounce: 250 * time.Millisecond,
		done:     make(chan struct{}),
	}, nil
}

// Run blocks until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.done)
	w.log.Info("watching replay file", "path", w.path)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			// Editors often emit several events per save.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("replay watcher error", "error", err)
		case <-fire:
			fire = nil
			sents, err := Load(w.path, w.log)
			if err != nil {
				w.log.Warn("replay reload failed", "path", w.path, "error", err)
				continue
			}
			if len(sents) == 0 {
				w.log.Warn("replay reload skipped: no sentences", "path", w.path)
				continue
			}
			w.log.Info("replay file changed", "path", w.path, "sentences", len(sents))
			w.reload(sents)
		}
	}
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}
