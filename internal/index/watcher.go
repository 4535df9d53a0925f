package index

import (
	"context"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/hibi/internal/checksum"
	"github.com/starford/hibi/internal/models"
	"github.com/starford/hibi/internal/storage"
)

// Change ops reported to an EventCallback.
const (
	OpCreated = "created"
	OpUpdated = "updated"
	OpDeleted = "deleted"
)

// Change is one index mutation made by the watcher.
type Change struct {
	Op   string
	Path string
	Kind models.NoteKind
}

// EventCallback is called after each watcher-driven index change.
type EventCallback func(Change)

// settleDelay is how long the vault must stay quiet before pending paths are
// re-indexed. One memo append produces several Write events.
const settleDelay = 150 * time.Millisecond

// Watch re-indexes notes under the store root as they change until ctx is
// cancelled. Events are collected and flushed as one batch after settleDelay,
// so each touched note is read and indexed once per burst.
//
// Directories created at runtime are watched and scanned. A removed or
// renamed directory drops every indexed note beneath it.
func Watch(ctx context.Context, db *DB, store storage.Provider, logger *slog.Logger, cb EventCallback) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	root := store.Root()
	if err := addDirsRecursive(fw, root); err != nil {
		return err
	}

	w := &watcher{
		db:     db,
		store:  store,
		logger: logger,
		cb:     cb,
		dirty:  make(map[string]struct{}),
		gone:   make(map[string]struct{}),
	}

	logger.Info("watcher: started", slog.String("root", root))

	var timer *time.Timer
	var timerC <-chan time.Time
	touch := func() {
		if timer == nil {
			timer = time.NewTimer(settleDelay)
		} else {
			timer.Reset(settleDelay)
		}
		timerC = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerC:
			timerC = nil
			w.flush()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil || strings.HasPrefix(rel, "..") {
				continue
			}
			rel = filepath.ToSlash(rel)

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(fw, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", rel),
							slog.String("error", addErr.Error()))
					}
					w.markDir(root, ev.Name)
					touch()
					continue
				}
			}

			switch {
			case strings.HasSuffix(rel, ".md"):
				w.dirty[rel] = struct{}{}
				touch()
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// Possibly a directory; resolved against the index on flush.
				w.gone[rel] = struct{}{}
				touch()
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// watcher holds the paths collected since the last flush. It is only used
// from the Watch loop.
type watcher struct {
	db     *DB
	store  storage.Provider
	logger *slog.Logger
	cb     EventCallback

	dirty map[string]struct{}
	gone  map[string]struct{}
}

// markDir queues every note already present in a new directory.
func (w *watcher) markDir(root, dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, ".md") {
			return nil
		}
		if rel, relErr := filepath.Rel(root, p); relErr == nil {
			w.dirty[filepath.ToSlash(rel)] = struct{}{}
		}
		return nil
	})
}

// flush compares each queued path with the index and applies the difference.
func (w *watcher) flush() {
	defer func() {
		clear(w.dirty)
		clear(w.gone)
	}()

	indexed, err := w.db.AllChecksums()
	if err != nil {
		w.logger.Warn("watcher: all checksums failed", slog.String("error", err.Error()))
		return
	}

	for dir := range w.gone {
		prefix := dir + "/"
		for p := range indexed {
			if strings.HasPrefix(p, prefix) {
				w.dirty[p] = struct{}{}
			}
		}
	}

	for _, p := range slices.Sorted(maps.Keys(w.dirty)) {
		prev, wasIndexed := indexed[p]

		exists, err := w.store.Exists(p)
		if err != nil {
			w.logger.Warn("watcher: stat failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		if !exists {
			if !wasIndexed {
				continue
			}
			if err := w.db.DeleteNote(p); err != nil {
				w.logger.Warn("watcher: delete failed", slog.String("path", p), slog.String("error", err.Error()))
				continue
			}
			w.emit(OpDeleted, p)
			continue
		}

		data, err := w.store.Read(p)
		if err != nil {
			w.logger.Warn("watcher: read failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		if wasIndexed && prev == checksum.Sum(data) {
			continue
		}
		if err := indexFile(w.db, p, data); err != nil {
			w.logger.Warn("watcher: index failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		if wasIndexed {
			w.emit(OpUpdated, p)
		} else {
			w.emit(OpCreated, p)
		}
	}
}

func (w *watcher) emit(op, p string) {
	w.logger.Debug("watcher: "+op, slog.String("path", p))
	if w.cb != nil {
		w.cb(Change{Op: op, Path: p, Kind: KindOf(p)})
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
