package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/echochamber/internal/storage"
)

// EventKind names a document change.
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventModified EventKind = "modified"
	EventDeleted  EventKind = "deleted"
	EventRenamed  EventKind = "renamed"
)

// Event is one document change. Paths are slash-separated and relative to
// the vault root. For renames OldPath is the previous location and Path the
// new one; Path is empty when the document left the vault.
type Event struct {
	Kind    EventKind
	Path    string
	OldPath string
}

// EventCallback is called after the cache reflects the change.
type EventCallback func(Event)

// renameWindow is how long a rename of the old path waits for the matching
// create of the new path.
const renameWindow = 200 * time.Millisecond

// pendingRename tracks an fsnotify Rename that has not been paired yet.
type pendingRename struct {
	rel   string
	isDir bool
}

// Watch starts an fsnotify watcher on the vault root and processes file
// change events until ctx is cancelled. The cache is updated before cb is
// called.
//
// fsnotify reports a rename as Rename on the old path followed by Create on
// the new one. The two are paired into a single EventRenamed when they
// arrive within renameWindow. Renames of anything other than .md files and
// watched directories (e.g. atomic-write temp files) are ignored.
func Watch(ctx context.Context, db PostIndex, store storage.Provider, vaultRoot string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dirs := make(map[string]struct{})
	if err := addDirsRecursive(w, vaultRoot, dirs); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", vaultRoot))

	emit := func(ev Event) {
		if cb != nil {
			cb(ev)
		}
	}

	var (
		pending     *pendingRename
		renameTimer *time.Timer
		renameCh    <-chan time.Time
	)

	hold := func(p *pendingRename) {
		pending = p
		if renameTimer == nil {
			renameTimer = time.NewTimer(renameWindow)
			renameCh = renameTimer.C
		} else {
			renameTimer.Reset(renameWindow)
		}
	}

	forget := func(p *pendingRename) {
		var err error
		if p.isDir {
			err = db.DeletePrefix(p.rel)
		} else {
			err = db.DeletePost(p.rel)
		}
		if err != nil {
			logger.Warn("watcher: drop renamed failed", slog.String("path", p.rel), slog.String("error", err.Error()))
		}
	}

	// moveOut emits a pending rename whose new location never showed up.
	moveOut := func() {
		if pending == nil {
			return
		}
		p := pending
		pending = nil
		forget(p)
		logger.Debug("watcher: moved out", slog.String("path", p.rel))
		emit(Event{Kind: EventRenamed, OldPath: p.rel})
		reconcile(db, store, logger)
	}

	for {
		select {
		case <-ctx.Done():
			if renameTimer != nil {
				renameTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-renameCh:
			moveOut()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			rel, relErr := filepath.Rel(vaultRoot, ev.Name)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			// Directories.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name, dirs); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					if pending != nil && pending.isDir {
						p := pending
						pending = nil
						forget(p)
						indexNewDir(db, store, vaultRoot, ev.Name, logger, nil)
						emit(Event{Kind: EventRenamed, OldPath: p.rel, Path: rel})
						continue
					}
					indexNewDir(db, store, vaultRoot, ev.Name, logger, emit)
					continue
				}
			}
			if _, isDir := dirs[ev.Name]; isDir && ev.Op&(fsnotify.Rename|fsnotify.Remove) != 0 {
				delete(dirs, ev.Name)
				if ev.Op&fsnotify.Rename != 0 {
					moveOut()
					hold(&pendingRename{rel: rel, isDir: true})
				} else if err := db.DeletePrefix(rel); err != nil {
					logger.Warn("watcher: drop dir failed", slog.String("path", rel), slog.String("error", err.Error()))
				}
				continue
			}

			if !strings.HasSuffix(rel, ".md") {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				data, readErr := store.Read(rel)
				if readErr != nil {
					logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", readErr.Error()))
					continue
				}
				if idxErr := indexFile(db, rel, data); idxErr != nil {
					logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", idxErr.Error()))
					continue
				}
				if ev.Op&fsnotify.Create != 0 && pending != nil && !pending.isDir {
					p := pending
					pending = nil
					forget(p)
					logger.Debug("watcher: renamed", slog.String("from", p.rel), slog.String("to", rel))
					emit(Event{Kind: EventRenamed, OldPath: p.rel, Path: rel})
					continue
				}
				kind := EventModified
				if ev.Op&fsnotify.Create != 0 {
					kind = EventCreated
				}
				logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", string(kind)))
				emit(Event{Kind: kind, Path: rel})

			case ev.Op&fsnotify.Remove != 0:
				if delErr := db.DeletePost(rel); delErr != nil {
					logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
					continue
				}
				logger.Debug("watcher: deleted", slog.String("path", rel))
				emit(Event{Kind: EventDeleted, Path: rel})

			case ev.Op&fsnotify.Rename != 0:
				moveOut()
				hold(&pendingRename{rel: rel})
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcile removes cache rows whose files no longer exist and indexes files
// the cache has not seen. It emits no events.
func reconcile(db PostIndex, store storage.Provider, logger *slog.Logger) {
	if err := Sync(db, store, logger); err != nil {
		logger.Warn("reconcile: sync failed", slog.String("error", err.Error()))
	}
}

// indexNewDir indexes any .md files found in a newly created directory.
func indexNewDir(db PostIndex, store storage.Provider, vaultRoot, dirPath string, logger *slog.Logger, emit func(Event)) {
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}
		rel, relErr := filepath.Rel(vaultRoot, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		data, readErr := store.Read(rel)
		if readErr != nil {
			return nil
		}
		if idxErr := indexFile(db, rel, data); idxErr == nil {
			logger.Debug("watcher: indexed from new dir", slog.String("path", rel))
			if emit != nil {
				emit(Event{Kind: EventCreated, Path: rel})
			}
		}
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string, dirs map[string]struct{}) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := w.Add(path); err != nil {
				return err
			}
			dirs[path] = struct{}{}
		}
		return nil
	})
}
