package timeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/echochamber/internal/index"
	"github.com/starford/echochamber/internal/models"
)

// HandleEvent applies one document change to the feed. Changes outside the
// posts folder are ignored. Whenever the index and the event disagree the
// feed is rebuilt from scratch.
func (t *Timeline) HandleEvent(ctx context.Context, ev index.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	folder := t.settings.Get().PostsFolder

	switch ev.Kind {
	case index.EventCreated:
		if isPost(ev.Path, folder) {
			t.insertLocked(ctx, ev.Path)
		}
	case index.EventModified:
		if isPost(ev.Path, folder) {
			t.modifyLocked(ctx, ev.Path)
		}
	case index.EventDeleted:
		if isPost(ev.Path, folder) {
			t.deleteLocked(ctx, ev.Path)
		}
	case index.EventRenamed:
		if inFolder(ev.OldPath, folder) || inFolder(ev.Path, folder) {
			_ = t.renderFullLocked(ctx)
		}
	}
}

// Insert puts a newly created post at the top of the feed.
func (t *Timeline) Insert(ctx context.Context, path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.insertLocked(ctx, path)
}

func (t *Timeline) insertLocked(ctx context.Context, path string) error {
	if _, ok := t.byPath[path]; ok {
		return t.modifyLocked(ctx, path)
	}
	if t.state != StateListed {
		return t.renderFullLocked(ctx)
	}

	e, err := t.buildFromStore(ctx, path)
	if err != nil {
		t.logger.Error("timeline: insert failed", slog.String("path", path), slog.String("error", err.Error()))
		t.notifyLocked(fmt.Sprintf("Failed to load %s.", path))
		return err
	}
	t.entries = append([]*Entry{e}, t.entries...)
	t.byPath[path] = e
	t.sink.Apply(Patch{Kind: PatchPrepend, Path: path, Entry: *e})
	return nil
}

func (t *Timeline) modifyLocked(ctx context.Context, path string) error {
	e, ok := t.byPath[path]
	if !ok {
		t.logger.Debug("timeline: modified post not rendered, rebuilding", slog.String("path", path))
		return t.renderFullLocked(ctx)
	}

	fresh, err := t.buildFromStore(ctx, path)
	if err != nil {
		t.logger.Error("timeline: patch failed", slog.String("path", path), slog.String("error", err.Error()))
		t.notifyLocked(fmt.Sprintf("Failed to refresh %s.", path))
		return err
	}
	*e = *fresh
	t.sink.Apply(Patch{Kind: PatchUpdate, Path: path, Entry: *e})
	return nil
}

func (t *Timeline) deleteLocked(ctx context.Context, path string) {
	if _, ok := t.byPath[path]; !ok {
		t.logger.Debug("timeline: deleted post not rendered, rebuilding", slog.String("path", path))
		_ = t.renderFullLocked(ctx)
		return
	}
	delete(t.byPath, path)
	for i, e := range t.entries {
		if e.Path == path {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			break
		}
	}
	t.sink.Apply(Patch{Kind: PatchRemove, Path: path})
}

func (t *Timeline) buildFromStore(ctx context.Context, path string) (*Entry, error) {
	info, err := t.store.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Kind != models.KindFile {
		return nil, fmt.Errorf("timeline: %s is no longer a file", path)
	}
	return t.buildEntry(ctx, path, info.ModTime)
}
