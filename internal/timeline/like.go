package timeline

import (
	"fmt"
	"log/slog"

	"github.com/starford/echochamber/internal/apperr"
	"github.com/starford/echochamber/internal/header"
)

// likeIntent is the liked state the user last picked for a path whose
// header write has not finished. Rebuilding the entry from disk must not
// lose it.
type likeIntent struct {
	want    bool
	pending int
}

// ToggleLike flips the liked state of a rendered post. The new state is
// shown immediately; the header write happens in the background and the
// shown state is reverted if it fails.
func (t *Timeline) ToggleLike(path string) (bool, error) {
	t.mu.Lock()
	e, ok := t.byPath[path]
	if !ok {
		t.mu.Unlock()
		return false, fmt.Errorf("timeline: like %s: %w", path, apperr.ErrNotFound)
	}
	liked := !e.Liked
	e.Liked = liked
	intent, ok := t.likes[path]
	if !ok {
		intent = &likeIntent{}
		t.likes[path] = intent
	}
	intent.want = liked
	intent.pending++
	t.sink.Apply(Patch{Kind: PatchUpdate, Path: path, Entry: *e})
	t.mu.Unlock()

	t.writes.Add(1)
	go func() {
		defer t.writes.Done()
		t.persistLike(path)
	}()
	return liked, nil
}

// Flush waits for background writes to finish.
func (t *Timeline) Flush() {
	t.writes.Wait()
}

// persistLike writes the latest state the user picked for path, so that of
// two quick toggles the later one wins on disk.
func (t *Timeline) persistLike(path string) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	intent := t.likes[path]
	want := intent.want
	t.mu.Unlock()

	err := t.writeLiked(path, want)

	t.mu.Lock()
	defer t.mu.Unlock()
	intent.pending--
	if intent.pending == 0 {
		delete(t.likes, path)
	}
	if err == nil {
		return
	}
	t.logger.Error("timeline: save like failed", slog.String("path", path), slog.String("error", err.Error()))

	if intent.want == want {
		intent.want = !want
		if e, ok := t.byPath[path]; ok && e.Liked == want {
			e.Liked = !want
			t.sink.Apply(Patch{Kind: PatchUpdate, Path: path, Entry: *e})
		}
	}
	t.notifyLocked(fmt.Sprintf("Could not save like for %s.", path))
}

// writeLiked rewrites only the header block of the document.
func (t *Timeline) writeLiked(path string, liked bool) error {
	content, err := t.store.Read(path)
	if err != nil {
		return err
	}
	out, err := header.SetLiked(content, liked)
	if err != nil {
		return err
	}
	return t.store.Write(path, out)
}
