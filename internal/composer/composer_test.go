package composer

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/echochamber/internal/apperr"
	"github.com/starford/echochamber/internal/header"
	"github.com/starford/echochamber/internal/models"
	"github.com/starford/echochamber/internal/render"
	"github.com/starford/echochamber/internal/settings"
	"github.com/starford/echochamber/internal/storage"
	"github.com/starford/echochamber/internal/timeline"
)

var instant = time.Date(2025, 3, 1, 9, 30, 15, 123_000_000, time.UTC)

type fixedSettings settings.Settings

func (f fixedSettings) Get() settings.Settings { return settings.Settings(f) }

type fakeFeed struct {
	mu       sync.Mutex
	inserted []string
	notices  []string
}

func (f *fakeFeed) Insert(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, path)
	return nil
}

func (f *fakeFeed) Notify(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, msg)
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newComposer(store storage.Provider, feed Feed, opts ...Option) *Composer {
	opts = append([]Option{WithClock(func() time.Time { return instant }), WithLogger(quiet())}, opts...)
	return New(fixedSettings(settings.Defaults()), store, feed, opts...)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "2025-03-01T09-30-15-123Z.md", Filename(instant))
	assert.Equal(t, Filename(instant), Filename(instant.In(time.FixedZone("X", 3600))))
}

func TestSubmit_CreatesFolderAndPost(t *testing.T) {
	store := storage.NewMemFS()
	feed := &fakeFeed{}
	c := newComposer(store, feed)

	path, err := c.Submit(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, "posts/2025-03-01T09-30-15-123Z.md", path)
	assert.Equal(t, []string{path}, feed.inserted)

	content, err := store.Read(path)
	require.NoError(t, err)
	h, body, ok := header.Parse(content)
	require.True(t, ok)
	assert.Equal(t, models.Header{Liked: false, AuthorUsername: "local", AuthorDisplayName: "You"}, h)
	assert.Equal(t, "hello world", string(body))
}

func TestSubmit_WithoutHeader(t *testing.T) {
	store := storage.NewMemFS()
	c := newComposer(store, &fakeFeed{}, WithHeader(false))

	path, err := c.Submit(context.Background(), "raw")
	require.NoError(t, err)
	content, _ := store.Read(path)
	assert.Equal(t, "raw", string(content))
}

func TestSubmit_BlankInputIsIgnored(t *testing.T) {
	store := storage.NewMemFS()
	feed := &fakeFeed{}
	c := newComposer(store, feed)

	for _, in := range []string{"", "   ", "\n\t \n"} {
		_, err := c.Submit(context.Background(), in)
		assert.ErrorIs(t, err, apperr.ErrEmptyPost)
	}
	info, _ := store.Stat("posts")
	assert.Equal(t, models.KindMissing, info.Kind, "nothing written, not even the folder")
	assert.Empty(t, feed.inserted)
	assert.Empty(t, feed.notices, "blank input is rejected silently")
}

func TestSubmit_FolderIsAFile(t *testing.T) {
	store := storage.NewMemFS()
	require.NoError(t, store.Write("posts", []byte("squatter")))
	feed := &fakeFeed{}
	c := newComposer(store, feed)

	_, err := c.Submit(context.Background(), "hi")
	assert.ErrorIs(t, err, apperr.ErrNotFolder)
	assert.Len(t, feed.notices, 1)
	assert.Empty(t, feed.inserted)
}

func TestSubmit_SameInstantCollides(t *testing.T) {
	store := storage.NewMemFS()
	feed := &fakeFeed{}
	c := newComposer(store, feed)

	first, err := c.Submit(context.Background(), "one")
	require.NoError(t, err)
	_, err = c.Submit(context.Background(), "two")
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
	assert.Len(t, feed.notices, 1)

	content, _ := store.Read(first)
	_, body, _ := header.Parse(content)
	assert.Equal(t, "one", string(body), "collision never overwrites")
}

func TestSubmit_PrependsToRealTimeline(t *testing.T) {
	store := storage.NewMemFS()
	cfg := fixedSettings(settings.Defaults())
	require.NoError(t, store.Write("posts/old.md", []byte("older post")))
	require.NoError(t, store.Afero().Chtimes("/posts/old.md", instant.Add(-time.Hour), instant.Add(-time.Hour)))

	tl := timeline.New(cfg, store, nil, render.NewMarkdown(), timeline.WithLogger(quiet()))
	require.NoError(t, tl.RenderFull(context.Background()))

	c := New(cfg, store, tl, WithClock(func() time.Time { return instant }), WithLogger(quiet()))
	path, err := c.Submit(context.Background(), "**fresh**")
	require.NoError(t, err)

	v := tl.View()
	require.Len(t, v.Entries, 2)
	assert.Equal(t, path, v.Entries[0].Path)
	assert.Equal(t, "You", v.Entries[0].DisplayName)
	assert.Contains(t, string(v.Entries[0].Body), "<strong>fresh</strong>")
	assert.Equal(t, 1, tl.Stats().FullRenders)
}
