package timeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/echochamber/internal/apperr"
	"github.com/starford/echochamber/internal/header"
	"github.com/starford/echochamber/internal/index"
)

func TestToggleLike_FlipsAndPersistsHeaderOnly(t *testing.T) {
	e := newEnv(t)
	body := "keep *these* bytes\n\n  exactly\n"
	e.post(t, "posts/a.md", "---\nliked: true\nauthor_username: ada\n---\n"+body, baseTime)
	require.NoError(t, e.tl.RenderFull(context.Background()))
	require.True(t, e.tl.View().Entries[0].Liked, "pressed state mirrors header")
	e.sink.reset()

	liked, err := e.tl.ToggleLike("posts/a.md")
	require.NoError(t, err)
	assert.False(t, liked)
	assert.False(t, e.tl.View().Entries[0].Liked, "visible state flips before the write")
	assert.Equal(t, []PatchKind{PatchUpdate}, e.sink.kinds())

	e.tl.Flush()
	content, err := e.store.Read("posts/a.md")
	require.NoError(t, err)
	h, _, ok := header.Parse(content)
	require.True(t, ok)
	assert.False(t, h.Liked)
	assert.Equal(t, "ada", h.AuthorUsername)
	assert.True(t, strings.HasSuffix(string(content), "\n---\n"+body))
}

func TestToggleLike_TwiceRestores(t *testing.T) {
	e := newEnv(t)
	e.post(t, "posts/a.md", "plain", baseTime)
	require.NoError(t, e.tl.RenderFull(context.Background()))

	_, err := e.tl.ToggleLike("posts/a.md")
	require.NoError(t, err)
	liked, err := e.tl.ToggleLike("posts/a.md")
	require.NoError(t, err)
	assert.False(t, liked)

	e.tl.Flush()
	content, _ := e.store.Read("posts/a.md")
	h, body, _ := header.Parse(content)
	assert.False(t, h.Liked)
	assert.Equal(t, "plain", strings.TrimSpace(string(body)))
}

func TestToggleLike_RevertsOnWriteFailure(t *testing.T) {
	e := newEnv(t)
	e.post(t, "posts/a.md", "plain", baseTime)
	require.NoError(t, e.tl.RenderFull(context.Background()))
	e.sink.reset()
	e.store.failWrite = true

	liked, err := e.tl.ToggleLike("posts/a.md")
	require.NoError(t, err)
	assert.True(t, liked)

	e.tl.Flush()
	assert.False(t, e.tl.View().Entries[0].Liked, "state reverted after failed write")
	assert.Equal(t, []PatchKind{PatchUpdate, PatchUpdate, PatchNotice}, e.sink.kinds())
}

func TestToggleLike_UnknownPath(t *testing.T) {
	e := newEnv(t)
	_, err := e.tl.ToggleLike("posts/missing.md")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestToggleLike_SurvivesModifyBeforeWrite(t *testing.T) {
	e := newEnv(t)
	e.post(t, "posts/a.md", "---\nliked: false\n---\noriginal", baseTime)
	require.NoError(t, e.tl.RenderFull(context.Background()))
	e.sink.reset()

	// Keep the background write parked until the edit has been applied.
	e.tl.writeMu.Lock()
	liked, err := e.tl.ToggleLike("posts/a.md")
	require.NoError(t, err)
	require.True(t, liked)

	e.post(t, "posts/a.md", "---\nliked: false\n---\nedited elsewhere", baseTime.Add(time.Minute))
	e.tl.HandleEvent(context.Background(), index.Event{Kind: index.EventModified, Path: "posts/a.md"})
	v := e.tl.View()
	assert.True(t, v.Entries[0].Liked, "edit does not undo a like that is still saving")
	assert.Contains(t, string(v.Entries[0].Body), "edited elsewhere")

	e.tl.writeMu.Unlock()
	e.tl.Flush()

	content, err := e.store.Read("posts/a.md")
	require.NoError(t, err)
	h, body, ok := header.Parse(content)
	require.True(t, ok)
	assert.True(t, h.Liked, "the picked state reaches disk")
	assert.Equal(t, "edited elsewhere", string(body))
	assert.True(t, e.tl.View().Entries[0].Liked)
	assert.NotContains(t, e.sink.kinds(), PatchNotice)
	assert.Empty(t, e.tl.likes, "intent dropped once saved")
}

func TestToggleLike_FullRenderKeepsPendingLike(t *testing.T) {
	e := newEnv(t)
	e.post(t, "posts/a.md", "plain", baseTime)
	require.NoError(t, e.tl.RenderFull(context.Background()))

	e.tl.writeMu.Lock()
	_, err := e.tl.ToggleLike("posts/a.md")
	require.NoError(t, err)
	require.NoError(t, e.tl.RenderFull(context.Background()))
	assert.True(t, e.tl.View().Entries[0].Liked)
	e.tl.writeMu.Unlock()
	e.tl.Flush()

	content, _ := e.store.Read("posts/a.md")
	h, _, _ := header.Parse(content)
	assert.True(t, h.Liked)
}
