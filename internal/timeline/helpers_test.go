package timeline

import (
	"context"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starford/echochamber/internal/models"
	"github.com/starford/echochamber/internal/render"
	"github.com/starford/echochamber/internal/settings"
	"github.com/starford/echochamber/internal/storage"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type staticSettings struct {
	mu sync.Mutex
	s  settings.Settings
}

func (s *staticSettings) Get() settings.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.s
}

type recordingSink struct {
	mu      sync.Mutex
	patches []Patch
}

func (r *recordingSink) Apply(p Patch) {
	r.mu.Lock()
	r.patches = append(r.patches, p)
	r.mu.Unlock()
}

func (r *recordingSink) kinds() []PatchKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PatchKind, 0, len(r.patches))
	for _, p := range r.patches {
		out = append(out, p.Kind)
	}
	return out
}

func (r *recordingSink) reset() {
	r.mu.Lock()
	r.patches = nil
	r.mu.Unlock()
}

type mapCache map[string]models.Header

func (m mapCache) Header(path string) (models.Header, bool, error) {
	h, ok := m[path]
	return h, ok, nil
}

// failingRenderer fails for bodies containing "boom".
type failingRenderer struct{ inner render.Renderer }

func (f failingRenderer) Render(ctx context.Context, body []byte) (template.HTML, error) {
	if string(body) == "boom" {
		return "", errors.New("renderer exploded")
	}
	return f.inner.Render(ctx, body)
}

// flakyStore fails reads or writes on demand.
type flakyStore struct {
	*storage.FS
	failRead  bool
	failWrite bool
}

func (f *flakyStore) Read(path string) ([]byte, error) {
	if f.failRead {
		return nil, errors.New("disk on fire")
	}
	return f.FS.Read(path)
}

func (f *flakyStore) Write(path string, content []byte) error {
	if f.failWrite {
		return errors.New("read-only vault")
	}
	return f.FS.Write(path, content)
}

type env struct {
	store *flakyStore
	sink  *recordingSink
	cfg   *staticSettings
	cache mapCache
	tl    *Timeline
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		store: &flakyStore{FS: storage.NewMemFS()},
		sink:  &recordingSink{},
		cfg:   &staticSettings{s: settings.Defaults()},
		cache: mapCache{},
	}
	e.tl = New(e.cfg, e.store, e.cache, failingRenderer{render.NewMarkdown()},
		WithSink(e.sink),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return baseTime.Add(time.Hour) }),
	)
	return e
}

// post writes a document and pins its modification time.
func (e *env) post(t *testing.T, path, content string, mod time.Time) {
	t.Helper()
	require.NoError(t, e.store.Write(path, []byte(content)))
	require.NoError(t, e.store.Afero().Chtimes("/"+path, mod, mod))
}

func paths(v View) []string {
	out := make([]string, 0, len(v.Entries))
	for _, e := range v.Entries {
		out = append(out, e.Path)
	}
	return out
}
