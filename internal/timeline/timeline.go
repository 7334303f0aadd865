// Package timeline keeps the rendered feed: one entry per post in the posts
// folder, newest first, patched in place as documents change.
package timeline

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/starford/echochamber/internal/index"
	"github.com/starford/echochamber/internal/models"
	"github.com/starford/echochamber/internal/render"
	"github.com/starford/echochamber/internal/settings"
	"github.com/starford/echochamber/internal/storage"
)

// State describes what the feed currently shows.
type State string

const (
	StateMissing State = "missing" // folder absent or not a folder
	StateEmpty   State = "empty"   // folder has no posts
	StateFailed  State = "failed"  // last full render failed
	StateListed  State = "listed"
)

// Entry is one rendered post.
type Entry struct {
	Path        string        `json:"path"`
	DisplayName string        `json:"display_name"`
	Username    string        `json:"username"`
	Posted      string        `json:"posted"`
	ModTime     time.Time     `json:"mod_time"`
	Body        template.HTML `json:"body"`
	Liked       bool          `json:"liked"`
}

// View is a snapshot of the feed.
type View struct {
	State   State   `json:"state"`
	Message string  `json:"message,omitempty"`
	Entries []Entry `json:"entries"`
}

// PatchKind names a change to the rendered feed.
type PatchKind string

const (
	PatchReset   PatchKind = "reset"
	PatchPrepend PatchKind = "prepend"
	PatchUpdate  PatchKind = "update"
	PatchRemove  PatchKind = "remove"
	PatchNotice  PatchKind = "notice"
)

// Patch describes one change. Reset carries View, prepend and update carry
// Entry, remove carries Path, notice carries Message.
type Patch struct {
	Kind    PatchKind
	Path    string
	Entry   Entry
	View    View
	Message string
}

// Sink receives patches. Apply is called with the timeline lock held and
// must not call back into the Timeline.
type Sink interface {
	Apply(p Patch)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Patch)

// Apply implements Sink.
func (f SinkFunc) Apply(p Patch) { f(p) }

// SettingsSource provides the current settings.
type SettingsSource interface {
	Get() settings.Settings
}

// Stats reports counters for diagnostics and tests.
type Stats struct {
	FullRenders int
	Entries     int
}

// Option configures a Timeline.
type Option func(*Timeline)

// WithSink sets where patches go.
func WithSink(s Sink) Option {
	return func(t *Timeline) { t.sink = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Timeline) { t.logger = l }
}

// WithClock overrides the clock used for relative timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Timeline) { t.now = now }
}

// Timeline owns the path-keyed entry index. Every operation holds mu for its
// whole duration, so handlers run one at a time.
type Timeline struct {
	mu       sync.Mutex
	settings SettingsSource
	store    storage.Provider
	cache    index.HeaderCache
	renderer render.Renderer
	sink     Sink
	logger   *slog.Logger
	now      func() time.Time

	state       State
	message     string
	entries     []*Entry
	byPath      map[string]*Entry
	fullRenders int

	writeMu sync.Mutex
	writes  sync.WaitGroup
	likes   map[string]*likeIntent // guarded by mu
}

// New creates a Timeline. cache may be nil, in which case headers are always
// parsed from content.
func New(cfg SettingsSource, store storage.Provider, cache index.HeaderCache, renderer render.Renderer, opts ...Option) *Timeline {
	t := &Timeline{
		settings: cfg,
		store:    store,
		cache:    cache,
		renderer: renderer,
		sink:     SinkFunc(func(Patch) {}),
		logger:   slog.Default(),
		now:      time.Now,
		byPath:   make(map[string]*Entry),
		likes:    make(map[string]*likeIntent),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RenderFull rebuilds the whole feed from the posts folder.
func (t *Timeline) RenderFull(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.renderFullLocked(ctx)
}

func (t *Timeline) renderFullLocked(ctx context.Context) error {
	t.fullRenders++
	t.entries = nil
	t.byPath = make(map[string]*Entry)
	t.message = ""

	folder := t.settings.Get().PostsFolder
	err := t.loadLocked(ctx, folder)
	if err != nil {
		t.entries = nil
		t.byPath = make(map[string]*Entry)
		t.state = StateFailed
		t.message = fmt.Sprintf("Error loading posts: %v", err)
		t.logger.Error("timeline: render failed", slog.String("folder", folder), slog.String("error", err.Error()))
		t.notifyLocked("Failed to load posts.")
	}
	t.sink.Apply(Patch{Kind: PatchReset, View: t.viewLocked()})
	return err
}

func (t *Timeline) loadLocked(ctx context.Context, folder string) error {
	info, err := t.store.Stat(folderPath(folder))
	if err != nil {
		return err
	}
	if info.Kind != models.KindFolder {
		t.state = StateMissing
		t.message = fmt.Sprintf("No posts at \"%s\".", folder)
		return nil
	}

	metas, err := t.store.List(folderPath(folder))
	if err != nil {
		return err
	}
	pfx := prefix(folder)
	docs := metas[:0]
	for _, m := range metas {
		if strings.HasPrefix(m.Path, pfx) {
			docs = append(docs, m)
		}
	}
	if len(docs) == 0 {
		t.state = StateEmpty
		t.message = fmt.Sprintf("No notes found in \"%s\".", folder)
		return nil
	}

	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].ModTime.Equal(docs[j].ModTime) {
			return docs[i].ModTime.After(docs[j].ModTime)
		}
		return docs[i].Path > docs[j].Path
	})

	for _, d := range docs {
		e, err := t.buildEntry(ctx, d.Path, d.ModTime)
		if err != nil {
			return err
		}
		t.entries = append(t.entries, e)
		t.byPath[e.Path] = e
	}
	t.state = StateListed
	return nil
}

// View returns a snapshot of the feed.
func (t *Timeline) View() View {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.viewLocked()
}

func (t *Timeline) viewLocked() View {
	v := View{State: t.state, Message: t.message, Entries: make([]Entry, 0, len(t.entries))}
	for _, e := range t.entries {
		v.Entries = append(v.Entries, *e)
	}
	return v
}

// Stats returns the current counters.
func (t *Timeline) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{FullRenders: t.fullRenders, Entries: len(t.entries)}
}

// Notify surfaces a transient message to viewers.
func (t *Timeline) Notify(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notifyLocked(msg)
}

func (t *Timeline) notifyLocked(msg string) {
	t.sink.Apply(Patch{Kind: PatchNotice, Message: msg})
}

// folderPath normalises the configured folder to a store path. "" and "/"
// both mean the vault root.
func folderPath(folder string) string {
	return strings.Trim(folder, "/")
}

func prefix(folder string) string {
	f := folderPath(folder)
	if f == "" {
		return ""
	}
	return f + "/"
}

func inFolder(path, folder string) bool {
	return path != "" && strings.HasPrefix(path, prefix(folder))
}

func isPost(path, folder string) bool {
	return inFolder(path, folder) && strings.HasSuffix(path, ".md")
}
