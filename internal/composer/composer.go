// Package composer turns typed text into a new post.
package composer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/echochamber/internal/apperr"
	"github.com/starford/echochamber/internal/header"
	"github.com/starford/echochamber/internal/models"
	"github.com/starford/echochamber/internal/settings"
	"github.com/starford/echochamber/internal/storage"
)

// stampLayout has millisecond granularity; two posts in the same
// millisecond collide.
const stampLayout = "2006-01-02T15:04:05.000Z"

// Feed is the part of the timeline the composer talks to.
type Feed interface {
	Insert(ctx context.Context, path string) error
	Notify(msg string)
}

// SettingsSource provides the current settings.
type SettingsSource interface {
	Get() settings.Settings
}

// Option configures a Composer.
type Option func(*Composer)

// WithHeader controls whether new posts get a header block.
func WithHeader(on bool) Option {
	return func(c *Composer) { c.withHeader = on }
}

// WithClock overrides the clock used for filenames.
func WithClock(now func() time.Time) Option {
	return func(c *Composer) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Composer) { c.logger = l }
}

// Composer creates posts in the configured folder.
type Composer struct {
	settings   SettingsSource
	store      storage.Provider
	feed       Feed
	withHeader bool
	now        func() time.Time
	logger     *slog.Logger
}

// New creates a Composer. Posts get a header by default.
func New(cfg SettingsSource, store storage.Provider, feed Feed, opts ...Option) *Composer {
	c := &Composer{
		settings:   cfg,
		store:      store,
		feed:       feed,
		withHeader: true,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Filename derives a post filename from an instant.
func Filename(at time.Time) string {
	stamp := at.UTC().Format(stampLayout)
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return stamp + ".md"
}

// Submit writes text as a new post and puts it at the top of the feed. It
// returns the new post's path. Blank text is rejected with
// apperr.ErrEmptyPost and nothing is written. On any other failure a notice
// is shown and the caller should keep the text for a retry.
func (c *Composer) Submit(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", apperr.ErrEmptyPost
	}

	s := c.settings.Get()
	folder := strings.Trim(s.PostsFolder, "/")

	path, err := c.write(folder, s, text)
	if err != nil {
		c.logger.Error("composer: create post failed", slog.String("folder", folder), slog.String("error", err.Error()))
		c.feed.Notify(failureNotice(err))
		return "", err
	}
	c.logger.Info("composer: post created", slog.String("path", path))

	if err := c.feed.Insert(ctx, path); err != nil {
		c.logger.Warn("composer: insert into feed failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	return path, nil
}

func (c *Composer) write(folder string, s settings.Settings, text string) (string, error) {
	if err := c.ensureFolder(folder); err != nil {
		return "", err
	}

	name := Filename(c.now())
	path := name
	if folder != "" {
		path = folder + "/" + name
	}

	content := []byte(text)
	if c.withHeader {
		var err error
		content, err = header.Compose(models.Header{
			Liked:             false,
			AuthorUsername:    s.Username,
			AuthorDisplayName: s.DisplayName,
		}, text)
		if err != nil {
			return "", err
		}
	}

	if err := c.store.Create(path, content); err != nil {
		return "", err
	}
	return path, nil
}

// ensureFolder creates the folder when it is absent. A file in its place is
// a configuration error.
func (c *Composer) ensureFolder(folder string) error {
	info, err := c.store.Stat(folder)
	if err != nil {
		return err
	}
	switch info.Kind {
	case models.KindFolder:
		return nil
	case models.KindFile:
		return fmt.Errorf("composer: %q: %w", folder, apperr.ErrNotFolder)
	}
	return c.store.Mkdir(folder)
}

func failureNotice(err error) string {
	switch {
	case errors.Is(err, apperr.ErrNotFolder):
		return "Posts folder path is taken by a file."
	case errors.Is(err, apperr.ErrAlreadyExists):
		return "A post with this timestamp already exists, try again."
	}
	return "Failed to create post."
}
