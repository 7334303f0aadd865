// Package testutil provides shared test helpers for setting up vaults,
// metadata caches, and settings.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/starford/echochamber/internal/index"
	"github.com/starford/echochamber/internal/settings"
	"github.com/starford/echochamber/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "echochamber-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory with a storage provider.
func TestVault(t *testing.T) (string, *storage.FS) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// TestSettings opens a settings store backed by memory, starting from the
// defaults.
func TestSettings(t *testing.T) *settings.Store {
	t.Helper()
	s, err := settings.Open(afero.NewMemMapFs(), "/settings.json")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// WritePost writes a document into an OS-backed vault and pins its
// modification time.
func WritePost(t *testing.T, vaultDir, rel, content string, modTime time.Time) {
	t.Helper()
	abs := filepath.Join(vaultDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(abs, modTime, modTime); err != nil {
		t.Fatal(err)
	}
}

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
