package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/starford/echochamber/internal/apperr"
	"github.com/starford/echochamber/internal/models"
)

const (
	filePerm = 0o644
	dirPerm  = 0o755
	tmpGlob  = ".echo-tmp-*"
)

// FS implements Provider on top of an afero filesystem.
type FS struct {
	fs   afero.Fs
	root string // absolute OS path, empty for in-memory stores
}

// NewFS creates a provider rooted at the given OS directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{fs: afero.NewBasePathFs(afero.NewOsFs(), abs), root: abs}, nil
}

// NewMemFS returns a provider backed by an in-memory filesystem.
func NewMemFS() *FS {
	return &FS{fs: afero.NewMemMapFs()}
}

// Root returns the absolute OS path of the vault, or "" for in-memory stores.
func (f *FS) Root() string {
	return f.root
}

// Afero exposes the underlying filesystem.
func (f *FS) Afero() afero.Fs {
	return f.fs
}

// safePath validates a vault-relative path and returns its rooted form.
// Absolute paths and paths escaping the root are rejected.
func (f *FS) safePath(rel string) (string, error) {
	rel = filepath.ToSlash(rel)
	if rel == "" {
		return "/", nil
	}
	if strings.HasPrefix(rel, "/") || filepath.IsAbs(rel) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	cleaned := path.Clean(rel)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("storage: path escapes vault root: %s", rel)
	}
	if cleaned == "." {
		return "/", nil
	}
	return "/" + cleaned, nil
}

// List walks dir and returns metadata for every .md file.
func (f *FS) List(dir string) ([]models.DocMeta, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	var out []models.DocMeta
	err = afero.Walk(f.fs, base, func(p string, info fs.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".md") {
			return nil
		}
		data, err := afero.ReadFile(f.fs, p)
		if err != nil {
			return err
		}
		out = append(out, models.DocMeta{
			Path:     strings.TrimPrefix(filepath.ToSlash(p), "/"),
			Checksum: checksum(data),
			ModTime:  info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", dir, err)
	}
	return out, nil
}

// Stat reports the kind of resource at path.
func (f *FS) Stat(rel string) (models.DocInfo, error) {
	p, err := f.safePath(rel)
	if err != nil {
		return models.DocInfo{}, err
	}
	info, err := f.fs.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.DocInfo{Path: rel, Kind: models.KindMissing}, nil
		}
		return models.DocInfo{}, fmt.Errorf("storage: stat %s: %w", rel, err)
	}
	kind := models.KindFile
	if info.IsDir() {
		kind = models.KindFolder
	}
	return models.DocInfo{Path: rel, Kind: kind, ModTime: info.ModTime(), Size: info.Size()}, nil
}

// Read returns the raw bytes of a vault file.
func (f *FS) Read(rel string) ([]byte, error) {
	p, err := f.safePath(rel)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(f.fs, p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("storage: read %s: %w", rel, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: read %s: %w", rel, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(rel string, content []byte) error {
	p, err := f.safePath(rel)
	if err != nil {
		return err
	}
	dir := path.Dir(p)
	if err := f.fs.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := afero.TempFile(f.fs, dir, tmpGlob)
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = f.fs.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := f.fs.Rename(tmpName, p); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Create writes a brand-new file. An existing file is never overwritten.
func (f *FS) Create(rel string, content []byte) error {
	p, err := f.safePath(rel)
	if err != nil {
		return err
	}
	file, err := f.fs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("storage: create %s: %w", rel, apperr.ErrAlreadyExists)
		}
		return fmt.Errorf("storage: create %s: %w", rel, err)
	}
	if _, err := file.Write(content); err != nil {
		_ = file.Close()
		return fmt.Errorf("storage: write %s: %w", rel, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("storage: close %s: %w", rel, err)
	}
	return nil
}

// Mkdir creates a folder and its parents.
func (f *FS) Mkdir(rel string) error {
	p, err := f.safePath(rel)
	if err != nil {
		return err
	}
	if err := f.fs.MkdirAll(p, dirPerm); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", rel, err)
	}
	return nil
}

// Delete removes a file from the vault.
func (f *FS) Delete(rel string) error {
	p, err := f.safePath(rel)
	if err != nil {
		return err
	}
	if err := f.fs.Remove(p); err != nil {
		return fmt.Errorf("storage: delete %s: %w", rel, err)
	}
	return nil
}

// Move renames a file within the vault.
func (f *FS) Move(oldRel, newRel string) error {
	oldPath, err := f.safePath(oldRel)
	if err != nil {
		return err
	}
	newPath, err := f.safePath(newRel)
	if err != nil {
		return err
	}
	if err := f.fs.MkdirAll(path.Dir(newPath), dirPerm); err != nil {
		return fmt.Errorf("storage: mkdir for move: %w", err)
	}
	if err := f.fs.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("storage: move: %w", err)
	}
	return nil
}

// Checksum returns the hex-encoded SHA-256 digest of data.
func Checksum(data []byte) string {
	return checksum(data)
}

func checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
