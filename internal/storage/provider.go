// Package storage defines the vault document store.
package storage

import "github.com/starford/echochamber/internal/models"

// Provider is the interface for vault document operations. All paths are
// slash-separated and relative to the vault root.
type Provider interface {
	// List returns metadata for every .md file under dir.
	List(dir string) ([]models.DocMeta, error)
	// Stat reports what lives at path. A missing path is not an error.
	Stat(path string) (models.DocInfo, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the content at path.
	Write(path string, content []byte) error
	// Create writes a new file and fails with apperr.ErrAlreadyExists if one is there.
	Create(path string, content []byte) error
	// Mkdir creates the folder at path and any missing parents.
	Mkdir(path string) error
}
