package index

import "github.com/starford/echochamber/internal/models"

// HeaderCache is the read side of the cache used when building entries.
type HeaderCache interface {
	// Header returns the cached header for path. ok is false when the
	// document has not been indexed yet or carries no header.
	Header(path string) (h models.Header, ok bool, err error)
}

// PostIndex defines the full set of cache operations.
type PostIndex interface {
	HeaderCache
	UpsertPost(p PostRow) error
	DeletePost(path string) error
	DeletePrefix(prefix string) error
	GetChecksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

var _ PostIndex = (*DB)(nil)
