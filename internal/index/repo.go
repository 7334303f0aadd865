package index

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/starford/echochamber/internal/models"
)

// PostRow represents a row in the posts table.
type PostRow struct {
	Path      string
	Checksum  string
	HasHeader bool
	Header    models.Header
	IndexedAt time.Time
}

// UpsertPost inserts or replaces the cached metadata of a post.
func (db *DB) UpsertPost(p PostRow) error {
	if p.IndexedAt.IsZero() {
		p.IndexedAt = time.Now()
	}
	_, err := db.conn.Exec(`
		INSERT INTO posts (path, checksum, has_header, liked, author_username, author_display_name, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum            = excluded.checksum,
			has_header          = excluded.has_header,
			liked               = excluded.liked,
			author_username     = excluded.author_username,
			author_display_name = excluded.author_display_name,
			indexed_at          = excluded.indexed_at
	`, p.Path, p.Checksum, p.HasHeader, p.Header.Liked, p.Header.AuthorUsername, p.Header.AuthorDisplayName, p.IndexedAt)
	if err != nil {
		return fmt.Errorf("index: upsert post: %w", err)
	}
	return nil
}

// DeletePost removes a post from the cache.
func (db *DB) DeletePost(path string) error {
	if _, err := db.conn.Exec(`DELETE FROM posts WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete post: %w", err)
	}
	return nil
}

// DeletePrefix removes every post under the folder prefix (used when a
// directory is moved away).
func (db *DB) DeletePrefix(prefix string) error {
	prefix = strings.TrimSuffix(prefix, "/") + "/"
	if _, err := db.conn.Exec(`DELETE FROM posts WHERE substr(path, 1, ?) = ?`, utf8.RuneCountInString(prefix), prefix); err != nil {
		return fmt.Errorf("index: delete prefix: %w", err)
	}
	return nil
}

// Header returns the cached header of a post.
func (db *DB) Header(path string) (models.Header, bool, error) {
	var (
		h         models.Header
		hasHeader bool
	)
	err := db.conn.QueryRow(`
		SELECT has_header, liked, author_username, author_display_name
		FROM posts WHERE path = ?
	`, path).Scan(&hasHeader, &h.Liked, &h.AuthorUsername, &h.AuthorDisplayName)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Header{}, false, nil
	}
	if err != nil {
		return models.Header{}, false, fmt.Errorf("index: header: %w", err)
	}
	if !hasHeader {
		return models.Header{}, false, nil
	}
	return h, true, nil
}

// GetChecksum returns the stored checksum for a post, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM posts WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns path → checksum for every cached post.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM posts`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}
