// Package models defines the domain types for echochamber.
package models

import "time"

// Header is the key-value block at the start of a post.
type Header struct {
	Liked             bool   `yaml:"liked" json:"liked"`
	AuthorUsername    string `yaml:"author_username,omitempty" json:"author_username,omitempty"`
	AuthorDisplayName string `yaml:"author_display_name,omitempty" json:"author_display_name,omitempty"`
}

// DocKind describes what lives at a vault path.
type DocKind int

const (
	KindMissing DocKind = iota
	KindFile
	KindFolder
)

// DocInfo is the result of a single path lookup.
type DocInfo struct {
	Path    string
	Kind    DocKind
	ModTime time.Time
	Size    int64
}

// DocMeta is a lightweight representation returned by list operations.
type DocMeta struct {
	Path     string    `json:"path"`
	Checksum string    `json:"checksum"`
	ModTime  time.Time `json:"mod_time"`
}
