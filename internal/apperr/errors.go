// Package apperr holds the sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrNotFolder     = errors.New("not a folder")
	ErrEmptyPost     = errors.New("empty post")
	ErrUnknownField  = errors.New("unknown settings field")
)
