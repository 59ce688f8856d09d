// Package apperr holds the sentinel errors shared by the volume, the engine,
// and the transports built on top of them.
package apperr

import "errors"

var (
	ErrNotMounted      = errors.New("filesystem not mounted")
	ErrNotFound        = errors.New("not found")
	ErrIsDirectory     = errors.New("is a directory")
	ErrNotDirectory    = errors.New("not a directory")
	ErrShortWrite      = errors.New("write returned zero bytes")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrExists          = errors.New("already exists")
	ErrConflict        = errors.New("conflict")
)
