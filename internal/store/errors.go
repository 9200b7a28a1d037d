// Package store implements the local record store: a durable key/value table
// of typed records with a FIFO queue of deferred actions layered on top.
//
// This file centralizes the error values returned by the store so callers can
// branch with errors.Is. Every failing operation returns one of these,
// wrapped around the underlying driver error.
package store

import (
	"errors"
	"fmt"
)

var (
	// ErrStorageUnavailable indicates the durable storage backend could not be
	// opened or migrated. It is fatal to store features only.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrStorageWriteFailed indicates a transient write failure (I/O, quota,
	// lock contention). Callers may retry or drop the write.
	ErrStorageWriteFailed = errors.New("storage write failed")

	// ErrStorageReadFailed indicates a transient read failure.
	ErrStorageReadFailed = errors.New("storage read failed")

	// ErrInvalidRecord is returned for records without an id or type, or with
	// a payload that is not valid JSON.
	ErrInvalidRecord = errors.New("invalid record")
)

// wrap tags err with both the store sentinel and the operation name.
func wrap(sentinel error, op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, sentinel, err)
}
