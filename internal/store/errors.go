package store

import "errors"

var (
	// ErrNotFound is returned when a requested row or operation record
	// does not exist in the local cache.
	ErrNotFound = errors.New("record not found")

	// ErrOwnerMismatch is returned when a bulk write contains rows that
	// are missing an owner or span more than one owner. The whole batch
	// is rejected.
	ErrOwnerMismatch = errors.New("rows must share a single non-empty owner")
)
