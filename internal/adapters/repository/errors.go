package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrReadOnly = errors.New("write in read-only transaction")
	ErrClosed   = errors.New("store is closed")
)
