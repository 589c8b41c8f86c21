package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrEmptyResource = errors.New("resource name must not be empty")
	ErrEmptyBlock    = errors.New("overwrite block must contain a header row")
	ErrClosed        = errors.New("store closed")
)
