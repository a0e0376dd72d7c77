package models

import "errors"

// Shared sentinels so the store, the HTTP client and the reconciler report
// the same taxonomy.
var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid request")
)
