package domain

import "errors"

// ErrNotFound is returned by registry lookups for unknown ids.
var ErrNotFound = errors.New("not found")
