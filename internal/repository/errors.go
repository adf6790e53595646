package repository

import "errors"

// ErrNotFound means the requested record does not exist. A missing
// event_state row maps to this and callers fall back to defaults.
var ErrNotFound = errors.New("repository: record not found")
