package objectstore

import "errors"

// ErrNotFound is returned by [Store.Get] when the requested key does not exist.
var ErrNotFound = errors.New("objectstore: object not found")

// ErrInvalidKey is returned when a caller-supplied key fails validation
// (path traversal attempt, disallowed characters, empty string).
var ErrInvalidKey = errors.New("objectstore: invalid key")

// ErrAccessDenied is returned when a key resolves to a namespace the caller
// does not own.
var ErrAccessDenied = errors.New("objectstore: access denied")
