package engage

import "errors"

// ErrPostNotFound is returned when the addressed post has no row in the
// store of record. Surfaced to API callers as a 4xx.
var ErrPostNotFound = errors.New("post not found")
