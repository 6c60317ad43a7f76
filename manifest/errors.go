package manifest

import "errors"

// ErrTruncated is returned when a manifest ends before a declared field or
// length-prefixed value is complete.
var ErrTruncated = errors.New("truncated manifest")

// ErrVersion is returned when a manifest declares a version this package
// does not understand.
var ErrVersion = errors.New("unsupported manifest version")
