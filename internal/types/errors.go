package types

import "errors"

// ErrNotFound is returned when a node, round or unit reference is missing.
var ErrNotFound = errors.New("not found")

// ErrServiceUnavailable is returned when the question corpus cannot be queried.
var ErrServiceUnavailable = errors.New("corpus service unavailable")
