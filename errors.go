package cachekit

import (
	"fmt"

	"github.com/unkn0wn-root/cachekit/engine"
)

var (
	// ErrBadRequest marks invalid input such as a malformed engine name.
	ErrBadRequest = engine.ErrBadRequest
	// ErrNotImplemented marks unknown engines and unsupported operations.
	ErrNotImplemented = engine.ErrNotImplemented
)

// NameError reports a registry failure for a given engine name. Err carries
// the kind (ErrBadRequest or ErrNotImplemented).
type NameError struct {
	Name string
	Err  error
}

func (e *NameError) Error() string {
	return fmt.Sprintf("cachekit: engine %q: %v", e.Name, e.Err)
}

func (e *NameError) Unwrap() error { return e.Err }
