package engine

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrBadRequest marks configuration errors, such as a malformed engine name.
	ErrBadRequest = errors.New("cachekit: bad request")
	// ErrNotImplemented marks operations or engines that do not exist.
	ErrNotImplemented = errors.New("cachekit: not implemented")
)

// NotImplemented returns an error marked with ErrNotImplemented.
func NotImplemented(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotImplemented)
}

// BadRequest returns an error marked with ErrBadRequest.
func BadRequest(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrBadRequest)
}
