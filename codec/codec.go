// Package codec converts cached values to and from the bytes engines store.
package codec

import "github.com/cockroachdb/errors"

// Codec encodes/decodes values V to []byte for storage. Decode must return a
// value that shares no memory with b.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// ErrTooLarge is returned by Limit when a payload exceeds its bound.
var ErrTooLarge = errors.New("codec: payload too large")
