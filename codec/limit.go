package codec

import "github.com/cockroachdb/errors"

// Limit wraps another codec and refuses to decode payloads larger than
// MaxDecode bytes, which a shared backend could otherwise feed to Inner.
// Encode is forwarded unchanged. MaxDecode <= 0 disables the check.
//
// A refused payload surfaces as a decode failure, so the service drops the
// entry and returns the caller's default.
type Limit[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }
func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, errors.Wrapf(ErrTooLarge, "%d > %d bytes", len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
