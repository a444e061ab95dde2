package cachekit

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// LoadFunc computes a value on a cache miss.
type LoadFunc[V any] func(ctx context.Context) (V, error)

type hydration[V any] struct {
	v       V
	payload []byte
}

// Hydrate returns the cached value for key, or computes it with fn, stores it
// with ttl and returns it.
//
// Concurrent misses on the same key share a single fn call: the first caller
// starts it and later callers wait for its outcome. Every caller gets its own
// decoded copy of the value, or the same error. fn runs with a context that
// is not cancelled by any caller; a caller whose ctx ends stops waiting and
// gets ctx.Err() while fn keeps going for the others. Once a call settles the
// key is forgotten, so a later miss (for example after a failure) starts a
// new computation.
//
// A failed write-back is logged and reported to Hooks; callers still get the
// computed value. Under bypass fn is called directly and the cache is not
// touched.
func (s *Service[V]) Hydrate(ctx context.Context, key string, fn LoadFunc[V], ttl time.Duration) (V, error) {
	var zero V
	if s.bypass {
		return fn(ctx)
	}
	if v, ok := s.Lookup(ctx, key); ok {
		return v, nil
	}

	sk := s.StorageKey(key)
	origin := false
	ch := s.group.DoChan(sk, func() (any, error) {
		origin = true
		return s.load(context.WithoutCancel(ctx), sk, fn, ttl)
	})

	select {
	case res := <-ch:
		if !origin {
			s.hooks.HydrateShared(sk)
		}
		if res.Err != nil {
			return zero, res.Err
		}
		h := res.Val.(hydration[V])
		if origin {
			return h.v, nil
		}
		v, err := s.codec.Decode(h.payload)
		if err != nil {
			return zero, errors.Wrapf(err, "cachekit: decode hydrated %q", key)
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// load runs in the single-flight goroutine. Panics are turned into errors
// here because singleflight re-raises them on a fresh goroutine for DoChan.
func (s *Service[V]) load(ctx context.Context, sk string, fn LoadFunc[V], ttl time.Duration) (res hydration[V], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("cachekit: hydrate %q panicked: %v", sk, r)
		}
	}()

	v, err := fn(ctx)
	if err != nil {
		return res, err
	}
	b, err := s.codec.Encode(v)
	if err != nil {
		return res, errors.Wrapf(err, "cachekit: encode %q", sk)
	}
	if err := s.eng.Set(ctx, sk, b, ttl); err != nil {
		s.log.Warn("hydrate write-back failed", Fields{"key": sk, "err": err})
		s.hooks.HydrateStoreFailed(sk, err)
	}
	return hydration[V]{v: v, payload: b}, nil
}
