// Package engine defines the storage abstraction used by cachekit.
//
// Engines store opaque payload bytes with an optional absolute expiry. They
// never interpret payloads: serialization belongs to the cache service and its
// codec. Every engine compares expiry with "now" on read, so an entry that
// outlived its TTL is never returned even if a sweep has not removed it yet.
package engine

import (
	"context"
	"time"
)

// Engine is a byte store with per-entry expiry. Implementations must be safe
// for concurrent use.
type Engine interface {
	// Connect establishes the underlying connection. Idempotent.
	Connect(ctx context.Context) error

	// Get returns (payload, true, nil) on hit; (nil, false, nil) on miss or
	// expired entry. If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value. ttl <= 0 stores it without expiry and clears any
	// previous expiry on key.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Del removes key. A missing key is not an error.
	Del(ctx context.Context, key string) error

	// Expire replaces the TTL of an existing, unexpired entry and keeps its
	// payload. ttl <= 0 makes the entry persistent. Missing keys are ignored.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// ExpiresAt reports the absolute expiry of key. ok is false when the key
	// is missing, expired or has no expiry.
	ExpiresAt(ctx context.Context, key string) (t time.Time, ok bool, err error)

	// Flush deletes every entry whose key starts with needle; an empty needle
	// deletes everything the engine controls.
	Flush(ctx context.Context, needle string) error

	// Client returns the raw backend handle. Engines without one return an
	// error marked ErrNotImplemented.
	Client() (any, error)

	// Close stops background work and releases owned resources.
	Close(ctx context.Context) error
}
