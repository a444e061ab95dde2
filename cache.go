package cachekit

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/cachekit/codec"
	"github.com/unkn0wn-root/cachekit/engine"
	"github.com/unkn0wn-root/cachekit/internal/util"
)

// TimestampLayout is the format returned by CacheTimestamp.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Service is the cache facade. V is the caller's value type; serialization is
// handled by a pluggable Codec[V]. Safe for concurrent use.
type Service[V any] struct {
	eng        engine.Engine
	engineName string
	ownsEngine bool
	prefix     string
	bypass     bool
	codec      codec.Codec[V]
	log        Logger
	hooks      Hooks

	// in-flight hydrations keyed by storage key
	group *singleflight.Group
}

// StorageKey returns the engine key for a caller key.
func (s *Service[V]) StorageKey(key string) string { return util.StorageKey(s.prefix, key) }

func (s *Service[V]) Bypass() bool { return s.bypass }

// Engine exposes the resolved engine.
func (s *Service[V]) Engine() engine.Engine { return s.eng }

// fetch reads and decodes storageKey. Engine errors are returned; undecodable
// entries are deleted and reported as a miss.
func (s *Service[V]) fetch(ctx context.Context, storageKey string) (V, bool, error) {
	var zero V
	raw, ok, err := s.eng.Get(ctx, storageKey)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := s.codec.Decode(raw)
	if err != nil {
		if derr := s.eng.Del(ctx, storageKey); derr != nil {
			s.log.Warn("self-heal delete failed", Fields{"key": storageKey, "err": derr})
		}
		s.log.Debug("dropped undecodable entry", Fields{"key": storageKey, "err": err})
		s.hooks.SelfHeal(storageKey, "value_decode")
		return zero, false, nil
	}
	return v, true, nil
}

func (s *Service[V]) degraded(storageKey string, err error) {
	s.log.Warn("cache read failed, serving default", Fields{"key": storageKey, "err": err})
	s.hooks.ReadDegraded(storageKey, err)
}

// Lookup is Get with an explicit hit flag. Bypass, misses, expired entries,
// read failures and decode failures all report ok=false.
func (s *Service[V]) Lookup(ctx context.Context, key string) (V, bool) {
	var zero V
	if s.bypass {
		return zero, false
	}
	sk := s.StorageKey(key)
	v, ok, err := s.fetch(ctx, sk)
	if err != nil {
		s.degraded(sk, err)
		return zero, false
	}
	return v, ok
}

// Get returns the cached value for key, or def.
func (s *Service[V]) Get(ctx context.Context, key string, def V) V {
	if v, ok := s.Lookup(ctx, key); ok {
		return v
	}
	return def
}

// Set stores v under key. ttl <= 0 stores without expiry, clearing any
// previous one.
func (s *Service[V]) Set(ctx context.Context, key string, v V, ttl time.Duration) error {
	b, err := s.codec.Encode(v)
	if err != nil {
		return errors.Wrapf(err, "cachekit: encode %q", key)
	}
	return s.eng.Set(ctx, s.StorageKey(key), b, ttl)
}

func (s *Service[V]) Del(ctx context.Context, key string) error {
	return s.eng.Del(ctx, s.StorageKey(key))
}

// Expire changes the TTL of an existing entry; ttl <= 0 makes it persistent.
func (s *Service[V]) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.eng.Expire(ctx, s.StorageKey(key), ttl)
}

// CacheTimestamp returns the entry's absolute expiry in UTC, formatted with
// TimestampLayout. ok is false when the key is missing, expired or has no
// expiry.
func (s *Service[V]) CacheTimestamp(ctx context.Context, key string) (string, bool) {
	sk := s.StorageKey(key)
	t, ok, err := s.eng.ExpiresAt(ctx, sk)
	if err != nil {
		s.degraded(sk, err)
		return "", false
	}
	if !ok {
		return "", false
	}
	return t.UTC().Format(TimestampLayout), true
}

// Flush deletes entries in this service's namespace whose key starts with
// needle. An empty needle clears the namespace (or the whole engine when no
// storage key is configured).
func (s *Service[V]) Flush(ctx context.Context, needle string) error {
	return s.eng.Flush(ctx, s.flushNeedle(needle))
}

func (s *Service[V]) flushNeedle(needle string) string {
	if s.prefix == "" {
		return needle
	}
	return util.StorageKey(s.prefix, needle)
}

// Client returns the engine's raw handle; ErrNotImplemented for engines
// without one.
func (s *Service[V]) Client() (any, error) { return s.eng.Client() }

// Close releases the engine when the service created it.
func (s *Service[V]) Close(ctx context.Context) error {
	if !s.ownsEngine {
		return nil
	}
	return s.eng.Close(ctx)
}
