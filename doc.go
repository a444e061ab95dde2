// Package cachekit implements a namespaced cache service over pluggable
// storage engines, with single-flight hydration of missing keys.
//
// Components:
//   - engine.Engine: byte store with per-entry expiry (memory, relational,
//     remote/redis, bigcache, none).
//   - Registry: resolves an engine by name from Config.
//   - codec.Codec[V]: (de)serializes V <-> []byte. Every read decodes fresh
//     bytes, so callers never share a cached value.
//   - Service[V]: prefixes keys, honors the bypass switch and coalesces
//     concurrent hydrations of the same key.
//
// Keys:
//
//	<storage_key>.<key>  - when a storage key is configured
//	<key>                - otherwise
//
// Hydration pattern:
//
//	u, err := svc.Hydrate(ctx, "user:42", func(ctx context.Context) (User, error) {
//	    return loadUser(ctx, 42) // runs once per key no matter how many callers wait
//	}, 10*time.Minute)
package cachekit
