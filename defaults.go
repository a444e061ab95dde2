package cachekit

// coalesce returns def when v is the zero value of T - otherwise v.
// Only use with types whose values are always comparable.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
