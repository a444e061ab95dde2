package cachekit

import (
	"context"
	"slices"
)

// Add appends values to the list stored under key and writes it back without
// expiry. A missing key starts from an empty list.
//
// Add and Remove read through the engine even under bypass, since they are
// writes. Engine read errors are returned rather than risking an overwrite.
func Add[E any](ctx context.Context, s *Service[[]E], key string, values ...E) error {
	cur, _, err := s.fetch(ctx, s.StorageKey(key))
	if err != nil {
		return err
	}
	next := make([]E, 0, len(cur)+len(values))
	next = append(append(next, cur...), values...)
	return s.Set(ctx, key, next, 0)
}

// Remove deletes every occurrence of each value from the list stored under
// key and writes it back without expiry. A missing key is not created: Remove
// returns nil and stores nothing, not even an empty list.
func Remove[E comparable](ctx context.Context, s *Service[[]E], key string, values ...E) error {
	cur, ok, err := s.fetch(ctx, s.StorageKey(key))
	if err != nil || !ok {
		return err
	}
	next := slices.DeleteFunc(cur, func(e E) bool { return slices.Contains(values, e) })
	return s.Set(ctx, key, next, 0)
}
