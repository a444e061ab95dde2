package bigcache

import (
	"context"
	"testing"
	"time"

	bc "github.com/allegro/bigcache/v3"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/cachekit/engine"
	"github.com/unkn0wn-root/cachekit/internal/wire"
)

func newManual(t *testing.T) (*BigCache, *time.Time) {
	t.Helper()
	b, err := New(context.Background(), Config{Shards: 16, SweepInterval: -1}, nil)
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	b.now = func() time.Time { return now }
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	return b, &now
}

func TestNewRejectsBadShards(t *testing.T) {
	_, err := New(context.Background(), Config{Shards: 12}, nil)
	assert.True(t, errors.Is(err, engine.ErrBadRequest))
}

func TestBigCacheSetGet(t *testing.T) {
	b, _ := newManual(t)
	ctx := context.Background()

	_, ok, err := b.Get(ctx, "k")
	assert.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Set(ctx, "k", []byte("v"), 0))
	got, ok, err := b.Get(ctx, "k")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)
}

func TestBigCacheExpiry(t *testing.T) {
	b, now := newManual(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "k", []byte("v"), 10*time.Second))
	exp, ok, err := b.ExpiresAt(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, exp.Equal(now.Add(10*time.Second)))

	*now = now.Add(10 * time.Second)
	_, ok, _ = b.Get(ctx, "k")
	assert.False(t, ok, "entry expires at its deadline")

	assert.Equal(t, 1, b.sweep())
	assert.Equal(t, 0, b.Len())
}

func TestBigCacheExpire(t *testing.T) {
	b, now := newManual(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "k", []byte("v"), 0))
	_, ok, _ := b.ExpiresAt(ctx, "k")
	assert.False(t, ok)

	require.NoError(t, b.Expire(ctx, "k", time.Second))
	*now = now.Add(2 * time.Second)
	_, ok, _ = b.Get(ctx, "k")
	assert.False(t, ok)

	require.NoError(t, b.Expire(ctx, "absent", time.Second))
	_, ok, _ = b.Get(ctx, "absent")
	assert.False(t, ok)
}

func TestBigCacheDelIdempotent(t *testing.T) {
	b, _ := newManual(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "k", []byte("v"), 0))
	assert.NoError(t, b.Del(ctx, "k"))
	assert.NoError(t, b.Del(ctx, "k"))
}

func TestBigCacheCorruptEntryIsDropped(t *testing.T) {
	b, _ := newManual(t)
	ctx := context.Background()

	require.NoError(t, b.c.Set("k", []byte("junk")))
	_, ok, err := b.Get(ctx, "k")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, b.Len())
}

func TestBigCacheFlush(t *testing.T) {
	b, _ := newManual(t)
	ctx := context.Background()

	for _, k := range []string{"p-1", "p-2", "q-1"} {
		require.NoError(t, b.Set(ctx, k, []byte(k), 0))
	}
	require.NoError(t, b.Flush(ctx, "p-"))
	_, ok, _ := b.Get(ctx, "p-1")
	assert.False(t, ok)
	_, ok, _ = b.Get(ctx, "q-1")
	assert.True(t, ok)

	require.NoError(t, b.Flush(ctx, ""))
	assert.Equal(t, 0, b.Len())
}

func TestBigCacheClient(t *testing.T) {
	b, _ := newManual(t)
	c, err := b.Client()
	require.NoError(t, err)
	_, ok := c.(*bc.BigCache)
	assert.True(t, ok)
}

func TestBigCacheBackgroundSweep(t *testing.T) {
	b, err := New(context.Background(), Config{Shards: 16, SweepInterval: 10 * time.Millisecond}, nil)
	require.NoError(t, err)
	defer b.Close(context.Background())

	require.NoError(t, b.Set(context.Background(), "k", []byte("v"), time.Millisecond))
	assert.Eventually(t, func() bool { return b.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestBigCacheCloseIdempotent(t *testing.T) {
	b, err := New(context.Background(), Config{Shards: 16}, nil)
	require.NoError(t, err)
	assert.NoError(t, b.Close(context.Background()))
	assert.NoError(t, b.Close(context.Background()))
}

func TestSweepKeepsWriteRacingDeletion(t *testing.T) {
	b, now := newManual(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "k", []byte("old"), time.Second))
	*now = now.Add(2 * time.Second)

	at := *now
	expired := func(_ string, data []byte) bool {
		exp, _, err := wire.DecodeEntry(data)
		return err != nil || (engine.Entry{ExpiresAt: exp}).Expired(at)
	}
	rewritten := false
	removed := b.deleteMatching(func(key string, data []byte) bool {
		if !rewritten {
			// a writer replaces the entry after it was picked as a candidate
			rewritten = true
			require.NoError(t, b.Set(ctx, key, []byte("fresh"), 0))
		}
		return expired(key, data)
	})
	assert.Equal(t, 0, removed)

	got, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("fresh"), got)
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	b, now := newManual(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "short", []byte("v"), time.Second))
	require.NoError(t, b.Set(ctx, "long", []byte("v"), time.Hour))
	require.NoError(t, b.Set(ctx, "forever", []byte("v"), 0))
	*now = now.Add(time.Minute)

	assert.Equal(t, 1, b.sweep())
	assert.Equal(t, 2, b.Len())
}
