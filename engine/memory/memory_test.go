package memory

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/cachekit/engine"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func newManual(t *testing.T) (*Memory, *fakeClock) {
	t.Helper()
	m := New(Config{SweepInterval: -1}, nil)
	clk := newClock()
	m.now = clk.now
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m, clk
}

func TestSetGetRoundTripCopies(t *testing.T) {
	ctx := context.Background()
	m, _ := newManual(t)

	in := []byte("value")
	require.NoError(t, m.Set(ctx, "k", in, 0))

	// mutating the caller's slice must not reach the cache
	in[0] = 'X'
	got, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("value"), got)

	// nor must mutating a returned slice
	got[0] = 'Y'
	again, _, _ := m.Get(ctx, "k")
	assert.Equal(t, []byte("value"), again)
}

func TestGetMissingAndExpired(t *testing.T) {
	ctx := context.Background()
	m, clk := newManual(t)

	_, ok, err := m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "a", []byte("1"), time.Second))
	_, ok, _ = m.Get(ctx, "a")
	assert.True(t, ok)

	clk.advance(time.Second)
	_, ok, err = m.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok, "expired entry must not be returned before the sweep")
	assert.Equal(t, 1, m.Len())
}

func TestSetWithoutTTLClearsExpiry(t *testing.T) {
	ctx := context.Background()
	m, clk := newManual(t)

	require.NoError(t, m.Set(ctx, "k", []byte("v1"), time.Second))
	require.NoError(t, m.Set(ctx, "k", []byte("v2"), 0))
	clk.advance(time.Hour)

	got, ok, _ := m.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, []byte("v2"), got)

	_, ok, _ = m.ExpiresAt(ctx, "k")
	assert.False(t, ok, "persistent entry has no timestamp")
}

func TestDelIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m, _ := newManual(t)

	assert.NoError(t, m.Del(ctx, "nonexistent"))
	require.NoError(t, m.Set(ctx, "k", []byte("v"), 0))
	assert.NoError(t, m.Del(ctx, "k"))
	assert.NoError(t, m.Del(ctx, "k"))
	_, ok, _ := m.Get(ctx, "k")
	assert.False(t, ok)
}

func TestExpireUpdatesTTLOnly(t *testing.T) {
	ctx := context.Background()
	m, clk := newManual(t)

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Second))
	require.NoError(t, m.Expire(ctx, "k", time.Minute))

	clk.advance(30 * time.Second)
	got, ok, _ := m.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	exp, ok, _ := m.ExpiresAt(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, clk.t.Add(30*time.Second), exp)

	// Expire on a missing key is a no-op
	require.NoError(t, m.Expire(ctx, "missing", time.Minute))
	_, ok, _ = m.Get(ctx, "missing")
	assert.False(t, ok)

	// ttl <= 0 makes it persistent
	require.NoError(t, m.Expire(ctx, "k", 0))
	clk.advance(24 * time.Hour)
	_, ok, _ = m.Get(ctx, "k")
	assert.True(t, ok)
}

func TestExpiresAtSemantics(t *testing.T) {
	ctx := context.Background()
	m, clk := newManual(t)

	_, ok, err := m.ExpiresAt(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "k", []byte("v"), 10*time.Second))
	exp, ok, _ := m.ExpiresAt(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, clk.t.Add(10*time.Second), exp)

	clk.advance(11 * time.Second)
	_, ok, _ = m.ExpiresAt(ctx, "k")
	assert.False(t, ok)
}

func TestFlushByNeedle(t *testing.T) {
	ctx := context.Background()
	m, _ := newManual(t)

	require.NoError(t, m.Set(ctx, "p-1", []byte("x"), 0))
	require.NoError(t, m.Set(ctx, "p-2", []byte("y"), 0))
	require.NoError(t, m.Set(ctx, "q-1", []byte("z"), 0))

	require.NoError(t, m.Flush(ctx, "p"))

	_, ok, _ := m.Get(ctx, "p-1")
	assert.False(t, ok)
	_, ok, _ = m.Get(ctx, "p-2")
	assert.False(t, ok)
	got, ok, _ := m.Get(ctx, "q-1")
	assert.True(t, ok)
	assert.Equal(t, []byte("z"), got)

	require.NoError(t, m.Flush(ctx, ""))
	assert.Equal(t, 0, m.Len())
}

func TestSweepRemovesExpired(t *testing.T) {
	ctx := context.Background()
	m, clk := newManual(t)

	require.NoError(t, m.Set(ctx, "short", []byte("1"), time.Second))
	require.NoError(t, m.Set(ctx, "long", []byte("2"), time.Hour))
	require.NoError(t, m.Set(ctx, "forever", []byte("3"), 0))

	clk.advance(2 * time.Second)
	assert.Equal(t, 1, m.sweep())
	assert.Equal(t, 2, m.Len())
}

func TestBackgroundSweep(t *testing.T) {
	ctx := context.Background()
	m := New(Config{SweepInterval: 20 * time.Millisecond}, nil)
	defer m.Close(ctx)

	require.NoError(t, m.Set(ctx, "k", []byte("v"), 30*time.Millisecond))
	assert.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestClientNotImplemented(t *testing.T) {
	m, _ := newManual(t)
	_, err := m.Client()
	assert.True(t, errors.Is(err, engine.ErrNotImplemented))
}

func TestCloseIsIdempotent(t *testing.T) {
	m := New(Config{}, nil)
	assert.NoError(t, m.Close(context.Background()))
	assert.NoError(t, m.Close(context.Background()))
}
