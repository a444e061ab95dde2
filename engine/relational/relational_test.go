package relational

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/cachekit/engine"
)

func newTestRelational(t *testing.T) (*Relational, *time.Time) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "cache.db")
	r, err := New(Config{DSN: dsn, Sweep: "off"}, nil)
	require.NoError(t, err)
	require.NoError(t, r.Connect(context.Background()))
	now := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return now }
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r, &now
}

func countRows(t *testing.T, r *Relational) int {
	t.Helper()
	c, err := r.Client()
	require.NoError(t, err)
	var n int
	require.NoError(t, c.(*sql.DB).QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&n))
	return n
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{Table: "bad name; DROP"}, nil)
	assert.True(t, errors.Is(err, engine.ErrBadRequest))

	_, err = New(Config{Driver: "oracle"}, nil)
	assert.True(t, errors.Is(err, engine.ErrBadRequest))

	_, err = New(Config{Sweep: "every now and then"}, nil)
	assert.True(t, errors.Is(err, engine.ErrBadRequest))
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "a = ? AND b = ?", sqliteDialect.rebind("a = ? AND b = ?"))
	assert.Equal(t, "a = $1 AND b = $2", postgresDialect.rebind("a = ? AND b = ?"))
}

func TestNotConnected(t *testing.T) {
	r, err := New(Config{}, nil)
	require.NoError(t, err)
	_, _, err = r.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = r.Client()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnectIdempotent(t *testing.T) {
	r, _ := newTestRelational(t)
	assert.NoError(t, r.Connect(context.Background()))
}

func TestInMemoryDatabase(t *testing.T) {
	r, err := New(Config{Sweep: "off"}, nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, r.Connect(ctx))
	defer r.Close(ctx)

	require.NoError(t, r.Set(ctx, "k", []byte("v"), 0))
	got, ok, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)
}

func TestSetGetUpsert(t *testing.T) {
	r, _ := newTestRelational(t)
	ctx := context.Background()

	_, ok, err := r.Get(ctx, "k")
	assert.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Set(ctx, "k", []byte("v1"), time.Minute))
	require.NoError(t, r.Set(ctx, "k", []byte("v2"), 0))
	got, ok, err := r.Get(ctx, "k")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v2"), got)
	assert.Equal(t, 1, countRows(t, r))

	_, ok, err = r.ExpiresAt(ctx, "k")
	assert.NoError(t, err)
	assert.False(t, ok, "set without ttl clears the previous expiry")
}

func TestEmptyValue(t *testing.T) {
	r, _ := newTestRelational(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", nil, 0))
	got, ok, err := r.Get(ctx, "k")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestExpiryOnRead(t *testing.T) {
	r, now := newTestRelational(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", []byte("v"), 10*time.Second))
	exp, ok, err := r.ExpiresAt(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, exp.Equal(now.Add(10*time.Second)))

	*now = now.Add(10 * time.Second)
	_, ok, err = r.Get(ctx, "k")
	assert.NoError(t, err)
	assert.False(t, ok)
	_, ok, _ = r.ExpiresAt(ctx, "k")
	assert.False(t, ok)
}

func TestExpire(t *testing.T) {
	r, now := newTestRelational(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, r.Expire(ctx, "k", 5*time.Second))
	exp, ok, _ := r.ExpiresAt(ctx, "k")
	assert.True(t, ok)
	assert.True(t, exp.Equal(now.Add(5*time.Second)))

	require.NoError(t, r.Expire(ctx, "k", 0))
	_, ok, _ = r.ExpiresAt(ctx, "k")
	assert.False(t, ok)

	require.NoError(t, r.Expire(ctx, "absent", time.Second))
	assert.Equal(t, 1, countRows(t, r))
}

func TestExpireSkipsExpiredRows(t *testing.T) {
	r, now := newTestRelational(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", []byte("v"), time.Second))
	*now = now.Add(2 * time.Second)
	require.NoError(t, r.Expire(ctx, "k", time.Hour))
	_, ok, _ := r.Get(ctx, "k")
	assert.False(t, ok, "an expired entry is not revived")
}

func TestDel(t *testing.T) {
	r, _ := newTestRelational(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, r.Del(ctx, "k"))
	require.NoError(t, r.Del(ctx, "k"))
	assert.Equal(t, 0, countRows(t, r))
}

func TestFlushEscapesLikePattern(t *testing.T) {
	r, _ := newTestRelational(t)
	ctx := context.Background()

	for _, k := range []string{"50%off", "50xoff", "a_b", "axb"} {
		require.NoError(t, r.Set(ctx, k, []byte(k), 0))
	}
	require.NoError(t, r.Flush(ctx, "50%"))
	require.NoError(t, r.Flush(ctx, "a_"))

	_, ok, _ := r.Get(ctx, "50%off")
	assert.False(t, ok)
	_, ok, _ = r.Get(ctx, "50xoff")
	assert.True(t, ok)
	_, ok, _ = r.Get(ctx, "a_b")
	assert.False(t, ok)
	_, ok, _ = r.Get(ctx, "axb")
	assert.True(t, ok)

	require.NoError(t, r.Flush(ctx, ""))
	assert.Equal(t, 0, countRows(t, r))
}

func TestSweep(t *testing.T) {
	r, now := newTestRelational(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "short", []byte("v"), time.Second))
	require.NoError(t, r.Set(ctx, "long", []byte("v"), time.Hour))
	require.NoError(t, r.Set(ctx, "forever", []byte("v"), 0))

	*now = now.Add(time.Minute)
	n, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 2, countRows(t, r))
}

func TestBorrowedDBStaysOpen(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "shared.db"))
	require.NoError(t, err)
	defer db.Close()

	r, err := New(Config{DB: db, Sweep: "off"}, nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, r.Connect(ctx))
	require.NoError(t, r.Close(ctx))
	require.NoError(t, r.Close(ctx))
	assert.NoError(t, db.Ping())
}

func TestScheduledSweepStops(t *testing.T) {
	r, err := New(Config{DSN: filepath.Join(t.TempDir(), "c.db"), Sweep: "@every 1s"}, nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, r.Connect(ctx))
	assert.Len(t, r.cron.Entries(), 1)
	assert.NoError(t, r.Close(ctx))
}

func TestConnectReleasesDBWhenScheduleFails(t *testing.T) {
	r, err := New(Config{DSN: filepath.Join(t.TempDir(), "c.db"), Sweep: "off"}, nil)
	require.NoError(t, err)
	r.sweep = "not a schedule"

	ctx := context.Background()
	assert.Error(t, r.Connect(ctx))
	assert.Nil(t, r.db)
	assert.False(t, r.ownsDB)
	assert.Nil(t, r.cron)

	_, _, err = r.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotConnected)

	r.sweep = sweepOff
	require.NoError(t, r.Connect(ctx))
	assert.NoError(t, r.Close(ctx))
}
