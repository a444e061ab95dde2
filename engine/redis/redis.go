package redis

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/cachekit/engine"
	"github.com/unkn0wn-root/cachekit/internal/util"
	"github.com/unkn0wn-root/cachekit/internal/wire"
	"github.com/unkn0wn-root/cachekit/log"
)

var ErrNilClient = errors.New("redis engine: no client and no addrs")

const (
	defaultKeyPrefix    = "cache:"
	defaultQueryTimeout = 5 * time.Second
	scanCount           = 500
	expireRetries       = 3
)

type Config struct {
	// Client, when set, is used instead of dialing Addrs.
	Client goredis.UniversalClient `mapstructure:"-"`
	// CloseClient: set true only if this engine exclusively owns Client.
	CloseClient bool `mapstructure:"-"`

	Addrs        []string      `mapstructure:"addrs"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	KeyPrefix    string        `mapstructure:"key_prefix"`    // "" => "cache:"
	QueryTimeout time.Duration `mapstructure:"query_timeout"` // 0 => 5s
}

// Redis stores each entry as one wire envelope (expiry + payload). A native
// TTL is also set so Redis can reclaim memory, but reads always decide
// expiry from the envelope.
type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
	prefix      string
	timeout     time.Duration
	log         log.Logger
	now         func() time.Time

	connMu    sync.Mutex
	connected bool
}

var _ engine.Engine = (*Redis)(nil)

func New(cfg Config, logger log.Logger) (*Redis, error) {
	r := &Redis{
		rdb:         cfg.Client,
		closeClient: cfg.CloseClient,
		prefix:      cfg.KeyPrefix,
		timeout:     cfg.QueryTimeout,
		log:         log.OrNop(logger),
		now:         time.Now,
	}
	if r.rdb == nil {
		if len(cfg.Addrs) == 0 {
			return nil, ErrNilClient
		}
		r.rdb = goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs:    cfg.Addrs,
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		r.closeClient = true
	}
	if r.prefix == "" {
		r.prefix = defaultKeyPrefix
	}
	if r.timeout == 0 {
		r.timeout = defaultQueryTimeout
	}
	return r, nil
}

func (r *Redis) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if r.timeout < 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, r.timeout)
}

func (r *Redis) key(k string) string { return r.prefix + k }

// nativeTTL is the Redis-side expiration for an entry expiring at exp. Zero
// means no expiration.
func nativeTTL(now, exp time.Time) time.Duration {
	if exp.IsZero() {
		return 0
	}
	if d := exp.Sub(now); d > time.Millisecond {
		return d
	}
	return time.Millisecond
}

func (r *Redis) Connect(ctx context.Context) error {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.connected {
		return nil
	}
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	if err := r.rdb.Ping(qctx).Err(); err != nil {
		return err
	}
	r.connected = true
	return nil
}

// read fetches and decodes key. A corrupt envelope is deleted and reported
// as a miss.
func (r *Redis) read(ctx context.Context, k string) (engine.Entry, bool, error) {
	b, err := r.rdb.Get(ctx, k).Bytes()
	if err == goredis.Nil {
		return engine.Entry{}, false, nil
	}
	if err != nil {
		return engine.Entry{}, false, err
	}
	exp, payload, err := wire.DecodeEntry(b)
	if err != nil {
		r.log.Warn("redis engine dropped corrupt entry", log.Fields{"key": k})
		_ = r.rdb.Del(ctx, k).Err()
		return engine.Entry{}, false, nil
	}
	e := engine.Entry{Payload: payload, ExpiresAt: exp}
	if e.Expired(r.now()) {
		return engine.Entry{}, false, nil
	}
	return e, true, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	e, ok, err := r.read(qctx, r.key(key))
	if err != nil || !ok {
		return nil, false, err
	}
	return e.Payload, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	k := r.key(key)
	now := r.now()
	exp := engine.Deadline(now, ttl)
	b := wire.EncodeEntry(exp, value)
	_, err := r.rdb.TxPipelined(qctx, func(p goredis.Pipeliner) error {
		p.Del(qctx, k)
		p.Set(qctx, k, b, nativeTTL(now, exp))
		return nil
	})
	return err
}

func (r *Redis) Del(ctx context.Context, key string) error {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	return r.rdb.Del(qctx, r.key(key)).Err()
}

// Expire rewrites the envelope with a new expiry inside a WATCH transaction,
// retrying when a concurrent writer touches the key.
func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	k := r.key(key)

	txf := func(tx *goredis.Tx) error {
		b, err := tx.Get(qctx, k).Bytes()
		if err == goredis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		exp, payload, err := wire.DecodeEntry(b)
		if err != nil {
			return nil // corrupt: the read path self-heals it
		}
		now := r.now()
		if (engine.Entry{ExpiresAt: exp}).Expired(now) {
			return nil
		}
		next := engine.Deadline(now, ttl)
		nb := wire.EncodeEntry(next, payload)
		_, err = tx.TxPipelined(qctx, func(p goredis.Pipeliner) error {
			p.Set(qctx, k, nb, nativeTTL(now, next))
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < expireRetries; i++ {
		err = r.rdb.Watch(qctx, txf, k)
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
	}
	return err
}

func (r *Redis) ExpiresAt(ctx context.Context, key string) (time.Time, bool, error) {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	e, ok, err := r.read(qctx, r.key(key))
	if err != nil || !ok || e.ExpiresAt.IsZero() {
		return time.Time{}, false, err
	}
	return e.ExpiresAt, true, nil
}

// Flush scans the engine's key prefix (plus needle) and deletes matches. On a
// cluster client every master is scanned.
func (r *Redis) Flush(ctx context.Context, needle string) error {
	pattern := util.GlobEscape(r.prefix+needle) + "*"
	if cc, ok := r.rdb.(*goredis.ClusterClient); ok {
		return cc.ForEachMaster(ctx, func(ctx context.Context, node *goredis.Client) error {
			return r.flushNode(ctx, node, pattern)
		})
	}
	return r.flushNode(ctx, r.rdb, pattern)
}

func (r *Redis) flushNode(ctx context.Context, c goredis.Cmdable, pattern string) error {
	removed := 0
	batch := make([]string, 0, scanCount)
	drain := func() error {
		if len(batch) == 0 {
			return nil
		}
		// single-key DELs keep this valid across cluster slots
		_, err := c.Pipelined(ctx, func(p goredis.Pipeliner) error {
			for _, k := range batch {
				p.Del(ctx, k)
			}
			return nil
		})
		removed += len(batch)
		batch = batch[:0]
		return err
	}

	iter := c.Scan(ctx, 0, pattern, scanCount).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanCount {
			if err := drain(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if err := drain(); err != nil {
		return err
	}
	r.log.Debug("redis engine flushed keys", log.Fields{"pattern": pattern, "removed": removed})
	return nil
}

func (r *Redis) Client() (any, error) { return r.rdb, nil }

// Close releases the underlying redis client only when this engine owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (r *Redis) Close(context.Context) error {
	if r.closeClient {
		if err := r.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
