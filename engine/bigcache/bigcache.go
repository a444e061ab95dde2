package bigcache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	bc "github.com/allegro/bigcache/v3"
	"github.com/cockroachdb/errors"

	"github.com/unkn0wn-root/cachekit/engine"
	"github.com/unkn0wn-root/cachekit/internal/wire"
	"github.com/unkn0wn-root/cachekit/log"
)

// entries never age out by insertion time; expiry is carried per entry
const lifeWindow = 10 * 365 * 24 * time.Hour

const defaultSweep = time.Second

type Config struct {
	Shards             int           `mapstructure:"shards"`         // power of two; 0 => 1024
	SweepInterval      time.Duration `mapstructure:"sweep_interval"` // 0 => 1s, <0 disables
	MaxEntrySize       int           `mapstructure:"max_entry_size"`
	HardMaxCacheSizeMB int           `mapstructure:"hard_max_cache_size_mb"` // 0 = unlimited
}

// BigCache is an in-process engine backed by allegro/bigcache. Entries are
// stored as wire envelopes so expiry works per entry.
type BigCache struct {
	c   *bc.BigCache
	log log.Logger
	now func() time.Time

	// serializes mutations so Expire cannot resurrect a deleted or replaced entry
	mu sync.Mutex

	ticker    *time.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ engine.Engine = (*BigCache)(nil)

type printfLogger struct{ l log.Logger }

func (p printfLogger) Printf(format string, v ...any) {
	p.l.Warn(fmt.Sprintf(format, v...), nil)
}

func New(ctx context.Context, cfg Config, logger log.Logger) (*BigCache, error) {
	logger = log.OrNop(logger)
	conf := bc.DefaultConfig(lifeWindow)
	conf.CleanWindow = 0
	conf.MaxEntriesInWindow = 10_000
	conf.Logger = printfLogger{logger}
	if cfg.Shards > 0 {
		if cfg.Shards&(cfg.Shards-1) != 0 {
			return nil, engine.BadRequest("bigcache shards must be a power of two, got %d", cfg.Shards)
		}
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(ctx, conf)
	if err != nil {
		return nil, errors.Wrap(err, "bigcache engine")
	}

	b := &BigCache{c: c, log: logger, now: time.Now}
	interval := cfg.SweepInterval
	if interval == 0 {
		interval = defaultSweep
	}
	if interval > 0 {
		b.ticker = time.NewTicker(interval)
		b.stopCh = make(chan struct{})
		b.wg.Add(1)
		go b.sweepLoop()
	}
	return b, nil
}

func (b *BigCache) sweepLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ticker.C:
			b.sweep()
		case <-b.stopCh:
			return
		}
	}
}

// deleteMatching removes every entry for which match returns true. Candidates
// are collected without the lock and matched again under it, so a write that
// lands in between is kept.
func (b *BigCache) deleteMatching(match func(key string, data []byte) bool) int {
	var candidates []string
	it := b.c.Iterator()
	for it.SetNext() {
		info, err := it.Value()
		if err != nil {
			continue
		}
		if match(info.Key(), info.Value()) {
			candidates = append(candidates, info.Key())
		}
	}
	if len(candidates) == 0 {
		return 0
	}

	removed := 0
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range candidates {
		data, err := b.c.Get(k)
		if err != nil || !match(k, data) {
			continue
		}
		if b.c.Delete(k) == nil {
			removed++
		}
	}
	return removed
}

func (b *BigCache) sweep() int {
	now := b.now()
	n := b.deleteMatching(func(_ string, data []byte) bool {
		exp, _, err := wire.DecodeEntry(data)
		return err != nil || (engine.Entry{ExpiresAt: exp}).Expired(now)
	})
	if n > 0 {
		b.log.Debug("bigcache engine swept expired entries", log.Fields{"removed": n})
	}
	return n
}

func (b *BigCache) Connect(context.Context) error { return nil }

func (b *BigCache) read(key string) (engine.Entry, bool, error) {
	data, err := b.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return engine.Entry{}, false, nil
	}
	if err != nil {
		return engine.Entry{}, false, err
	}
	exp, payload, err := wire.DecodeEntry(data)
	if err != nil {
		b.log.Warn("bigcache engine dropped corrupt entry", log.Fields{"key": key})
		_ = b.c.Delete(key)
		return engine.Entry{}, false, nil
	}
	e := engine.Entry{Payload: payload, ExpiresAt: exp}
	if e.Expired(b.now()) {
		return engine.Entry{}, false, nil
	}
	return e, true, nil
}

func (b *BigCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok, err := b.read(key)
	if err != nil || !ok {
		return nil, false, err
	}
	return e.Payload, true, nil
}

func (b *BigCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	data := wire.EncodeEntry(engine.Deadline(b.now(), ttl), value)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.c.Set(key, data)
}

func (b *BigCache) Del(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (b *BigCache) Expire(_ context.Context, key string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok, err := b.read(key)
	if err != nil || !ok {
		return err
	}
	return b.c.Set(key, wire.EncodeEntry(engine.Deadline(b.now(), ttl), e.Payload))
}

func (b *BigCache) ExpiresAt(_ context.Context, key string) (time.Time, bool, error) {
	e, ok, err := b.read(key)
	if err != nil || !ok || e.ExpiresAt.IsZero() {
		return time.Time{}, false, err
	}
	return e.ExpiresAt, true, nil
}

func (b *BigCache) Flush(_ context.Context, needle string) error {
	if needle == "" {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.c.Reset()
	}
	b.deleteMatching(func(key string, _ []byte) bool { return strings.HasPrefix(key, needle) })
	return nil
}

func (b *BigCache) Client() (any, error) { return b.c, nil }

// Len reports stored entries, including expired ones not yet swept.
func (b *BigCache) Len() int { return b.c.Len() }

func (b *BigCache) Close(context.Context) error {
	var err error
	b.closeOnce.Do(func() {
		if b.stopCh != nil {
			close(b.stopCh)
			b.ticker.Stop()
			b.wg.Wait()
		}
		err = b.c.Close()
	})
	return err
}
