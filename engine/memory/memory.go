package memory

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/unkn0wn-root/cachekit/engine"
	"github.com/unkn0wn-root/cachekit/log"
)

const defaultSweep = time.Second

type Config struct {
	// SweepInterval is how often expired entries are removed. 0 => 1s, < 0 disables the sweep.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// Memory keeps entries in a process-local map. Payloads are copied on the way
// in and on the way out, so callers never share a slice with the map.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]engine.Entry
	log     log.Logger
	now     func() time.Time

	ticker    *time.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ engine.Engine = (*Memory)(nil)

func New(cfg Config, logger log.Logger) *Memory {
	m := &Memory{
		entries: make(map[string]engine.Entry),
		log:     log.OrNop(logger),
		now:     time.Now,
	}
	interval := cfg.SweepInterval
	if interval == 0 {
		interval = defaultSweep
	}
	if interval > 0 {
		m.ticker = time.NewTicker(interval)
		m.stopCh = make(chan struct{})
		m.wg.Add(1)
		go m.sweepLoop()
	}
	return m
}

func (m *Memory) Connect(context.Context) error { return nil }

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || e.Expired(m.now()) {
		return nil, false, nil
	}
	return bytes.Clone(e.Payload), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := engine.Entry{Payload: bytes.Clone(value), ExpiresAt: engine.Deadline(m.now(), ttl)}
	if e.Payload == nil {
		e.Payload = []byte{}
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Del(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.Expired(now) {
		return nil
	}
	e.ExpiresAt = engine.Deadline(now, ttl)
	m.entries[key] = e
	return nil
}

func (m *Memory) ExpiresAt(_ context.Context, key string) (time.Time, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || e.ExpiresAt.IsZero() || e.Expired(m.now()) {
		return time.Time{}, false, nil
	}
	return e.ExpiresAt, true, nil
}

func (m *Memory) Flush(_ context.Context, needle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if needle == "" {
		clear(m.entries)
		return nil
	}
	for k := range m.entries {
		if strings.HasPrefix(k, needle) {
			delete(m.entries, k)
		}
	}
	return nil
}

func (m *Memory) Client() (any, error) {
	return nil, engine.NotImplemented("memory engine has no client")
}

func (m *Memory) Close(context.Context) error {
	m.closeOnce.Do(func() {
		if m.stopCh != nil {
			close(m.stopCh)
			m.ticker.Stop()
			m.wg.Wait()
		}
	})
	return nil
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) sweepLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ticker.C:
			m.sweep()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Memory) sweep() int {
	now := m.now()
	removed := 0
	m.mu.Lock()
	for k, e := range m.entries {
		if e.Expired(now) {
			delete(m.entries, k)
			removed++
		}
	}
	m.mu.Unlock()
	if removed > 0 {
		m.log.Debug("memory sweep removed expired entries", log.Fields{"removed": removed})
	}
	return removed
}
