// Package breaker wraps an engine with a circuit breaker so a failing
// backend is short-circuited instead of being hit on every call.
package breaker

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sony/gobreaker"

	"github.com/unkn0wn-root/cachekit/engine"
	"github.com/unkn0wn-root/cachekit/log"
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = gobreaker.ErrOpenState

type Config struct {
	Enabled             bool          `mapstructure:"enabled"`
	MaxRequests         uint32        `mapstructure:"max_requests"` // half-open probes; 0 => 1
	Interval            time.Duration `mapstructure:"interval"`     // closed-state count reset; 0 => never
	Timeout             time.Duration `mapstructure:"timeout"`      // open duration; 0 => 60s
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
}

type Breaker struct {
	next engine.Engine
	cb   *gobreaker.CircuitBreaker
}

var _ engine.Engine = (*Breaker)(nil)

// Wrap decorates next. Connect, Client and Close bypass the breaker.
func Wrap(name string, next engine.Engine, cfg Config, logger log.Logger) *Breaker {
	logger = log.OrNop(logger)
	trip := cfg.ConsecutiveFailures
	if trip == 0 {
		trip = 5
	}
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= trip },
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("engine breaker state changed", log.Fields{
				"engine": name, "from": from.String(), "to": to.String(),
			})
		},
		// the caller giving up says nothing about backend health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

// Unwrap returns the decorated engine.
func (b *Breaker) Unwrap() engine.Engine { return b.next }

func (b *Breaker) State() gobreaker.State { return b.cb.State() }

func (b *Breaker) run(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) { return nil, fn() })
	return err
}

func (b *Breaker) Connect(ctx context.Context) error { return b.next.Connect(ctx) }

func (b *Breaker) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		v  []byte
		ok bool
	)
	err := b.run(func() error {
		var err error
		v, ok, err = b.next.Get(ctx, key)
		return err
	})
	return v, ok, err
}

func (b *Breaker) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.run(func() error { return b.next.Set(ctx, key, value, ttl) })
}

func (b *Breaker) Del(ctx context.Context, key string) error {
	return b.run(func() error { return b.next.Del(ctx, key) })
}

func (b *Breaker) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return b.run(func() error { return b.next.Expire(ctx, key, ttl) })
}

func (b *Breaker) ExpiresAt(ctx context.Context, key string) (time.Time, bool, error) {
	var (
		t  time.Time
		ok bool
	)
	err := b.run(func() error {
		var err error
		t, ok, err = b.next.ExpiresAt(ctx, key)
		return err
	})
	return t, ok, err
}

func (b *Breaker) Flush(ctx context.Context, needle string) error {
	return b.run(func() error { return b.next.Flush(ctx, needle) })
}

func (b *Breaker) Client() (any, error)            { return b.next.Client() }
func (b *Breaker) Close(ctx context.Context) error { return b.next.Close(ctx) }
