package cachekit

import (
	"context"
	"regexp"
	"sort"
	"sync"

	"github.com/unkn0wn-root/cachekit/engine"
	"github.com/unkn0wn-root/cachekit/engine/bigcache"
	"github.com/unkn0wn-root/cachekit/engine/breaker"
	"github.com/unkn0wn-root/cachekit/engine/memory"
	"github.com/unkn0wn-root/cachekit/engine/none"
	"github.com/unkn0wn-root/cachekit/engine/redis"
	"github.com/unkn0wn-root/cachekit/engine/relational"
)

const (
	EngineMemory     = "memory"
	EngineRelational = "relational"
	EngineRemote     = "remote"
	EngineNone       = "none"
	EngineBigCache   = "bigcache"
)

var engineNameRe = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Factory builds an unconnected engine from cfg.
type Factory func(ctx context.Context, cfg Config, logger Logger) (engine.Engine, error)

// Registry maps engine names to factories. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in engines.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.factories[EngineMemory] = func(_ context.Context, cfg Config, l Logger) (engine.Engine, error) {
		return memory.New(cfg.Memory, l), nil
	}
	r.factories[EngineNone] = func(context.Context, Config, Logger) (engine.Engine, error) {
		return none.New(), nil
	}
	r.factories[EngineRelational] = func(_ context.Context, cfg Config, l Logger) (engine.Engine, error) {
		e, err := relational.New(cfg.Relational, l)
		if err != nil {
			return nil, err
		}
		return withBreaker(EngineRelational, e, cfg, l), nil
	}
	r.factories[EngineRemote] = func(_ context.Context, cfg Config, l Logger) (engine.Engine, error) {
		e, err := redis.New(cfg.Remote, l)
		if err != nil {
			return nil, err
		}
		return withBreaker(EngineRemote, e, cfg, l), nil
	}
	r.factories[EngineBigCache] = func(ctx context.Context, cfg Config, l Logger) (engine.Engine, error) {
		e, err := bigcache.New(ctx, cfg.BigCache, l)
		if err != nil {
			return nil, err
		}
		return withBreaker(EngineBigCache, e, cfg, l), nil
	}
	return r
}

func withBreaker(name string, e engine.Engine, cfg Config, l Logger) engine.Engine {
	if !cfg.Breaker.Enabled {
		return e
	}
	return breaker.Wrap(name, e, cfg.Breaker, l)
}

func checkName(name string) error {
	if !engineNameRe.MatchString(name) {
		return &NameError{Name: name, Err: engine.BadRequest("engine name must be alphanumeric")}
	}
	return nil
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) error {
	if err := checkName(name); err != nil {
		return err
	}
	if f == nil {
		return &NameError{Name: name, Err: engine.BadRequest("nil factory")}
	}
	r.mu.Lock()
	r.factories[name] = f
	r.mu.Unlock()
	return nil
}

// Engine builds the named engine. The name is validated before lookup, so a
// malformed name is always ErrBadRequest even if nothing is registered.
func (r *Registry) Engine(ctx context.Context, cfg Config, name string, logger Logger) (engine.Engine, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &NameError{Name: name, Err: engine.NotImplemented("no such engine")}
	}
	if logger == nil {
		logger = NopLogger{}
	}
	e, err := f(ctx, cfg, logger)
	if err != nil {
		return nil, &NameError{Name: name, Err: err}
	}
	return e, nil
}

// Names lists registered engines in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

var defaultRegistry = NewRegistry()

// DefaultRegistry is the registry used by GetEngine, Register and New.
func DefaultRegistry() *Registry { return defaultRegistry }

func Register(name string, f Factory) error { return defaultRegistry.Register(name, f) }

// GetEngine builds the named engine from the default registry.
func GetEngine(ctx context.Context, cfg Config, name string) (engine.Engine, error) {
	return defaultRegistry.Engine(ctx, cfg, name, nil)
}
