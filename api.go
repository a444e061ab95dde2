package cachekit

import (
	"context"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/cachekit/codec"
	"github.com/unkn0wn-root/cachekit/engine"
)

// Options tune a Service. Only Config is consulted when Engine is nil;
// everything else has a default.
type Options[V any] struct {
	Config Config

	// Engine, when set, is used as-is and shared: the service connects it but
	// never closes it.
	Engine   engine.Engine
	Codec    codec.Codec[V] // nil => codec.JSON[V]
	Logger   Logger         // nil => NopLogger
	Hooks    Hooks          // nil => NopHooks
	Registry *Registry      // nil => DefaultRegistry()
}

// New resolves and connects the engine. Any failure here is fatal for the
// service.
func New[V any](ctx context.Context, opts Options[V]) (*Service[V], error) {
	s := &Service[V]{
		prefix: opts.Config.StorageKey,
		bypass: opts.Config.Bypass,
		codec:  opts.Codec,
		log:    opts.Logger,
		hooks:  opts.Hooks,
		group:  new(singleflight.Group),
	}
	if s.codec == nil {
		s.codec = codec.JSON[V]{}
	}
	if s.log == nil {
		s.log = NopLogger{}
	}
	if s.hooks == nil {
		s.hooks = NopHooks{}
	}

	s.eng = opts.Engine
	s.engineName = "custom"
	if s.eng == nil {
		reg := opts.Registry
		if reg == nil {
			reg = defaultRegistry
		}
		s.engineName = coalesce(opts.Config.Engine, EngineMemory)
		e, err := reg.Engine(ctx, opts.Config, s.engineName, s.log)
		if err != nil {
			return nil, err
		}
		s.eng, s.ownsEngine = e, true
	}

	if err := s.eng.Connect(ctx); err != nil {
		if s.ownsEngine {
			_ = s.eng.Close(ctx)
		}
		return nil, errors.Wrapf(err, "cachekit: connect %s engine", s.engineName)
	}
	s.log.Info("cache service ready", Fields{
		"engine": s.engineName, "storage_key": s.prefix, "bypass": s.bypass,
	})
	return s, nil
}
