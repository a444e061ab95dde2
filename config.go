package cachekit

import (
	"github.com/unkn0wn-root/cachekit/engine/bigcache"
	"github.com/unkn0wn-root/cachekit/engine/breaker"
	"github.com/unkn0wn-root/cachekit/engine/memory"
	"github.com/unkn0wn-root/cachekit/engine/redis"
	"github.com/unkn0wn-root/cachekit/engine/relational"
)

// Config selects and configures an engine. Each engine reads only its own
// section.
type Config struct {
	Engine     string `mapstructure:"engine"`      // memory | relational | remote | none | bigcache
	StorageKey string `mapstructure:"storage_key"` // namespace prefix; "" => none
	Bypass     bool   `mapstructure:"bypass"`      // reads always miss

	Memory     memory.Config     `mapstructure:"memory"`
	Relational relational.Config `mapstructure:"relational"`
	Remote     redis.Config      `mapstructure:"remote"`
	BigCache   bigcache.Config   `mapstructure:"bigcache"`
	Breaker    breaker.Config    `mapstructure:"breaker"`

	Log LogConfig `mapstructure:"log"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug | info | warn | error
	Format string `mapstructure:"format"` // text | json
}
