// Package config loads a cachekit.Config from YAML, environment and defaults.
package config

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/unkn0wn-root/cachekit"
)

// EnvPrefix prefixes environment overrides, e.g. CACHEKIT_REMOTE_ADDRS.
const EnvPrefix = "CACHEKIT"

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine", cachekit.EngineMemory)
	v.SetDefault("storage_key", "")
	v.SetDefault("bypass", false)

	v.SetDefault("memory.sweep_interval", "1s")

	v.SetDefault("relational.driver", "sqlite")
	v.SetDefault("relational.dsn", "")
	v.SetDefault("relational.table", "cache_entries")
	v.SetDefault("relational.sweep", "@every 60s")
	v.SetDefault("relational.query_timeout", "5s")

	v.SetDefault("remote.addrs", []string{"localhost:6379"})
	v.SetDefault("remote.username", "")
	v.SetDefault("remote.password", "")
	v.SetDefault("remote.db", 0)
	v.SetDefault("remote.key_prefix", "cache:")
	v.SetDefault("remote.query_timeout", "5s")

	v.SetDefault("bigcache.shards", 1024)
	v.SetDefault("bigcache.sweep_interval", "1s")
	v.SetDefault("bigcache.max_entry_size", 0)
	v.SetDefault("bigcache.hard_max_cache_size_mb", 0)

	v.SetDefault("breaker.enabled", false)
	v.SetDefault("breaker.max_requests", 1)
	v.SetDefault("breaker.interval", "0s")
	v.SetDefault("breaker.timeout", "30s")
	v.SetDefault("breaker.consecutive_failures", 5)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads path when given (it must exist); otherwise it looks for
// cachekit.yaml in ./config and . and carries on with defaults if there is
// none. Environment variables override both.
func Load(path string) (cachekit.Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("cachekit")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return cachekit.Config{}, errors.Wrap(err, "config: read")
		}
	}

	var cfg cachekit.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cachekit.Config{}, errors.Wrap(err, "config: decode")
	}
	return cfg, nil
}

// NewLogger builds a logrus logger from the log section. Unknown levels fall
// back to info.
func NewLogger(cfg cachekit.LogConfig) *logrus.Logger {
	l := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if cfg.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
			FullTimestamp:   true,
		})
	}
	l.SetOutput(os.Stderr)
	return l
}
