package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Morditux/luxsession"
	backend "github.com/redis/go-redis/v9"
)

// openStore builds the session store named by cfg.Backend.
func openStore(cfg config, logger *slog.Logger, metrics *luxsession.Metrics) (luxsession.Store, error) {
	opts := []luxsession.Option{
		luxsession.WithLogger(logger),
		luxsession.WithMetrics(metrics),
	}

	switch cfg.Backend {
	case "", "memory":
		return luxsession.NewMemoryStore(opts...), nil
	case "file":
		return luxsession.NewFileStore(luxsession.FileConfig{
			Dir:             cfg.Dir,
			MaxSessionBytes: cfg.MaxSessionBytes,
		}, opts...)
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "sessions.db"
		}
		return luxsession.NewSQLiteStoreWithConfig(luxsession.SQLiteConfig{
			DSN:             dsn,
			MaxOpenConns:    16,
			MaxIdleConns:    16,
			MaxSessionBytes: cfg.MaxSessionBytes,
		}, opts...)
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("backend postgres requires a dsn")
		}
		return luxsession.NewPostgreSQLStoreWithConfig(luxsession.PostgreSQLConfig{
			DSN:             cfg.DSN,
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: time.Minute,
			MaxSessionBytes: cfg.MaxSessionBytes,
		}, opts...)
	case "memcached":
		servers := cfg.Servers
		if len(servers) == 0 {
			servers = []string{"127.0.0.1:11211"}
		}
		return luxsession.NewMemcachedStoreWithConfig(luxsession.MemcachedConfig{
			Servers:         servers,
			TTL:             cfg.Session.Expiration,
			MaxSessionBytes: cfg.MaxSessionBytes,
			Timeout:         time.Second,
		}, opts...), nil
	case "redis":
		addr := cfg.RedisAddr
		if addr == "" {
			addr = "127.0.0.1:6379"
		}
		client := backend.NewClient(&backend.Options{Addr: addr})
		return luxsession.NewRedisStore(client, luxsession.RedisConfig{
			TTL:             cfg.Session.Expiration,
			MaxSessionBytes: cfg.MaxSessionBytes,
		}, opts...), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
