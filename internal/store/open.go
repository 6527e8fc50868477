package store

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/printworks/jobtrack/internal/config"
)

// Open builds the Store selected by cfg.Driver. The redis client is only
// used by the redis driver.
func Open(cfg config.StorageConfig, redisClient *redis.Client) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("store: redis driver needs a redis client")
		}
		return NewRedisStore(redisClient), nil
	case "sqlite", "mysql":
		db, err := OpenSQL(cfg.Driver, SQLDSN(cfg))
		if err != nil {
			return nil, err
		}
		return NewSQLStore(db), nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// SQLDSN returns the DSN for the SQL drivers; sqlite falls back to the
// configured file path.
func SQLDSN(cfg config.StorageConfig) string {
	if cfg.DSN == "" && cfg.Driver == "sqlite" {
		return cfg.SQLitePath
	}
	return cfg.DSN
}
