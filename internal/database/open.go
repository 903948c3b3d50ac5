package database

import (
	"fmt"

	"github.com/npezzotti/cryptoforum/internal/config"
)

// Open returns the repository selected by the storage configuration.
func Open(cfg config.StorageConfig) (StateRepository, error) {
	var (
		repo StateRepository
		err  error
	)

	switch cfg.Driver {
	case config.StorageMemory:
		return NewMemoryRepository(), nil
	case config.StorageSQLite:
		repo, err = NewSQLiteRepository(cfg.SQLitePath)
	case config.StoragePostgres:
		repo, err = NewPgRepository(cfg.PostgresDSN)
	case config.StorageRedis:
		repo, err = NewRedisRepository(RedisOptions{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Driver, err)
	}

	return repo, nil
}
