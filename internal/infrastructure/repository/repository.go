// Package repository selects the visitor state backend from configuration.
package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mrops-br/shopfront/internal/domain"
	"github.com/mrops-br/shopfront/internal/infrastructure/config"
	"github.com/mrops-br/shopfront/internal/infrastructure/repository/memory"
	"github.com/mrops-br/shopfront/internal/infrastructure/repository/redis"
	"github.com/mrops-br/shopfront/internal/infrastructure/repository/sqlite"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// CloseFunc releases the resources held by a store
type CloseFunc func() error

// Open returns the KV store named by cfg.Driver
func Open(ctx context.Context, cfg *config.StorageConfig, tracer trace.Tracer, logger *slog.Logger) (domain.KVStore, CloseFunc, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.NewKVStore(tracer, logger), func() error { return nil }, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.Path, tracer, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case config.DriverRedis:
		store, err := redis.Connect(ctx, &goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, tracer, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
