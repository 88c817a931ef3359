package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mrops-br/shopfront/internal/domain"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const keyPrefix = "shopfront:"

// KVStore is a Redis-backed implementation of domain.KVStore, for running
// several storefront replicas against shared visitor state. Keys never
// expire.
type KVStore struct {
	client *goredis.Client
	tracer trace.Tracer
	logger *slog.Logger
}

// NewKVStore wraps an existing client
func NewKVStore(client *goredis.Client, tracer trace.Tracer, logger *slog.Logger) *KVStore {
	return &KVStore{client: client, tracer: tracer, logger: logger}
}

// Connect creates a client and verifies the server is reachable
func Connect(ctx context.Context, opts *goredis.Options, tracer trace.Tracer, logger *slog.Logger) (*KVStore, error) {
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	logger.Info("Redis state store connected", slog.String("redis_addr", opts.Addr))
	return NewKVStore(client, tracer, logger), nil
}

// Get returns the value stored under key
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := s.tracer.Start(ctx, "RedisKVStore.Get")
	defer span.End()

	span.SetAttributes(attribute.String("kv.key", key))

	value, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		span.SetStatus(codes.Ok, "Key not found")
		return nil, domain.ErrKeyNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Get failed")
		s.logger.ErrorContext(ctx, "Failed to read key",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to read %q: %w", key, err)
	}

	span.SetStatus(codes.Ok, "Value found")
	return value, nil
}

// Set stores value under key without expiry
func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	ctx, span := s.tracer.Start(ctx, "RedisKVStore.Set")
	defer span.End()

	span.SetAttributes(
		attribute.String("kv.key", key),
		attribute.Int("kv.value_size", len(value)),
	)

	if err := s.client.Set(ctx, keyPrefix+key, value, 0).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Set failed")
		s.logger.ErrorContext(ctx, "Failed to write key",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to write %q: %w", key, err)
	}

	span.SetStatus(codes.Ok, "Value stored")
	return nil
}

// Delete removes key
func (s *KVStore) Delete(ctx context.Context, key string) error {
	ctx, span := s.tracer.Start(ctx, "RedisKVStore.Delete")
	defer span.End()

	span.SetAttributes(attribute.String("kv.key", key))

	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Delete failed")
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}

	span.SetStatus(codes.Ok, "Key deleted")
	return nil
}

// Close closes the underlying client
func (s *KVStore) Close() error {
	return s.client.Close()
}
