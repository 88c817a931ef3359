package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mrops-br/shopfront/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// KVStore is an in-memory implementation of domain.KVStore. State does not
// survive a restart.
type KVStore struct {
	mu     sync.RWMutex
	values map[string][]byte
	tracer trace.Tracer
	logger *slog.Logger
}

// NewKVStore creates a new in-memory key/value store
func NewKVStore(tracer trace.Tracer, logger *slog.Logger) *KVStore {
	return &KVStore{
		values: make(map[string][]byte),
		tracer: tracer,
		logger: logger,
	}
}

// Get returns a copy of the value stored under key
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := s.tracer.Start(ctx, "MemoryKVStore.Get")
	defer span.End()

	span.SetAttributes(attribute.String("kv.key", key))

	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.values[key]
	if !exists {
		span.SetStatus(codes.Ok, "Key not found")
		s.logger.DebugContext(ctx, "Key not found in store",
			slog.String("key", key),
		)
		return nil, domain.ErrKeyNotFound
	}

	span.SetAttributes(attribute.Int("kv.value_size", len(value)))
	span.SetStatus(codes.Ok, "Value found")
	return append([]byte(nil), value...), nil
}

// Set stores a copy of value under key
func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	ctx, span := s.tracer.Start(ctx, "MemoryKVStore.Set")
	defer span.End()

	span.SetAttributes(
		attribute.String("kv.key", key),
		attribute.Int("kv.value_size", len(value)),
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = append([]byte(nil), value...)

	s.logger.DebugContext(ctx, "Value stored",
		slog.String("key", key),
		slog.Int("size", len(value)),
	)

	span.SetStatus(codes.Ok, "Value stored")
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	_, span := s.tracer.Start(ctx, "MemoryKVStore.Delete")
	defer span.End()

	span.SetAttributes(attribute.String("kv.key", key))

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)

	span.SetStatus(codes.Ok, "Key deleted")
	return nil
}

// Len returns the number of stored keys
func (s *KVStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
