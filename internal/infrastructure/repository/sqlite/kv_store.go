// Package sqlite persists visitor state in a single SQLite file, the
// closest server-side analogue of browser local storage.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mrops-br/shopfront/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// KVStore is a SQLite-backed implementation of domain.KVStore
type KVStore struct {
	db     *sql.DB
	tracer trace.Tracer
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path
func Open(ctx context.Context, path string, tracer trace.Tracer, logger *slog.Logger) (*KVStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create kv schema: %w", err)
	}

	logger.Info("SQLite state store opened", slog.String("path", path))

	return &KVStore{db: db, tracer: tracer, logger: logger}, nil
}

// Get returns the value stored under key
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := s.tracer.Start(ctx, "SQLiteKVStore.Get")
	defer span.End()

	span.SetAttributes(attribute.String("kv.key", key))

	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Ok, "Key not found")
		return nil, domain.ErrKeyNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Query failed")
		s.logger.ErrorContext(ctx, "Failed to read key",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to read %q: %w", key, err)
	}

	span.SetStatus(codes.Ok, "Value found")
	return value, nil
}

// Set upserts value under key
func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	ctx, span := s.tracer.Start(ctx, "SQLiteKVStore.Set")
	defer span.End()

	span.SetAttributes(
		attribute.String("kv.key", key),
		attribute.Int("kv.value_size", len(value)),
	)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Write failed")
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
	ctx, span := s.tracer.Start(ctx, "SQLiteKVStore.Delete")
	defer span.End()

	span.SetAttributes(attribute.String("kv.key", key))

	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Delete failed")
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}

	span.SetStatus(codes.Ok, "Key deleted")
	return nil
}

// Close closes the database
func (s *KVStore) Close() error {
	return s.db.Close()
}
