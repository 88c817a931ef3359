package domain

import (
	"context"
	"errors"
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	ErrKeyNotFound        = errors.New("key not found")
	ErrMalformedState     = errors.New("malformed persisted state")
)

// Persisted state keys, namespaced per visitor session
const (
	cartKey    = "cart"
	ratingsKey = "ratings"
)

// CartKey returns the storage key of a session's cart
func CartKey(session string) string {
	return session + ":" + cartKey
}

// RatingsKey returns the storage key of a session's rating map
func RatingsKey(session string) string {
	return session + ":" + ratingsKey
}

// CatalogSource defines the contract for the remote product catalog
type CatalogSource interface {
	ListProducts(ctx context.Context) ([]*Product, error)
	GetProduct(ctx context.Context, id int) (*Product, error)
}

// KVStore defines the contract for persisted visitor state. Values are
// opaque serialized blobs; each call is atomic on its own key.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
