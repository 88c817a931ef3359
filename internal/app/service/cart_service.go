package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mrops-br/shopfront/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ProductFinder resolves a product id against the loaded catalog
type ProductFinder interface {
	FindProduct(id int) (*domain.Product, error)
}

// CartChanged is published after every persisted cart mutation
type CartChanged struct {
	Session string
	Count   int
}

// CartListener consumes cart state changes
type CartListener func(ctx context.Context, event CartChanged)

// CartService handles the add-to-cart and remove-from-cart commands
type CartService struct {
	store   domain.KVStore
	catalog ProductFinder
	tracer  trace.Tracer
	logger  *slog.Logger

	// mu serializes read-modify-write cycles on persisted carts
	mu sync.Mutex

	listenersMu sync.RWMutex
	listeners   []CartListener

	itemsAdded     metric.Int64Counter
	cartOperations metric.Int64Counter
}

// NewCartService creates a new cart service
func NewCartService(
	store domain.KVStore,
	catalog ProductFinder,
	tracer trace.Tracer,
	meter metric.Meter,
	logger *slog.Logger,
) *CartService {
	itemsAdded, _ := meter.Int64Counter(
		"cart.items.added",
		metric.WithDescription("Total number of items added to carts"),
	)

	cartOperations, _ := meter.Int64Counter(
		"cart.operations",
		metric.WithDescription("Total number of cart operations"),
	)

	return &CartService{
		store:          store,
		catalog:        catalog,
		tracer:         tracer,
		logger:         logger,
		itemsAdded:     itemsAdded,
		cartOperations: cartOperations,
	}
}

// Subscribe registers a listener for cart changes
func (s *CartService) Subscribe(fn CartListener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Cart loads a session's cart. A missing or malformed value yields an
// empty cart.
func (s *CartService) Cart(ctx context.Context, session string) (*domain.Cart, error) {
	ctx, span := s.tracer.Start(ctx, "CartService.Cart")
	defer span.End()

	cart, err := s.load(ctx, session)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to load cart")
		return nil, err
	}

	span.SetAttributes(attribute.Int("cart.count", cart.TotalCount()))
	span.SetStatus(codes.Ok, "Cart loaded")
	return cart, nil
}

// AddToCart adds one unit of a catalog product to the session's cart,
// persists the whole cart and publishes the new item count.
func (s *CartService) AddToCart(ctx context.Context, session string, productID int) (*domain.Cart, error) {
	ctx, span := s.tracer.Start(ctx, "CartService.AddToCart")
	defer span.End()

	span.SetAttributes(attribute.Int("product.id", productID))

	product, err := s.catalog.FindProduct(productID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Product not found")
		s.logger.WarnContext(ctx, "Add to cart for unknown product",
			slog.Int("product_id", productID),
		)
		s.record(ctx, "add", "not_found")
		return nil, err
	}

	cart, err := s.mutate(ctx, session, func(c *domain.Cart) {
		c.Add(product)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to add to cart")
		s.record(ctx, "add", "failure")
		return nil, err
	}

	entry, _ := cart.Entry(productID)
	s.itemsAdded.Add(ctx, 1)
	s.record(ctx, "add", "success")

	s.logger.InfoContext(ctx, "Product added to cart",
		slog.Int("product_id", productID),
		slog.Int("quantity", entry.Quantity),
		slog.Int("cart_count", cart.TotalCount()),
	)

	span.SetStatus(codes.Ok, "Product added to cart")
	return cart, nil
}

// RemoveFromCart drops a product's entry from the session's cart
func (s *CartService) RemoveFromCart(ctx context.Context, session string, productID int) (*domain.Cart, error) {
	ctx, span := s.tracer.Start(ctx, "CartService.RemoveFromCart")
	defer span.End()

	span.SetAttributes(attribute.Int("product.id", productID))

	removed := false
	cart, err := s.mutate(ctx, session, func(c *domain.Cart) {
		removed = c.Remove(productID)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to remove from cart")
		s.record(ctx, "remove", "failure")
		return nil, err
	}

	s.record(ctx, "remove", "success")
	s.logger.InfoContext(ctx, "Product removed from cart",
		slog.Int("product_id", productID),
		slog.Bool("removed", removed),
	)

	span.SetStatus(codes.Ok, "Cart updated")
	return cart, nil
}

func (s *CartService) mutate(ctx context.Context, session string, fn func(*domain.Cart)) (*domain.Cart, error) {
	s.mu.Lock()
	cart, err := s.load(ctx, session)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	fn(cart)

	err = s.save(ctx, session, cart)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.publish(ctx, CartChanged{Session: session, Count: cart.TotalCount()})
	return cart, nil
}

func (s *CartService) load(ctx context.Context, session string) (*domain.Cart, error) {
	data, err := s.store.Get(ctx, domain.CartKey(session))
	if errors.Is(err, domain.ErrKeyNotFound) {
		return domain.NewCart(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cart: %w", err)
	}

	cart, err := domain.DecodeCart(data)
	if err != nil {
		s.logger.WarnContext(ctx, "Discarding malformed cart",
			slog.String("error", err.Error()),
		)
		return domain.NewCart(), nil
	}
	return cart, nil
}

func (s *CartService) save(ctx context.Context, session string, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}
	if err := s.store.Set(ctx, domain.CartKey(session), data); err != nil {
		return fmt.Errorf("failed to persist cart: %w", err)
	}
	return nil
}

func (s *CartService) publish(ctx context.Context, event CartChanged) {
	s.listenersMu.RLock()
	listeners := append([]CartListener(nil), s.listeners...)
	s.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(ctx, event)
	}
}

func (s *CartService) record(ctx context.Context, operation, result string) {
	s.cartOperations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("result", result),
		),
	)
}
