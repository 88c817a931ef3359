package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"github.com/mrops-br/shopfront/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// CatalogService owns the in-memory catalog. The catalog is fetched once;
// after a successful load it does not change for the life of the process.
type CatalogService struct {
	source domain.CatalogSource
	tracer trace.Tracer
	logger *slog.Logger

	loadOnce sync.Once
	loadErr  error

	mu       sync.RWMutex
	products []*domain.Product
	byID     map[int]*domain.Product
	loaded   bool

	details singleflight.Group

	productsLoaded    metric.Int64Counter
	catalogOperations metric.Int64Counter
}

// NewCatalogService creates a new catalog service
func NewCatalogService(
	source domain.CatalogSource,
	tracer trace.Tracer,
	meter metric.Meter,
	logger *slog.Logger,
) *CatalogService {
	productsLoaded, _ := meter.Int64Counter(
		"catalog.products.loaded",
		metric.WithDescription("Number of products loaded into the catalog"),
	)

	catalogOperations, _ := meter.Int64Counter(
		"catalog.operations",
		metric.WithDescription("Total number of catalog operations"),
	)

	return &CatalogService{
		source:            source,
		tracer:            tracer,
		logger:            logger,
		byID:              map[int]*domain.Product{},
		productsLoaded:    productsLoaded,
		catalogOperations: catalogOperations,
	}
}

// Load fetches the product list. Only the first call reaches the network;
// later calls return the first call's result. A failure is logged and
// leaves the catalog empty. There is no retry.
func (s *CatalogService) Load(ctx context.Context) error {
	s.loadOnce.Do(func() {
		s.loadErr = s.load(ctx)
	})
	return s.loadErr
}

// LoadAsync starts Load in the background. The returned channel is closed
// when the load has finished, whatever its outcome.
func (s *CatalogService) LoadAsync(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Load(ctx)
	}()
	return done
}

func (s *CatalogService) load(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "CatalogService.Load")
	defer span.End()

	s.logger.InfoContext(ctx, "Loading product catalog")

	products, err := s.source.ListProducts(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to load catalog")
		s.logger.ErrorContext(ctx, "Failed to load product catalog",
			slog.String("error", err.Error()),
		)
		s.record(ctx, "load", "failure")
		return err
	}

	byID := make(map[int]*domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	s.mu.Lock()
	s.products = products
	s.byID = byID
	s.loaded = true
	s.mu.Unlock()

	s.productsLoaded.Add(ctx, int64(len(products)))
	s.record(ctx, "load", "success")

	span.SetAttributes(attribute.Int("product.count", len(products)))
	s.logger.InfoContext(ctx, "Product catalog loaded",
		slog.Int("count", len(products)),
	)

	span.SetStatus(codes.Ok, "Catalog loaded")
	return nil
}

// Loaded reports whether the catalog has been loaded successfully
func (s *CatalogService) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Catalog returns the loaded products in catalog order
func (s *CatalogService) Catalog() []*domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Filter(s.products, domain.NoCriterion())
}

// Categories lists the catalog's categories
func (s *CatalogService) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Categories(s.products)
}

// Filter applies a criterion to the loaded catalog
func (s *CatalogService) Filter(ctx context.Context, criterion domain.Criterion) []*domain.Product {
	_, span := s.tracer.Start(ctx, "CatalogService.Filter")
	defer span.End()

	s.mu.RLock()
	result := domain.Filter(s.products, criterion)
	s.mu.RUnlock()

	span.SetAttributes(
		attribute.Int("filter.kind", int(criterion.Kind)),
		attribute.String("filter.value", criterion.Value),
		attribute.Int("product.count", len(result)),
	)
	return result
}

// FindProduct looks a product up in the loaded catalog
func (s *CatalogService) FindProduct(id int) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return p, nil
}

// ProductDetail fetches a single product from the remote catalog for the
// detail view. Concurrent requests for the same id share one fetch.
func (s *CatalogService) ProductDetail(ctx context.Context, id int) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "CatalogService.ProductDetail")
	defer span.End()

	span.SetAttributes(attribute.Int("product.id", id))

	// The shared fetch outlives any single caller; the client timeout bounds it.
	v, err, shared := s.details.Do(strconv.Itoa(id), func() (any, error) {
		return s.source.GetProduct(context.WithoutCancel(ctx), id)
	})
	span.SetAttributes(attribute.Bool("fetch.shared", shared))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to fetch product")
		if errors.Is(err, domain.ErrProductNotFound) {
			s.logger.WarnContext(ctx, "Product not found",
				slog.Int("product_id", id),
			)
			s.record(ctx, "detail", "not_found")
		} else {
			s.logger.ErrorContext(ctx, "Failed to fetch product detail",
				slog.Int("product_id", id),
				slog.String("error", err.Error()),
			)
			s.record(ctx, "detail", "failure")
		}
		return nil, err
	}

	s.record(ctx, "detail", "success")
	span.SetStatus(codes.Ok, "Product fetched")
	return v.(*domain.Product), nil
}

func (s *CatalogService) record(ctx context.Context, operation, result string) {
	s.catalogOperations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("result", result),
		),
	)
}
