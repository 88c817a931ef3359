// Package catalog is the HTTP client for the remote product catalog
// (a fakestoreapi.com compatible API).
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mrops-br/shopfront/internal/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxBodySize bounds catalog responses
const maxBodySize = 4 << 20

// Client implements domain.CatalogSource over HTTP
type Client struct {
	baseURL string
	http    *http.Client
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewClient creates a catalog client. Outgoing requests are instrumented
// with otelhttp so the upstream call joins the request trace.
func NewClient(baseURL string, timeout time.Duration, tracer trace.Tracer, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tracer: tracer,
		logger: logger,
	}
}

// ListProducts fetches GET /products. The whole list is rejected if any
// product is invalid.
func (c *Client) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	ctx, span := c.tracer.Start(ctx, "CatalogClient.ListProducts")
	defer span.End()

	var products []*domain.Product
	err := c.get(ctx, "/products", &products)
	if errors.Is(err, domain.ErrProductNotFound) {
		err = fmt.Errorf("%w: product list not found", domain.ErrCatalogUnavailable)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to list products")
		return nil, err
	}

	for _, p := range products {
		if p == nil {
			err := fmt.Errorf("%w: null product in catalog", domain.ErrCatalogUnavailable)
			span.RecordError(err)
			span.SetStatus(codes.Error, "Invalid catalog")
			return nil, err
		}
		if err := p.Validate(); err != nil {
			err = fmt.Errorf("%w: product %d: %w", domain.ErrCatalogUnavailable, p.ID, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "Invalid catalog")
			return nil, err
		}
	}

	span.SetAttributes(attribute.Int("product.count", len(products)))
	span.SetStatus(codes.Ok, "Products listed")
	return products, nil
}

// GetProduct fetches GET /products/{id}. The upstream answers unknown ids
// with an empty 200 body; that is reported as domain.ErrProductNotFound.
func (c *Client) GetProduct(ctx context.Context, id int) (*domain.Product, error) {
	ctx, span := c.tracer.Start(ctx, "CatalogClient.GetProduct")
	defer span.End()

	span.SetAttributes(attribute.Int("product.id", id))

	var product *domain.Product
	err := c.get(ctx, "/products/"+strconv.Itoa(id), &product)
	if errors.Is(err, errEmptyBody) || (err == nil && product == nil) {
		err = domain.ErrProductNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to get product")
		return nil, err
	}

	if err := product.Validate(); err != nil {
		err = fmt.Errorf("%w: product %d: %w", domain.ErrCatalogUnavailable, id, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid product")
		return nil, err
	}

	span.SetStatus(codes.Ok, "Product found")
	return product, nil
}

var errEmptyBody = fmt.Errorf("%w: empty response body", domain.ErrCatalogUnavailable)

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCatalogUnavailable, err)
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "Catalog response received",
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
	)

	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrProductNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: unexpected status %d from %s", domain.ErrCatalogUnavailable, resp.StatusCode, path)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%w: failed to read body: %w", domain.ErrCatalogUnavailable, err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return errEmptyBody
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: malformed body: %w", domain.ErrCatalogUnavailable, err)
	}
	return nil
}
