package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/mrops-br/shopfront/internal/infrastructure/config"
	"github.com/mrops-br/shopfront/internal/infrastructure/http/handler"
	"github.com/mrops-br/shopfront/internal/infrastructure/http/middleware"
	"github.com/mrops-br/shopfront/internal/infrastructure/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	config     *config.ServerConfig
	storefront *handler.StorefrontHandler
	api        *handler.APIHandler
	logger     *slog.Logger
	telemetry  *telemetry.Telemetry
	httpServer *http.Server
}

// NewServer creates a new HTTP server
func NewServer(
	cfg *config.ServerConfig,
	storefront *handler.StorefrontHandler,
	api *handler.APIHandler,
	logger *slog.Logger,
	telem *telemetry.Telemetry,
) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		config:     cfg,
		storefront: storefront,
		api:        api,
		logger:     logger,
		telemetry:  telem,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// setupMiddleware configures the middleware chain
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.StructuredLogger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(chimiddleware.RequestID)

	meter := s.telemetry.MeterProvider.Meter("shopfront")
	s.router.Use(middleware.RequestMetrics(meter))
}

// setupRoutes configures the storefront pages and the JSON API. The route
// context middleware sits in inline groups so it runs after chi has
// matched the full pattern, including inside the /api subrouter.
func (s *Server) setupRoutes() {
	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Session(s.config.SecureCookies))

		r.Group(func(r chi.Router) {
			r.Use(middleware.HTTPRouteContext())

			r.Get("/", s.storefront.Index)
			r.Get("/products/{id}", s.storefront.ProductDetail)
			r.Post("/products/{id}/rating", s.storefront.SetRating)
			r.Get("/cart", s.storefront.Cart)
			r.Post("/cart", s.storefront.AddToCart)
			r.Post("/cart/{id}/remove", s.storefront.RemoveFromCart)
		})

		r.Route("/api", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.HTTPRouteContext())

				r.Get("/products", s.api.ListProducts)
				r.Get("/products/{id}", s.api.GetProduct)
				r.Get("/cart", s.api.GetCart)
				r.Post("/cart", s.api.AddToCart)
				r.Delete("/cart/{id}", s.api.RemoveFromCart)
				r.Get("/ratings", s.api.GetRatings)
				r.Put("/ratings/{id}", s.api.SetRating)
			})
		})
	})

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint - exposes OpenTelemetry metrics
	s.router.Get("/metrics", promhttp.Handler().ServeHTTP)
}

// Handler returns the router wrapped with otelhttp tracing and metrics
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "http-server",
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return fmt.Sprintf("%s %s", r.Method, r.URL.Path)
		}),
		otelhttp.WithTracerProvider(s.telemetry.TracerProvider),
		otelhttp.WithMeterProvider(s.telemetry.MeterProvider),
		otelhttp.WithMetricAttributesFn(func(r *http.Request) []attribute.KeyValue {
			return []attribute.KeyValue{
				attribute.String("http.route", middleware.RoutePattern(r)),
			}
		}),
	)
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server",
		slog.String("address", s.httpServer.Addr),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
