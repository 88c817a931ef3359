package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mrops-br/shopfront/internal/app/service"
	"github.com/mrops-br/shopfront/internal/infrastructure/catalog"
	"github.com/mrops-br/shopfront/internal/infrastructure/config"
	"github.com/mrops-br/shopfront/internal/infrastructure/http"
	"github.com/mrops-br/shopfront/internal/infrastructure/http/handler"
	"github.com/mrops-br/shopfront/internal/infrastructure/http/view"
	"github.com/mrops-br/shopfront/internal/infrastructure/repository"
	"github.com/mrops-br/shopfront/internal/infrastructure/telemetry"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	// Initialize OpenTelemetry
	telem, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ensure telemetry is shutdown on exit
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := telem.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down telemetry: %v", err)
		}
	}()

	tracer := telem.TracerProvider.Tracer("shopfront")
	meter := telem.MeterProvider.Meter("shopfront")
	logger := telem.Logger

	logger.Info("Starting Shopfront",
		slog.String("catalog", cfg.Catalog.BaseURL),
		slog.String("storage", cfg.Storage.Driver),
	)

	store, closeStore, err := repository.Open(ctx, &cfg.Storage, tracer, logger)
	if err != nil {
		logger.Error("Failed to open storage", slog.String("error", err.Error()))
		return
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("Failed to close storage", slog.String("error", err.Error()))
		}
	}()

	// The catalog is fetched once in the background; pages render an empty
	// grid until it arrives
	source := catalog.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout, tracer, logger)
	catalogService := service.NewCatalogService(source, tracer, meter, logger)
	catalogService.LoadAsync(ctx)

	cartService := service.NewCartService(store, catalogService, tracer, meter, logger)
	ratingService := service.NewRatingService(store, catalogService, tracer, meter, logger)

	renderer, err := view.NewRenderer()
	if err != nil {
		logger.Error("Failed to parse templates", slog.String("error", err.Error()))
		return
	}
	badge := view.NewBadge(meter, logger)
	cartService.Subscribe(badge.OnCartChanged)

	storefrontHandler := handler.NewStorefrontHandler(catalogService, cartService, ratingService, renderer, logger)
	apiHandler := handler.NewAPIHandler(catalogService, cartService, ratingService, logger)

	server := http.NewServer(&cfg.Server, storefrontHandler, apiHandler, logger, telem)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("Shutting down server...")
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", slog.String("error", err.Error()))
	}

	logger.Info("Server stopped")
}
