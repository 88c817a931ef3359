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

// RatingService handles the visitor's own star ratings. Ratings stay
// local to the storefront and never change the catalog's averages.
type RatingService struct {
	store   domain.KVStore
	catalog ProductFinder
	tracer  trace.Tracer
	logger  *slog.Logger

	mu sync.Mutex

	ratingsSet       metric.Int64Counter
	ratingOperations metric.Int64Counter
}

// NewRatingService creates a new rating service
func NewRatingService(
	store domain.KVStore,
	catalog ProductFinder,
	tracer trace.Tracer,
	meter metric.Meter,
	logger *slog.Logger,
) *RatingService {
	ratingsSet, _ := meter.Int64Counter(
		"ratings.set",
		metric.WithDescription("Total number of ratings set"),
	)

	ratingOperations, _ := meter.Int64Counter(
		"ratings.operations",
		metric.WithDescription("Total number of rating operations"),
	)

	return &RatingService{
		store:            store,
		catalog:          catalog,
		tracer:           tracer,
		logger:           logger,
		ratingsSet:       ratingsSet,
		ratingOperations: ratingOperations,
	}
}

// Ratings loads a session's rating map. A missing or malformed value
// yields an empty map.
func (s *RatingService) Ratings(ctx context.Context, session string) (domain.RatingMap, error) {
	ctx, span := s.tracer.Start(ctx, "RatingService.Ratings")
	defer span.End()

	ratings, err := s.load(ctx, session)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to load ratings")
		return nil, err
	}

	span.SetAttributes(attribute.Int("ratings.count", len(ratings)))
	span.SetStatus(codes.Ok, "Ratings loaded")
	return ratings, nil
}

// SetRating upserts the visitor's rating for a catalog product and
// persists the whole map. The updated map is returned even when the
// write fails; the failure is only logged.
func (s *RatingService) SetRating(ctx context.Context, session string, productID, stars int) (domain.RatingMap, error) {
	ctx, span := s.tracer.Start(ctx, "RatingService.SetRating")
	defer span.End()

	span.SetAttributes(
		attribute.Int("product.id", productID),
		attribute.Int("rating.stars", stars),
	)

	if _, err := s.catalog.FindProduct(productID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Product not found")
		s.record(ctx, "not_found")
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ratings, err := s.load(ctx, session)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to load ratings")
		s.record(ctx, "failure")
		return nil, err
	}

	if err := ratings.Set(productID, stars); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid rating")
		s.record(ctx, "invalid")
		return nil, err
	}

	if err := s.save(ctx, session, ratings); err != nil {
		span.RecordError(err)
		s.logger.ErrorContext(ctx, "Failed to persist rating",
			slog.Int("product_id", productID),
			slog.String("error", err.Error()),
		)
		s.record(ctx, "unsaved")
	} else {
		s.record(ctx, "success")
	}

	s.ratingsSet.Add(ctx, 1)
	s.logger.InfoContext(ctx, "Product rated",
		slog.Int("product_id", productID),
		slog.Int("stars", stars),
	)

	span.SetStatus(codes.Ok, "Rating set")
	return ratings, nil
}

func (s *RatingService) load(ctx context.Context, session string) (domain.RatingMap, error) {
	data, err := s.store.Get(ctx, domain.RatingsKey(session))
	if errors.Is(err, domain.ErrKeyNotFound) {
		return domain.RatingMap{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ratings: %w", err)
	}

	ratings, err := domain.DecodeRatings(data)
	if err != nil {
		s.logger.WarnContext(ctx, "Discarding malformed ratings",
			slog.String("error", err.Error()),
		)
		return domain.RatingMap{}, nil
	}
	return ratings, nil
}

func (s *RatingService) save(ctx context.Context, session string, ratings domain.RatingMap) error {
	data, err := json.Marshal(ratings)
	if err != nil {
		return fmt.Errorf("failed to encode ratings: %w", err)
	}
	if err := s.store.Set(ctx, domain.RatingsKey(session), data); err != nil {
		return fmt.Errorf("failed to persist ratings: %w", err)
	}
	return nil
}

func (s *RatingService) record(ctx context.Context, result string) {
	s.ratingOperations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", "set"),
			attribute.String("result", result),
		),
	)
}
