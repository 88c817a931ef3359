package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mrops-br/shopfront/internal/app/dto"
	"github.com/mrops-br/shopfront/internal/app/service"
	"github.com/mrops-br/shopfront/internal/domain"
	"github.com/mrops-br/shopfront/internal/infrastructure/http/middleware"
	"github.com/mrops-br/shopfront/internal/infrastructure/http/response"
)

// APIHandler serves the JSON mirror of the storefront
type APIHandler struct {
	catalog *service.CatalogService
	carts   *service.CartService
	ratings *service.RatingService
	logger  *slog.Logger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(
	catalog *service.CatalogService,
	carts *service.CartService,
	ratings *service.RatingService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		catalog: catalog,
		carts:   carts,
		ratings: ratings,
		logger:  logger,
	}
}

// ListProducts handles GET /api/products
func (h *APIHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ratings, err := h.ratings.Ratings(ctx, middleware.SessionFromContext(ctx))
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}

	products := h.catalog.Filter(ctx, criterionFrom(r.URL.Query()))
	response.JSON(w, http.StatusOK, dto.ToProductListResponse(products, ratings, h.catalog.Categories()))
}

// GetProduct handles GET /api/products/{id}
func (h *APIHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := productIDParam(r)
	if err != nil {
		response.Error(w, http.StatusNotFound, domain.ErrProductNotFound)
		return
	}

	product, err := h.catalog.ProductDetail(ctx, id)
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}

	ratings, err := h.ratings.Ratings(ctx, middleware.SessionFromContext(ctx))
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}

	response.JSON(w, http.StatusOK, dto.ToProductResponse(product, ratings))
}

// GetCart handles GET /api/cart
func (h *APIHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cart, err := h.carts.Cart(ctx, middleware.SessionFromContext(ctx))
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}

	response.JSON(w, http.StatusOK, dto.ToCartResponse(cart))
}

// AddToCart handles POST /api/cart
func (h *APIHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req dto.AddToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "Failed to decode request body",
			slog.String("error", err.Error()),
		)
		response.Error(w, http.StatusBadRequest, err)
		return
	}

	cart, err := h.carts.AddToCart(ctx, middleware.SessionFromContext(ctx), req.ProductID)
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}

	response.JSON(w, http.StatusOK, dto.ToCartResponse(cart))
}

// RemoveFromCart handles DELETE /api/cart/{id}
func (h *APIHandler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := productIDParam(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}

	cart, err := h.carts.RemoveFromCart(ctx, middleware.SessionFromContext(ctx), id)
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}

	response.JSON(w, http.StatusOK, dto.ToCartResponse(cart))
}

// GetRatings handles GET /api/ratings
func (h *APIHandler) GetRatings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ratings, err := h.ratings.Ratings(ctx, middleware.SessionFromContext(ctx))
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}

	response.JSON(w, http.StatusOK, dto.RatingsResponse{Ratings: ratings})
}

// SetRating handles PUT /api/ratings/{id}
func (h *APIHandler) SetRating(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := productIDParam(r)
	if err != nil {
		response.Error(w, http.StatusNotFound, domain.ErrProductNotFound)
		return
	}

	var req dto.SetRatingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}

	ratings, err := h.ratings.SetRating(ctx, middleware.SessionFromContext(ctx), id, req.Stars)
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}

	response.JSON(w, http.StatusOK, dto.RatingsResponse{Ratings: ratings})
}
