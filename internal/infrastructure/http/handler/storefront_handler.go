package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mrops-br/shopfront/internal/app/service"
	"github.com/mrops-br/shopfront/internal/domain"
	"github.com/mrops-br/shopfront/internal/infrastructure/http/middleware"
	"github.com/mrops-br/shopfront/internal/infrastructure/http/response"
	"github.com/mrops-br/shopfront/internal/infrastructure/http/view"
)

// StorefrontHandler serves the HTML storefront
type StorefrontHandler struct {
	catalog  *service.CatalogService
	carts    *service.CartService
	ratings  *service.RatingService
	renderer *view.Renderer
	logger   *slog.Logger
}

// NewStorefrontHandler creates a new storefront handler
func NewStorefrontHandler(
	catalog *service.CatalogService,
	carts *service.CartService,
	ratings *service.RatingService,
	renderer *view.Renderer,
	logger *slog.Logger,
) *StorefrontHandler {
	return &StorefrontHandler{
		catalog:  catalog,
		carts:    carts,
		ratings:  ratings,
		renderer: renderer,
		logger:   logger,
	}
}

// Index handles GET /
func (h *StorefrontHandler) Index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ratings, err := h.ratings.Ratings(ctx, middleware.SessionFromContext(ctx))
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.renderGrid(w, r, criterionFrom(r.URL.Query()), ratings, r.URL.RequestURI())
}

// ProductDetail handles GET /products/{id}. The product is fetched from
// the remote catalog rather than taken from the loaded list.
func (h *StorefrontHandler) ProductDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := productIDParam(r)
	if err != nil {
		h.renderError(w, r, domain.ErrProductNotFound)
		return
	}

	ratings, err := h.ratings.Ratings(ctx, middleware.SessionFromContext(ctx))
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.renderDetail(w, r, id, ratings, r.URL.RequestURI())
}

// Cart handles GET /cart
func (h *StorefrontHandler) Cart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cart, err := h.carts.Cart(ctx, middleware.SessionFromContext(ctx))
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	page := view.CartPage{
		Page:     view.Page{Title: "Cart", BadgeCount: cart.TotalCount(), ReturnTo: r.URL.RequestURI()},
		Entries:  cart.Entries(),
		Subtotal: cart.Subtotal(),
	}
	h.render(w, r, http.StatusOK, func() error { return h.renderer.Cart(w, page) })
}

// AddToCart handles POST /cart
func (h *StorefrontHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.Atoi(r.PostFormValue("product_id"))
	if err != nil {
		h.renderError(w, r, errBadRequest)
		return
	}

	if _, err := h.carts.AddToCart(ctx, middleware.SessionFromContext(ctx), id); err != nil {
		h.renderError(w, r, err)
		return
	}

	http.Redirect(w, r, safeReturn(r.PostFormValue("return_to")), http.StatusSeeOther)
}

// RemoveFromCart handles POST /cart/{id}/remove
func (h *StorefrontHandler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := productIDParam(r)
	if err != nil {
		h.renderError(w, r, errBadRequest)
		return
	}

	if _, err := h.carts.RemoveFromCart(ctx, middleware.SessionFromContext(ctx), id); err != nil {
		h.renderError(w, r, err)
		return
	}

	http.Redirect(w, r, "/cart", http.StatusSeeOther)
}

// SetRating handles POST /products/{id}/rating. The page the rating was
// given on is rendered straight from the updated ratings, so the widget
// shows the new stars even when they could not be stored.
func (h *StorefrontHandler) SetRating(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := productIDParam(r)
	if err != nil {
		h.renderError(w, r, domain.ErrProductNotFound)
		return
	}
	stars, err := strconv.Atoi(r.PostFormValue("stars"))
	if err != nil {
		h.renderError(w, r, domain.ErrInvalidRating)
		return
	}

	ratings, err := h.ratings.SetRating(ctx, middleware.SessionFromContext(ctx), id, stars)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	target, err := url.Parse(safeReturn(r.PostFormValue("return_to")))
	if err != nil {
		target = &url.URL{Path: "/"}
	}

	if rest, ok := strings.CutPrefix(target.Path, "/products/"); ok {
		if productID, err := strconv.Atoi(rest); err == nil {
			h.renderDetail(w, r, productID, ratings, target.RequestURI())
			return
		}
	}
	h.renderGrid(w, r, criterionFrom(target.Query()), ratings, target.RequestURI())
}

var errBadRequest = errors.New("malformed request")

func (h *StorefrontHandler) renderGrid(w http.ResponseWriter, r *http.Request, criterion domain.Criterion, ratings domain.RatingMap, returnTo string) {
	ctx := r.Context()

	page := view.GridPage{
		Page:       h.page(ctx, "Products", returnTo),
		Category:   domain.AllCategories,
		Categories: h.catalog.Categories(),
		Cards:      view.NewCards(h.catalog.Filter(ctx, criterion), ratings, returnTo),
	}
	switch criterion.Kind {
	case domain.CriterionQuery:
		page.Query = criterion.Value
	case domain.CriterionCategory:
		page.Category = criterion.Value
	}

	h.render(w, r, http.StatusOK, func() error { return h.renderer.Grid(w, page) })
}

func (h *StorefrontHandler) renderDetail(w http.ResponseWriter, r *http.Request, id int, ratings domain.RatingMap, returnTo string) {
	ctx := r.Context()

	product, err := h.catalog.ProductDetail(ctx, id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	page := view.DetailPage{
		Page:    h.page(ctx, product.Title, returnTo),
		Product: product,
		Stars:   view.NewStarControl(product.ID, ratings.Stars(product), returnTo),
	}
	h.render(w, r, http.StatusOK, func() error { return h.renderer.Detail(w, page) })
}

func (h *StorefrontHandler) page(ctx context.Context, title, returnTo string) view.Page {
	return view.Page{
		Title:      title,
		BadgeCount: h.badgeCount(ctx),
		ReturnTo:   returnTo,
	}
}

// badgeCount is read from the stored cart on every render, so replicas
// sharing a store always agree
func (h *StorefrontHandler) badgeCount(ctx context.Context) int {
	cart, err := h.carts.Cart(ctx, middleware.SessionFromContext(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "Failed to load cart for badge",
			slog.String("error", err.Error()),
		)
		return 0
	}
	return cart.TotalCount()
}

func (h *StorefrontHandler) render(w http.ResponseWriter, r *http.Request, status int, fn func() error) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := fn(); err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to render page",
			slog.String("error", err.Error()),
		)
	}
}

func (h *StorefrontHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := response.StatusFor(err)
	if errors.Is(err, errBadRequest) {
		status = http.StatusBadRequest
	}

	heading := http.StatusText(status)
	message := "Something went wrong. Please try again later."
	switch status {
	case http.StatusNotFound:
		message = "We could not find that product."
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		message = err.Error()
	case http.StatusBadGateway:
		message = "The product catalog is unavailable right now."
	}

	if status >= 500 {
		h.logger.ErrorContext(r.Context(), "Request failed",
			slog.String("error", err.Error()),
		)
	}

	page := view.ErrorPage{
		Page:    h.page(r.Context(), heading, r.URL.RequestURI()),
		Heading: heading,
		Message: message,
	}
	h.render(w, r, status, func() error { return h.renderer.Error(w, page) })
}
