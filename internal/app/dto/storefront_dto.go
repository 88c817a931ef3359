package dto

import (
	"github.com/mrops-br/shopfront/internal/domain"
)

// AddToCartRequest represents the request to add one unit of a product
type AddToCartRequest struct {
	ProductID int `json:"product_id"`
}

// SetRatingRequest represents the request to rate a product
type SetRatingRequest struct {
	Stars int `json:"stars"`
}

// ProductResponse represents a product card as served by the JSON API.
// Stars is the visitor's rating, or the rounded catalog average.
type ProductResponse struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Image       string  `json:"image"`
	Rate        float64 `json:"rate"`
	ReviewCount int     `json:"review_count"`
	Stars       int     `json:"stars"`
	Rated       bool    `json:"rated"`
}

// ProductListResponse is a filtered product listing
type ProductListResponse struct {
	Products   []*ProductResponse `json:"products"`
	Count      int                `json:"count"`
	Categories []string           `json:"categories"`
}

// CartEntryResponse represents a single cart line
type CartEntryResponse struct {
	ProductID int     `json:"id"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Image     string  `json:"image"`
	Quantity  int     `json:"quantity"`
}

// CartResponse represents the visitor's cart
type CartResponse struct {
	Entries  []CartEntryResponse `json:"entries"`
	Count    int                 `json:"count"`
	Subtotal float64             `json:"subtotal"`
}

// RatingsResponse maps product ids to the visitor's stars
type RatingsResponse struct {
	Ratings domain.RatingMap `json:"ratings"`
}

// ToProductResponse converts a domain Product to ProductResponse
func ToProductResponse(p *domain.Product, ratings domain.RatingMap) *ProductResponse {
	_, rated := ratings[p.ID]
	return &ProductResponse{
		ID:          p.ID,
		Title:       p.Title,
		Category:    p.Category,
		Price:       p.Price,
		Description: p.Description,
		Image:       p.Image,
		Rate:        p.Rating.Rate,
		ReviewCount: p.Rating.Count,
		Stars:       ratings.Stars(p),
		Rated:       rated,
	}
}

// ToProductListResponse converts a filtered list of domain Products
func ToProductListResponse(products []*domain.Product, ratings domain.RatingMap, categories []string) *ProductListResponse {
	responses := make([]*ProductResponse, len(products))
	for i, p := range products {
		responses[i] = ToProductResponse(p, ratings)
	}
	return &ProductListResponse{
		Products:   responses,
		Count:      len(responses),
		Categories: categories,
	}
}

// ToCartResponse converts a domain Cart to CartResponse
func ToCartResponse(cart *domain.Cart) *CartResponse {
	entries := cart.Entries()
	responses := make([]CartEntryResponse, len(entries))
	for i, e := range entries {
		responses[i] = CartEntryResponse(e)
	}
	return &CartResponse{
		Entries:  responses,
		Count:    cart.TotalCount(),
		Subtotal: cart.Subtotal(),
	}
}
