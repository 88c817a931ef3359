package domain

import (
	"errors"
	"math"
)

var (
	ErrInvalidProductID    = errors.New("product id must be positive")
	ErrInvalidProductTitle = errors.New("product title is required")
)

// RatingSummary is the catalog's own review aggregate for a product
type RatingSummary struct {
	Rate  float64 `json:"rate"`
	Count int     `json:"count"`
}

// Product represents a catalog entry as served by the remote store API.
// Products are read-only for the lifetime of the process.
type Product struct {
	ID          int           `json:"id"`
	Title       string        `json:"title"`
	Price       float64       `json:"price"`
	Description string        `json:"description"`
	Category    string        `json:"category"`
	Image       string        `json:"image"`
	Rating      RatingSummary `json:"rating"`
}

// Validate performs business validation on the product
func (p *Product) Validate() error {
	if p.ID <= 0 {
		return ErrInvalidProductID
	}
	if p.Title == "" {
		return ErrInvalidProductTitle
	}
	return nil
}

// AverageStars returns the catalog average rounded to the nearest whole star.
func (p *Product) AverageStars() int {
	stars := int(math.Round(p.Rating.Rate))
	return clampStars(stars, 0)
}

func clampStars(stars, lowest int) int {
	if stars < lowest {
		return lowest
	}
	if stars > MaxStars {
		return MaxStars
	}
	return stars
}
