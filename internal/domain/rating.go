package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	MinStars = 1
	MaxStars = 5
)

var ErrInvalidRating = errors.New("rating must be between 1 and 5 stars")

// RatingMap maps a product id to the star rating assigned by the visitor.
// It is local state only and never touches the catalog's own average.
// Encoded as a JSON object keyed by the stringified id.
type RatingMap map[int]int

// Set upserts the rating for a product
func (m RatingMap) Set(productID, stars int) error {
	if stars < MinStars || stars > MaxStars {
		return ErrInvalidRating
	}
	m[productID] = stars
	return nil
}

// Stars returns the stars to show for a product: the visitor's own rating
// when one exists, otherwise the rounded catalog average.
func (m RatingMap) Stars(p *Product) int {
	if stars, ok := m[p.ID]; ok {
		return stars
	}
	return p.AverageStars()
}

// DecodeRatings parses a persisted rating map
func DecodeRatings(data []byte) (RatingMap, error) {
	var m RatingMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedState, err)
	}
	if m == nil {
		return RatingMap{}, nil
	}

	for id, stars := range m {
		if stars < MinStars || stars > MaxStars {
			return nil, fmt.Errorf("%w: rating %d for product %d", ErrMalformedState, stars, id)
		}
	}
	return m, nil
}
