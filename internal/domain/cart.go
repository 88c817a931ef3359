package domain

import (
	"encoding/json"
	"fmt"
)

// CartEntry is a single cart line. It keeps a snapshot of the product's
// display fields so the cart renders without going back to the catalog.
type CartEntry struct {
	ProductID int     `json:"id"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Image     string  `json:"image"`
	Quantity  int     `json:"quantity"`
}

// Cart holds at most one entry per product, in first-added order.
type Cart struct {
	entries []CartEntry
}

// NewCart returns an empty cart
func NewCart() *Cart {
	return &Cart{entries: []CartEntry{}}
}

// Add increments the quantity of the product's entry, creating it with
// quantity 1 on first add. It returns the updated entry.
func (c *Cart) Add(p *Product) CartEntry {
	if i := c.index(p.ID); i >= 0 {
		c.entries[i].Quantity++
		return c.entries[i]
	}

	entry := CartEntry{
		ProductID: p.ID,
		Title:     p.Title,
		Price:     p.Price,
		Image:     p.Image,
		Quantity:  1,
	}
	c.entries = append(c.entries, entry)
	return entry
}

// Remove drops the product's entry. It reports whether an entry existed.
func (c *Cart) Remove(productID int) bool {
	i := c.index(productID)
	if i < 0 {
		return false
	}
	c.entries = append(c.entries[:i], c.entries[i+1:]...)
	return true
}

// Entry returns the entry for a product, if present
func (c *Cart) Entry(productID int) (CartEntry, bool) {
	if i := c.index(productID); i >= 0 {
		return c.entries[i], true
	}
	return CartEntry{}, false
}

// Entries returns a copy of the entries in insertion order
func (c *Cart) Entries() []CartEntry {
	out := make([]CartEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of distinct products in the cart
func (c *Cart) Len() int {
	return len(c.entries)
}

// TotalCount is the badge value: the sum of all quantities.
func (c *Cart) TotalCount() int {
	total := 0
	for _, e := range c.entries {
		total += e.Quantity
	}
	return total
}

// Subtotal returns the sum of price times quantity
func (c *Cart) Subtotal() float64 {
	var sum float64
	for _, e := range c.entries {
		sum += e.Price * float64(e.Quantity)
	}
	return sum
}

func (c *Cart) index(productID int) int {
	for i, e := range c.entries {
		if e.ProductID == productID {
			return i
		}
	}
	return -1
}

// MarshalJSON encodes the cart as a JSON array of entries
func (c *Cart) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Entries())
}

// DecodeCart parses a persisted cart. Anything that is not a well-formed
// array of unique entries with positive quantities is ErrMalformedState.
func DecodeCart(data []byte) (*Cart, error) {
	var entries []CartEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedState, err)
	}

	seen := make(map[int]struct{}, len(entries))
	for _, e := range entries {
		if e.ProductID <= 0 || e.Quantity < 1 {
			return nil, fmt.Errorf("%w: invalid cart entry for product %d", ErrMalformedState, e.ProductID)
		}
		if _, dup := seen[e.ProductID]; dup {
			return nil, fmt.Errorf("%w: duplicate cart entry for product %d", ErrMalformedState, e.ProductID)
		}
		seen[e.ProductID] = struct{}{}
	}

	if entries == nil {
		entries = []CartEntry{}
	}
	return &Cart{entries: entries}, nil
}
