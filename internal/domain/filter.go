package domain

import (
	"strings"

	"golang.org/x/text/cases"
)

// AllCategories is the category selector's sentinel for "no category filter".
const AllCategories = "all"

// CriterionKind identifies which filter is active
type CriterionKind int

const (
	CriterionNone CriterionKind = iota
	CriterionQuery
	CriterionCategory
)

// Criterion is the single active filter applied to the catalog before
// rendering. Selecting a new criterion replaces the previous one.
type Criterion struct {
	Kind  CriterionKind
	Value string
}

func NoCriterion() Criterion {
	return Criterion{Kind: CriterionNone}
}

func QueryCriterion(q string) Criterion {
	return Criterion{Kind: CriterionQuery, Value: q}
}

func CategoryCriterion(category string) Criterion {
	return Criterion{Kind: CriterionCategory, Value: category}
}

// Filter returns the products matching the criterion in catalog order.
//
// A text query matches when the case-folded title, category or description
// contains the case-folded query. A blank query matches everything.
// A category matches exactly; AllCategories matches everything.
func Filter(catalog []*Product, c Criterion) []*Product {
	switch c.Kind {
	case CriterionQuery:
		q := strings.TrimSpace(c.Value)
		if q == "" {
			return clone(catalog)
		}
		return filterByQuery(catalog, q)
	case CriterionCategory:
		if c.Value == AllCategories {
			return clone(catalog)
		}
		return filterByCategory(catalog, c.Value)
	default:
		return clone(catalog)
	}
}

func filterByQuery(catalog []*Product, q string) []*Product {
	// Casers are stateful; one per call.
	fold := cases.Fold()
	needle := fold.String(q)

	out := make([]*Product, 0, len(catalog))
	for _, p := range catalog {
		if strings.Contains(fold.String(p.Title), needle) ||
			strings.Contains(fold.String(p.Category), needle) ||
			strings.Contains(fold.String(p.Description), needle) {
			out = append(out, p)
		}
	}
	return out
}

func filterByCategory(catalog []*Product, category string) []*Product {
	out := make([]*Product, 0, len(catalog))
	for _, p := range catalog {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out
}

// Categories lists distinct categories in first-seen catalog order
func Categories(catalog []*Product) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, p := range catalog {
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	return out
}

func clone(catalog []*Product) []*Product {
	out := make([]*Product, len(catalog))
	copy(out, catalog)
	return out
}
