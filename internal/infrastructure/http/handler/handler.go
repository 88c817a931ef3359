package handler

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mrops-br/shopfront/internal/domain"
)

// criterionFrom reads the active filter from a query string. A search
// query takes precedence over a category; neither means no filter.
func criterionFrom(q url.Values) domain.Criterion {
	switch {
	case q.Has("q"):
		return domain.QueryCriterion(q.Get("q"))
	case q.Has("category"):
		return domain.CategoryCriterion(q.Get("category"))
	default:
		return domain.NoCriterion()
	}
}

func productIDParam(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}

// safeReturn only allows local absolute paths as redirect targets
func safeReturn(target string) string {
	if !strings.HasPrefix(target, "/") ||
		strings.HasPrefix(target, "//") ||
		strings.HasPrefix(target, "/\\") {
		return "/"
	}
	return target
}
