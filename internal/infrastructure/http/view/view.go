// Package view renders the storefront's HTML pages. All catalog text goes
// through html/template's contextual escaping.
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/mrops-br/shopfront/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

// SummaryLength is the rune length of a card's truncated description
const SummaryLength = 100

// Page carries the fields every page header needs
type Page struct {
	Title      string
	Query      string
	BadgeCount int
	ReturnTo   string
}

// StarSlot is one of the five buttons of a rating control
type StarSlot struct {
	Value  int
	Filled bool
}

// StarControl is the interactive 5-star rating widget
type StarControl struct {
	ProductID int
	ReturnTo  string
	Slots     []StarSlot
}

// Card is a product tile in the grid
type Card struct {
	Product *domain.Product
	Summary string
	Stars   StarControl
}

type GridPage struct {
	Page
	Category   string
	Categories []string
	Cards      []Card
}

type DetailPage struct {
	Page
	Product *domain.Product
	Stars   StarControl
}

type CartPage struct {
	Page
	Entries  []domain.CartEntry
	Subtotal float64
}

type ErrorPage struct {
	Page
	Heading string
	Message string
}

// Renderer executes the embedded page templates
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses the embedded templates
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("shopfront").
		Funcs(template.FuncMap{"price": formatPrice}).
		ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Renderer{templates: tmpl}, nil
}

func (r *Renderer) Grid(w io.Writer, page GridPage) error {
	return r.execute(w, "grid", page)
}

func (r *Renderer) Detail(w io.Writer, page DetailPage) error {
	return r.execute(w, "detail", page)
}

func (r *Renderer) Cart(w io.Writer, page CartPage) error {
	return r.execute(w, "cart", page)
}

func (r *Renderer) Error(w io.Writer, page ErrorPage) error {
	return r.execute(w, "error", page)
}

// execute renders into a buffer so a template error never leaves a
// half-written page behind
func (r *Renderer) execute(w io.Writer, name string, data any) error {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// NewCards builds grid cards in product order. Stars come from the
// visitor's ratings, falling back to the rounded catalog average.
func NewCards(products []*domain.Product, ratings domain.RatingMap, returnTo string) []Card {
	cards := make([]Card, len(products))
	for i, p := range products {
		cards[i] = Card{
			Product: p,
			Summary: Summarize(p.Description, SummaryLength),
			Stars:   NewStarControl(p.ID, ratings.Stars(p), returnTo),
		}
	}
	return cards
}

// NewStarControl fills the first stars slots and leaves the rest empty
func NewStarControl(productID, stars int, returnTo string) StarControl {
	slots := make([]StarSlot, domain.MaxStars)
	for i := range slots {
		slots[i] = StarSlot{Value: i + 1, Filled: i < stars}
	}
	return StarControl{ProductID: productID, ReturnTo: returnTo, Slots: slots}
}

// Summarize truncates s to at most n runes, marking the cut with an ellipsis
func Summarize(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n])) + "…"
}

func formatPrice(price float64) string {
	return fmt.Sprintf("$%.2f", price)
}
