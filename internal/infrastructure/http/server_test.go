package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/mrops-br/shopfront/internal/app/dto"
	"github.com/mrops-br/shopfront/internal/app/service"
	"github.com/mrops-br/shopfront/internal/domain"
	"github.com/mrops-br/shopfront/internal/infrastructure/config"
	shophttp "github.com/mrops-br/shopfront/internal/infrastructure/http"
	"github.com/mrops-br/shopfront/internal/infrastructure/http/handler"
	"github.com/mrops-br/shopfront/internal/infrastructure/http/view"
	"github.com/mrops-br/shopfront/internal/infrastructure/repository/memory"
	"github.com/mrops-br/shopfront/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func sampleCatalog() []*domain.Product {
	return []*domain.Product{
		{ID: 1, Title: "Fjallraven Backpack", Category: "men's clothing", Price: 109.95, Description: "Your perfect pack for everyday use", Image: "https://img/1.jpg", Rating: domain.RatingSummary{Rate: 3.9, Count: 120}},
		{ID: 2, Title: "Slim Fit T-Shirts", Category: "men's clothing", Price: 22.3, Description: "Slim-fitting style", Image: "https://img/2.jpg", Rating: domain.RatingSummary{Rate: 4.1, Count: 259}},
		{ID: 3, Title: "John Hardy Bracelet", Category: "jewelery", Price: 695, Description: "Legends Collection", Image: "https://img/3.jpg", Rating: domain.RatingSummary{Rate: 4.6, Count: 400}},
	}
}

// stubSource serves a fixed catalog. detailErr makes every detail fetch
// fail.
type stubSource struct {
	products  []*domain.Product
	detailErr error
}

func (s *stubSource) ListProducts(context.Context) ([]*domain.Product, error) {
	return s.products, nil
}

func (s *stubSource) GetProduct(_ context.Context, id int) (*domain.Product, error) {
	if s.detailErr != nil {
		return nil, s.detailErr
	}
	for _, p := range s.products {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, domain.ErrProductNotFound
}

// testServer describes one storefront replica. A nil store gets a fresh
// in-memory one and a nil logs writer discards output.
type testServer struct {
	source *stubSource
	store  domain.KVStore
	logs   io.Writer
}

func newTestServer(t *testing.T, source *stubSource) string {
	t.Helper()
	return startServer(t, testServer{source: source})
}

func startServer(t *testing.T, opts testServer) string {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.logs != nil {
		logger = telemetry.NewLogger(opts.logs, "info")
	}
	telem := &telemetry.Telemetry{
		TracerProvider: sdktrace.NewTracerProvider(),
		MeterProvider:  sdkmetric.NewMeterProvider(),
		Logger:         logger,
	}
	t.Cleanup(func() { _ = telem.Shutdown(context.Background()) })

	tracer := telem.TracerProvider.Tracer("test")
	meter := telem.MeterProvider.Meter("test")

	store := opts.store
	if store == nil {
		store = memory.NewKVStore(tracer, logger)
	}
	catalogService := service.NewCatalogService(opts.source, tracer, meter, logger)
	require.NoError(t, catalogService.Load(t.Context()))

	carts := service.NewCartService(store, catalogService, tracer, meter, logger)
	ratings := service.NewRatingService(store, catalogService, tracer, meter, logger)

	renderer, err := view.NewRenderer()
	require.NoError(t, err)
	carts.Subscribe(view.NewBadge(meter, logger).OnCartChanged)

	srv := shophttp.NewServer(
		&config.ServerConfig{Host: "127.0.0.1", Port: "0"},
		handler.NewStorefrontHandler(catalogService, carts, ratings, renderer, logger),
		handler.NewAPIHandler(catalogService, carts, ratings, logger),
		logger,
		telem,
	)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

// ratingsReadOnlyStore refuses every ratings write
type ratingsReadOnlyStore struct {
	*memory.KVStore
}

func (s ratingsReadOnlyStore) Set(ctx context.Context, key string, value []byte) error {
	if strings.HasSuffix(key, ":ratings") {
		return errors.New("disk full")
	}
	return s.KVStore.Set(ctx, key, value)
}

// syncBuffer collects log output written by server goroutines
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// routesLogged returns the http.route attribute of every log record with
// the given message
func (b *syncBuffer) routesLogged(t *testing.T, msg string) []string {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()

	var routes []string
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &record))
		if record["msg"] == msg {
			route, _ := record["http.route"].(string)
			routes = append(routes, route)
		}
	}
	return routes
}

func newNoopStore() *memory.KVStore {
	return memory.NewKVStore(tracenoop.NewTracerProvider().Tracer("test"), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// newClient keeps the session cookie between requests and does not follow
// redirects
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func getPage(t *testing.T, c *http.Client, target string) (*http.Response, *goquery.Document) {
	t.Helper()
	resp, err := c.Get(target)
	require.NoError(t, err)
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)
	return resp, doc
}

func postPage(t *testing.T, c *http.Client, target string, form url.Values) (*http.Response, *goquery.Document) {
	t.Helper()
	resp, err := c.PostForm(target, form)
	require.NoError(t, err)
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)
	return resp, doc
}

func postForm(t *testing.T, c *http.Client, target string, form url.Values) *http.Response {
	t.Helper()
	resp, err := c.PostForm(target, form)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp
}

func cardTitles(doc *goquery.Document) []string {
	var titles []string
	doc.Find("article.card .title").Each(func(_ int, s *goquery.Selection) {
		titles = append(titles, s.Text())
	})
	return titles
}

func TestIndexShowsWholeCatalog(t *testing.T) {
	base := newTestServer(t, &stubSource{products: sampleCatalog()})

	resp, doc := getPage(t, newClient(t), base+"/")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Fjallraven Backpack", "Slim Fit T-Shirts", "John Hardy Bracelet"}, cardTitles(doc))
	assert.Equal(t, "0", doc.Find("#cart-badge").Text())
	assert.Equal(t, 3, doc.Find(`select[name="category"] option`).Length())

	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "shopfront_session" {
			session = c
		}
	}
	require.NotNil(t, session)
}

func TestIndexFilters(t *testing.T) {
	base := newTestServer(t, &stubSource{products: sampleCatalog()})
	c := newClient(t)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"search is case-insensitive", "?q=BRACELET", []string{"John Hardy Bracelet"}},
		{"search matches substrings", "?q=fit", []string{"Slim Fit T-Shirts"}},
		{"blank search shows all", "?q=", []string{"Fjallraven Backpack", "Slim Fit T-Shirts", "John Hardy Bracelet"}},
		{"category", "?category=men%27s+clothing", []string{"Fjallraven Backpack", "Slim Fit T-Shirts"}},
		{"all categories", "?category=all", []string{"Fjallraven Backpack", "Slim Fit T-Shirts", "John Hardy Bracelet"}},
		{"search wins over category", "?q=bracelet&category=men%27s+clothing", []string{"John Hardy Bracelet"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, doc := getPage(t, c, base+"/"+tt.query)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.want, cardTitles(doc))
			assert.Zero(t, doc.Find(".not-found").Length())
		})
	}
}

func TestIndexKeepsFilterState(t *testing.T) {
	base := newTestServer(t, &stubSource{products: sampleCatalog()})
	c := newClient(t)

	_, doc := getPage(t, c, base+"/?q=shirt")
	value, _ := doc.Find(`input[name="q"]`).Attr("value")
	assert.Equal(t, "shirt", value)

	_, doc = getPage(t, c, base+"/?category=jewelery")
	assert.Equal(t, "jewelery", doc.Find(`option[selected]`).AttrOr("value", ""))
}

func TestIndexNoMatch(t *testing.T) {
	base := newTestServer(t, &stubSource{products: sampleCatalog()})

	_, doc := getPage(t, newClient(t), base+"/?q=zzz")

	assert.Empty(t, cardTitles(doc))
	assert.Equal(t, "No products found.", doc.Find(".not-found").Text())
}

func TestAddToCartUpdatesBadgeAndCart(t *testing.T) {
	base := newTestServer(t, &stubSource{products: sampleCatalog()})
	c := newClient(t)

	resp := postForm(t, c, base+"/cart", url.Values{"product_id": {"2"}, "return_to": {"/?q=shirt"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/?q=shirt", resp.Header.Get("Location"))

	_, doc := getPage(t, c, base+"/?q=shirt")
	assert.Equal(t, "1", doc.Find("#cart-badge").Text())

	postForm(t, c, base+"/cart", url.Values{"product_id": {"2"}})
	postForm(t, c, base+"/cart", url.Values{"product_id": {"3"}})

	_, doc = getPage(t, c, base+"/cart")
	assert.Equal(t, "3", doc.Find("#cart-badge").Text())
	assert.Equal(t, "2", doc.Find(`tr[data-product-id="2"] .quantity`).Text())
	assert.Equal(t, "1", doc.Find(`tr[data-product-id="3"] .quantity`).Text())
	assert.Equal(t, "Subtotal: $739.60", doc.Find(".subtotal").Text())
}

func TestCartIsPerSession(t *testing.T) {
	base := newTestServer(t, &stubSource{products: sampleCatalog()})

	alice := newClient(t)
	postForm(t, alice, base+"/cart", url.Values{"product_id": {"1"}})

	_, doc := getPage(t, newClient(t), base+"/cart")
	assert.Equal(t, "0", doc.Find("#cart-badge").Text())
	assert.Equal(t, 1, doc.Find(".empty").Length())
}

func TestBadgeAgreesAcrossReplicas(t *testing.T) {
	store := newNoopStore()
	source := &stubSource{products: sampleCatalog()}
	replicaA := startServer(t, testServer{source: source, store: store})
	replicaB := startServer(t, testServer{source: source, store: store})

	// both replicas listen on 127.0.0.1, so the jar sends one session to both
	c := newClient(t)

	postForm(t, c, replicaA+"/cart", url.Values{"product_id": {"1"}})
	_, doc := getPage(t, c, replicaB+"/")
	assert.Equal(t, "1", doc.Find("#cart-badge").Text())

	postForm(t, c, replicaA+"/cart", url.Values{"product_id": {"2"}})
	postForm(t, c, replicaA+"/cart", url.Values{"product_id": {"2"}})

	_, doc = getPage(t, c, replicaB+"/")
	assert.Equal(t, "3", doc.Find("#cart-badge").Text())
	_, doc = getPage(t, c, replicaB+"/products/3")
	assert.Equal(t, "3", doc.Find("#cart-badge").Text())
	_, doc = getPage(t, c, replicaB+"/cart")
	assert.Equal(t, "3", doc.Find("#cart-badge").Text())
}

func TestAddToCartRejectsForeignRedirect(t *testing.T) {
	base := newTestServer(t, &stubSource{products: sampleCatalog()})

	resp := postForm(t, newClient(t), base+"/cart", url.Values{"product_id": {"1"}, "return_to": {"//evil.example"}})

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestAddToCartErrors(t *testing.T) {
	base := newTestServer(t, &stubSource{products: sampleCatalog()})
	c := newClient(t)

	resp := postForm(t, c, base+"/cart", url.Values{"product_id": {"99"}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = postForm(t, c, base+"/cart", url.Values{"product_id": {"abc"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRemoveFromCart(t *testing.T) {
	base := newTestServer(t, &stubSource{products: sampleCatalog()})
	c := newClient(t)

	postForm(t, c, base+"/cart", url.Values{"product_id": {"1"}})
	resp := postForm(t, c, base+"/cart/1/remove", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/cart", resp.Header.Get("Location"))

	_, doc := getPage(t, c, base+"/cart")
	assert.Equal(t, "0", doc.Find("#cart-badge").Text())
	assert.Equal(t, 1, doc.Find(".empty").Length())
}

func TestRatingOverridesAverage(t *testing.T) {
	base := newTestServer(t, &stubSource{products: sampleCatalog()})
	c := newClient(t)

	_, doc := getPage(t, c, base+"/")
	assert.Equal(t, 4, doc.Find(`article.card[data-product-id="1"] .star.filled`).Length())

	resp, doc := postPage(t, c, base+"/products/1/rating", url.Values{"stars": {"2"}, "return_to": {"/?category=men%27s+clothing"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Fjallraven Backpack", "Slim Fit T-Shirts"}, cardTitles(doc))
	assert.Equal(t, 2, doc.Find(`article.card[data-product-id="1"] .star.filled`).Length())
	assert.Equal(t, "/?category=men%27s+clothing", doc.Find(`article.card[data-product-id="1"] form.rating input[name="return_to"]`).AttrOr("value", ""))

	_, doc = getPage(t, c, base+"/")
	assert.Equal(t, 2, doc.Find(`article.card[data-product-id="1"] .star.filled`).Length())
	assert.Equal(t, 4, doc.Find(`article.card[data-product-id="2"] .star.filled`).Length())

	resp, doc = postPage(t, c, base+"/products/1/rating", url.Values{"stars": {"3"}, "return_to": {"/products/1"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Fjallraven Backpack", doc.Find(".detail h1").Text())
	assert.Equal(t, 3, doc.Find(".detail .star.filled").Length())

	_, doc = getPage(t, c, base+"/products/1")
	assert.Equal(t, 3, doc.Find(".detail .star.filled").Length())
}

func TestRatingShownWhenStoreRejectsWrite(t *testing.T) {
	base := startServer(t, testServer{
		source: &stubSource{products: sampleCatalog()},
		store:  ratingsReadOnlyStore{newNoopStore()},
	})
	c := newClient(t)

	resp, doc := postPage(t, c, base+"/products/1/rating", url.Values{"stars": {"1"}, "return_to": {"/"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, doc.Find(`article.card[data-product-id="1"] .star.filled`).Length())

	resp, doc = postPage(t, c, base+"/products/1/rating", url.Values{"stars": {"5"}, "return_to": {"/products/1"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, doc.Find(".detail .star.filled").Length())

	// nothing was stored, so a fresh page falls back to the average
	_, doc = getPage(t, c, base+"/")
	assert.Equal(t, 4, doc.Find(`article.card[data-product-id="1"] .star.filled`).Length())
}

func TestRatingRejectsOutOfRange(t *testing.T) {
	base := newTestServer(t, &stubSource{products: sampleCatalog()})
	c := newClient(t)

	for _, stars := range []string{"0", "6", "x"} {
		resp := postForm(t, c, base+"/products/1/rating", url.Values{"stars": {stars}})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, stars)
	}

	resp := postForm(t, c, base+"/products/99/rating", url.Values{"stars": {"3"}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProductDetail(t *testing.T) {
	base := newTestServer(t, &stubSource{products: sampleCatalog()})
	c := newClient(t)

	resp, doc := getPage(t, c, base+"/products/3")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "John Hardy Bracelet", doc.Find(".detail h1").Text())
	assert.Equal(t, "4.6 average from 400 reviews", doc.Find(".reviews").Text())
	assert.Equal(t, "$695.00", doc.Find(".detail .price").Text())

	resp, doc = getPage(t, c, base+"/products/99")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Not Found", doc.Find(".error h1").Text())

	resp, _ = getPage(t, c, base+"/products/abc")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProductDetailUpstreamFailure(t *testing.T) {
	base := newTestServer(t, &stubSource{products: sampleCatalog(), detailErr: domain.ErrCatalogUnavailable})

	resp, doc := getPage(t, newClient(t), base+"/products/1")

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, doc.Find(".error p").Text(), "unavailable")
}

func doJSON(t *testing.T, c *http.Client, method, target, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, target, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestAPIProducts(t *testing.T) {
	base := newTestServer(t, &stubSource{products: sampleCatalog()})
	c := newClient(t)

	var list dto.ProductListResponse
	status := doJSON(t, c, http.MethodGet, base+"/api/products?category=jewelery", "", &list)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, 3, list.Products[0].ID)
	assert.Equal(t, 5, list.Products[0].Stars)
	assert.False(t, list.Products[0].Rated)
	assert.Equal(t, []string{"men's clothing", "jewelery"}, list.Categories)

	var product dto.ProductResponse
	status = doJSON(t, c, http.MethodGet, base+"/api/products/2", "", &product)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Slim Fit T-Shirts", product.Title)

	var errResp struct {
		Error string `json:"error"`
	}
	status = doJSON(t, c, http.MethodGet, base+"/api/products/99", "", &errResp)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", errResp.Error)
}

func TestAPICart(t *testing.T) {
	base := newTestServer(t, &stubSource{products: sampleCatalog()})
	c := newClient(t)

	var cart dto.CartResponse
	status := doJSON(t, c, http.MethodPost, base+"/api/cart", `{"product_id":1}`, &cart)
	require.Equal(t, http.StatusOK, status)
	status = doJSON(t, c, http.MethodPost, base+"/api/cart", `{"product_id":1}`, &cart)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, cart.Entries, 1)
	assert.Equal(t, 2, cart.Entries[0].Quantity)
	assert.Equal(t, 2, cart.Count)
	assert.InDelta(t, 219.9, cart.Subtotal, 0.001)

	status = doJSON(t, c, http.MethodGet, base+"/api/cart", "", &cart)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, cart.Count)

	status = doJSON(t, c, http.MethodDelete, base+"/api/cart/1", "", &cart)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, cart.Entries)

	assert.Equal(t, http.StatusNotFound, doJSON(t, c, http.MethodPost, base+"/api/cart", `{"product_id":42}`, nil))
	assert.Equal(t, http.StatusBadRequest, doJSON(t, c, http.MethodPost, base+"/api/cart", `{`, nil))
}

func TestAPIRatings(t *testing.T) {
	base := newTestServer(t, &stubSource{products: sampleCatalog()})
	c := newClient(t)

	var ratings dto.RatingsResponse
	status := doJSON(t, c, http.MethodPut, base+"/api/ratings/2", `{"stars":1}`, &ratings)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, domain.RatingMap{2: 1}, ratings.Ratings)

	status = doJSON(t, c, http.MethodGet, base+"/api/ratings", "", &ratings)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, domain.RatingMap{2: 1}, ratings.Ratings)

	var product dto.ProductResponse
	doJSON(t, c, http.MethodGet, base+"/api/products/2", "", &product)
	assert.Equal(t, 1, product.Stars)
	assert.True(t, product.Rated)

	assert.Equal(t, http.StatusUnprocessableEntity, doJSON(t, c, http.MethodPut, base+"/api/ratings/2", `{"stars":9}`, nil))
	assert.Equal(t, http.StatusNotFound, doJSON(t, c, http.MethodPut, base+"/api/ratings/99", `{"stars":3}`, nil))
}

func TestRequestLogsCarryMatchedRoute(t *testing.T) {
	var logs syncBuffer
	base := startServer(t, testServer{source: &stubSource{products: sampleCatalog()}, logs: &logs})
	c := newClient(t)

	require.Equal(t, http.StatusOK, doJSON(t, c, http.MethodPost, base+"/api/cart", `{"product_id":1}`, nil))
	postForm(t, c, base+"/cart", url.Values{"product_id": {"2"}})
	require.Equal(t, http.StatusNotFound, doJSON(t, c, http.MethodGet, base+"/api/products/7", "", nil))

	assert.Equal(t, []string{"/api/cart", "/cart"}, logs.routesLogged(t, "Product added to cart"))
	assert.Equal(t, []string{"/api/products/{id}"}, logs.routesLogged(t, "Product not found"))
}

func TestHealthAndMetrics(t *testing.T) {
	base := newTestServer(t, &stubSource{products: sampleCatalog()})

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Cookies())
}
