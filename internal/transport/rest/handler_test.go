package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visushop/storefront/internal/cart"
	"github.com/visushop/storefront/internal/catalog"
	"github.com/visushop/storefront/internal/search"
	"github.com/visushop/storefront/pkg/config"
	"github.com/visushop/storefront/pkg/web"
)

const testBackendURL = "http://backend:5000"

// mockCatalog serves the product endpoints without a network.
type mockCatalog struct {
	products   []catalog.Product
	categories []catalog.Category
	product    *catalog.Product
	err        error
}

func (m *mockCatalog) RandomProducts(context.Context, int) ([]catalog.Product, error) {
	return m.products, m.err
}

func (m *mockCatalog) Categories(context.Context) ([]catalog.Category, error) {
	return m.categories, m.err
}

func (m *mockCatalog) Products(context.Context, catalog.ProductFilters) (catalog.SearchResult, error) {
	if m.err != nil {
		return catalog.SearchResult{Results: []catalog.Product{}}, m.err
	}
	return catalog.SearchResult{Results: m.products, Count: len(m.products)}, nil
}

func (m *mockCatalog) ProductByID(context.Context, catalog.ID) (*catalog.Product, error) {
	return m.product, m.err
}

func (m *mockCatalog) ImageURL(imagePath string) string {
	return catalog.ResolveImageURL(testBackendURL, imagePath)
}

// stubBackend stands in for the retrieval backend behind a real dispatcher.
// When gate is set, the first call blocks on it so a test can overlap two
// in-flight searches.
type stubBackend struct {
	result catalog.SearchResult
	err    error
	gate   chan struct{}
	calls  atomic.Int32
}

func (b *stubBackend) SearchText(context.Context, string, int) (catalog.SearchResult, error) {
	return b.respond()
}

func (b *stubBackend) SearchImage(context.Context, catalog.ImageFile, int, float64) (catalog.SearchResult, error) {
	return b.respond()
}

func (b *stubBackend) SearchHybrid(context.Context, *catalog.ImageFile, string, int, float64) (catalog.SearchResult, error) {
	return b.respond()
}

func (b *stubBackend) respond() (catalog.SearchResult, error) {
	if b.gate != nil && b.calls.Add(1) == 1 {
		<-b.gate
	} else if b.gate == nil {
		b.calls.Add(1)
	}
	return b.result, b.err
}

// testEnv wires the full route table and keeps the session cookie across
// requests, the way a browser would.
type testEnv struct {
	mux     *chi.Mux
	backend *stubBackend
	catalog *mockCatalog
	session *http.Cookie
}

func newTestEnv() *testEnv {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend := &stubBackend{result: catalog.SearchResult{Results: []catalog.Product{}}}
	mc := &mockCatalog{}
	searchCfg := config.SearchConfig{Limit: 50, TopK: 50, MinSimilarity: 0.5, PageSize: 12}
	dispatcher := search.NewDispatcher(backend, searchCfg, logger)
	carts := cart.NewManager(cart.NewMemoryPersister(), logger)

	mux := chi.NewRouter()
	handler := NewHandler(mc, dispatcher, carts, searchCfg.PageSize, logger)
	handler.RegisterRoutes(mux)

	return &testEnv{mux: mux, backend: backend, catalog: mc}
}

func (e *testEnv) do(t *testing.T, method, target, contentType string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if e.session != nil {
		req.AddCookie(e.session)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == web.SessionCookie {
			e.session = cookie
		}
	}
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// multipartImage builds a multipart body whose image part declares an explicit
// content type, as browsers do.
func multipartImage(t *testing.T, filename, contentType string, data []byte, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
		header.Set("Content-Type", contentType)
		part, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for key, value := range fields {
		require.NoError(t, mw.WriteField(key, value))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func searchProduct(id, name, category string, price float64, score float64) catalog.Product {
	return catalog.Product{
		ID:              catalog.ID(id),
		Name:            name,
		Category:        category,
		Price:           decimal.NewFromFloat(price),
		ImagePath:       "jouets/" + id + ".jpg",
		SimilarityScore: &score,
	}
}

func Test_SearchText_NoMatches(t *testing.T) {
	env := newTestEnv()

	// when: the backend finds nothing for the query
	rec := env.do(t, http.MethodGet, "/api/v1/search/text?q=peluche+introuvable", "", nil)

	// then: an empty grid, not an error
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[searchResponse](t, rec)
	assert.NotNil(t, body.Results)
	assert.Empty(t, body.Results)
	assert.Equal(t, 0, body.Count)
	assert.Equal(t, 1, body.Page)
	assert.Equal(t, 1, body.TotalPages)
}

func Test_SearchText_MissingQuery(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodGet, "/api/v1/search/text?q=++", "", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, env.backend.calls.Load())
}

func Test_SearchText_FiltersAndDecorates(t *testing.T) {
	env := newTestEnv()
	env.backend.result = catalog.SearchResult{
		Results: []catalog.Product{
			searchProduct("1", "Peluche ours", "Jouets", 19.99, 0.9),
			searchProduct("2", "Roman", "Livres", 9.99, 0.8),
			searchProduct("3", "Peluche lapin", "Jouets", 14.99, 0.7),
		},
		Count: 3,
	}

	// when: a category filter rides along with a text search
	rec := env.do(t, http.MethodGet, "/api/v1/search/text?q=peluche&category=Jouets&sort=price-asc", "", nil)

	// then: count reflects the whole filtered set and image URLs are resolved
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[searchResponse](t, rec)
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Results, 2)
	assert.Equal(t, catalog.ID("3"), body.Results[0].ID)
	assert.Equal(t, catalog.ID("1"), body.Results[1].ID)
	assert.Equal(t, testBackendURL+"/dataset/images/jouets/3.jpg", body.Results[0].ImageURL)
}

func Test_SearchText_Pagination(t *testing.T) {
	env := newTestEnv()
	results := make([]catalog.Product, 25)
	for i := range results {
		results[i] = searchProduct(fmt.Sprintf("%d", i+1), "Peluche", "Jouets", 10, 0.5)
	}
	env.backend.result = catalog.SearchResult{Results: results, Count: 25}

	rec := env.do(t, http.MethodGet, "/api/v1/search/text?q=peluche&page=3", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[searchResponse](t, rec)
	assert.Equal(t, 25, body.Count, "count is the filtered set, not the page")
	assert.Len(t, body.Results, 1)
	assert.Equal(t, 3, body.Page)
	assert.Equal(t, 3, body.TotalPages)
}

func Test_SearchText_OtherSessionDoesNotSupersede(t *testing.T) {
	// given: one browser session's search blocks inside the backend
	env := newTestEnv()
	env.backend.gate = make(chan struct{})
	env.backend.result = catalog.SearchResult{
		Results: []catalog.Product{searchProduct("1", "Peluche", "Jouets", 19.99, 0.9)},
		Count:   1,
	}

	doSearch := func(sessionID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/search/text?q=peluche", nil)
		req.AddCookie(&http.Cookie{Name: web.SessionCookie, Value: sessionID})
		rec := httptest.NewRecorder()
		env.mux.ServeHTTP(rec, req)
		return rec
	}

	slowDone := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		slowDone <- doSearch("session-a")
	}()
	require.Eventually(t, func() bool {
		return env.backend.calls.Load() == 1
	}, time.Second, 5*time.Millisecond, "first search never reached the backend")

	// when: a different session runs the same kind of search meanwhile
	rec := doSearch("session-b")
	require.Equal(t, http.StatusOK, rec.Code)

	close(env.backend.gate)

	// then: the slower session still gets its own valid results
	slow := <-slowDone
	require.Equal(t, http.StatusOK, slow.Code)
	body := decodeBody[searchResponse](t, slow)
	assert.Equal(t, 1, body.Count)
}

func Test_SearchText_NewerSearchInSameSessionSupersedes(t *testing.T) {
	env := newTestEnv()
	env.backend.gate = make(chan struct{})
	env.backend.result = catalog.SearchResult{
		Results: []catalog.Product{searchProduct("1", "Peluche", "Jouets", 19.99, 0.9)},
		Count:   1,
	}

	doSearch := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/search/text?q=peluche", nil)
		req.AddCookie(&http.Cookie{Name: web.SessionCookie, Value: "session-a"})
		rec := httptest.NewRecorder()
		env.mux.ServeHTTP(rec, req)
		return rec
	}

	slowDone := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		slowDone <- doSearch()
	}()
	require.Eventually(t, func() bool {
		return env.backend.calls.Load() == 1
	}, time.Second, 5*time.Millisecond)

	// when: the same session fires a newer search before the first returns
	rec := doSearch()
	require.Equal(t, http.StatusOK, rec.Code)

	close(env.backend.gate)

	// then: the stale completion is rejected, never shown over the newer one
	slow := <-slowDone
	require.Equal(t, http.StatusConflict, slow.Code)
	errBody := decodeBody[map[string]string](t, slow)
	assert.Contains(t, errBody["error"], "superseded")
}

func Test_SearchImage_CategoryFilterIsIgnored(t *testing.T) {
	env := newTestEnv()
	env.backend.result = catalog.SearchResult{
		Results: []catalog.Product{
			searchProduct("1", "Peluche", "Jouets", 19.99, 0.9),
			searchProduct("2", "Roman", "Livres", 9.99, 0.8),
		},
		Count: 2,
	}
	body, contentType := multipartImage(t, "query.jpg", "image/jpeg", []byte{0xFF, 0xD8, 0xFF}, nil)

	// when: the same category filter that narrows text results
	rec := env.do(t, http.MethodPost, "/api/v1/search/image?category=Jouets", contentType, body)

	// then: image results are never category-filtered
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[searchResponse](t, rec)
	assert.Equal(t, 2, resp.Count)
}

func Test_SearchImage_RejectsOversizedUpload(t *testing.T) {
	env := newTestEnv()
	oversized := make([]byte, search.MaxImageBytes+1)
	body, contentType := multipartImage(t, "huge.jpg", "image/jpeg", oversized, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/search/image", contentType, body)

	// then: rejected before the backend is ever contacted
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errBody := decodeBody[map[string]string](t, rec)
	assert.Contains(t, errBody["error"], "maximum size")
	assert.Zero(t, env.backend.calls.Load())
}

func Test_SearchImage_RejectsUnsupportedType(t *testing.T) {
	env := newTestEnv()
	body, contentType := multipartImage(t, "notes.txt", "text/plain", []byte("not an image"), nil)

	rec := env.do(t, http.MethodPost, "/api/v1/search/image", contentType, body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	errBody := decodeBody[map[string]string](t, rec)
	assert.Contains(t, errBody["error"], "unsupported image type")
	assert.Zero(t, env.backend.calls.Load())
}

func Test_SearchImage_MissingFile(t *testing.T) {
	env := newTestEnv()
	body, contentType := multipartImage(t, "", "", nil, map[string]string{"query": "x"})

	rec := env.do(t, http.MethodPost, "/api/v1/search/image", contentType, body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, env.backend.calls.Load())
}

func Test_SearchHybrid_QueryOnly(t *testing.T) {
	env := newTestEnv()
	env.backend.result = catalog.SearchResult{
		Results: []catalog.Product{searchProduct("1", "Peluche", "Jouets", 19.99, 0.9)},
		Count:   1,
	}
	body, contentType := multipartImage(t, "", "", nil, map[string]string{"query": "peluche rouge"})

	rec := env.do(t, http.MethodPost, "/api/v1/search/hybrid", contentType, body)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[searchResponse](t, rec)
	assert.Equal(t, 1, resp.Count)
}

func Test_RandomProducts(t *testing.T) {
	env := newTestEnv()
	env.catalog.products = []catalog.Product{
		searchProduct("1", "Peluche", "Jouets", 19.99, 0.9),
	}

	rec := env.do(t, http.MethodGet, "/api/v1/products/random", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]json.RawMessage](t, rec)
	var products []catalog.Product
	require.NoError(t, json.Unmarshal(body["products"], &products))
	require.Len(t, products, 1)
	assert.Equal(t, testBackendURL+"/dataset/images/jouets/1.jpg", products[0].ImageURL)
}

func Test_Categories(t *testing.T) {
	env := newTestEnv()
	env.catalog.categories = []catalog.Category{
		{Category: "Jouets", ImagePath: "jouets/peluche_01.jpg"},
	}

	rec := env.do(t, http.MethodGet, "/api/v1/products/categories", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]json.RawMessage](t, rec)
	var categories []catalog.Category
	require.NoError(t, json.Unmarshal(body["categories"], &categories))
	require.Len(t, categories, 1)
	assert.Equal(t, testBackendURL+"/dataset/images/jouets/peluche_01.jpg", categories[0].ImageURL)
}

func Test_ProductByID_BackendErrorIsRelayed(t *testing.T) {
	env := newTestEnv()
	env.catalog.err = &catalog.APIError{Status: http.StatusNotFound, Message: "Produit non trouvé"}

	rec := env.do(t, http.MethodGet, "/api/v1/products/42", "", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "Produit non trouvé", body["error"])
}

func Test_Products_BackendTimeout(t *testing.T) {
	env := newTestEnv()
	env.catalog.err = &catalog.TimeoutError{URL: testBackendURL + "/api/products", Attempts: 3}

	rec := env.do(t, http.MethodGet, "/api/v1/products", "", nil)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func Test_Products_BackendUnreachable(t *testing.T) {
	env := newTestEnv()
	env.catalog.err = &catalog.NetworkError{URL: testBackendURL, Err: fmt.Errorf("connection refused")}

	rec := env.do(t, http.MethodGet, "/api/v1/products", "", nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func Test_Cart_SessionCookieIsMinted(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodGet, "/api/v1/cart", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.session, "first response must set the session cookie")
	assert.True(t, env.session.HttpOnly)
}

func Test_Cart_AddRemoveClearFlow(t *testing.T) {
	env := newTestEnv()
	item := `{"productId": "1", "name": "Peluche ours", "price": 19.99, "image_path": "jouets/peluche_01.jpg"}`

	// when: the same product is added twice within one session
	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", "application/json", strings.NewReader(item))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/v1/cart/items", "application/json", strings.NewReader(item))
	require.Equal(t, http.StatusOK, rec.Code)

	added := decodeBody[map[string]any](t, rec)
	assert.Equal(t, float64(2), added["quantity"])
	assert.Equal(t, float64(2), added["count"])

	// then: one line with quantity 2
	rec = env.do(t, http.MethodGet, "/api/v1/cart", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snapshot := decodeBody[cart.Snapshot](t, rec)
	require.Len(t, snapshot.Lines, 1)
	assert.Equal(t, 2, snapshot.Lines[0].Quantity)
	assert.Equal(t, 2, snapshot.Count)
	assert.True(t, snapshot.Total.Equal(decimal.NewFromFloat(39.98)))

	// removing an absent product changes nothing
	rec = env.do(t, http.MethodDelete, "/api/v1/cart/items/999", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snapshot = decodeBody[cart.Snapshot](t, rec)
	assert.Equal(t, 2, snapshot.Count)

	// removing the product drops the whole line
	rec = env.do(t, http.MethodDelete, "/api/v1/cart/items/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snapshot = decodeBody[cart.Snapshot](t, rec)
	assert.Empty(t, snapshot.Lines)

	// and clear always succeeds
	rec = env.do(t, http.MethodDelete, "/api/v1/cart", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func Test_Cart_IsPerSession(t *testing.T) {
	env := newTestEnv()
	item := `{"productId": "1", "name": "Peluche", "price": 19.99}`
	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", "application/json", strings.NewReader(item))
	require.Equal(t, http.StatusOK, rec.Code)

	// when: a second browser session asks for its cart
	other := newTestEnv()
	other.mux = env.mux
	rec = other.do(t, http.MethodGet, "/api/v1/cart", "", nil)

	// then: it starts empty
	require.Equal(t, http.StatusOK, rec.Code)
	snapshot := decodeBody[cart.Snapshot](t, rec)
	assert.Empty(t, snapshot.Lines)
}

func Test_AddCartItem_Validation(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "missing product id", body: `{"name": "Peluche", "price": 19.99}`},
		{name: "missing name", body: `{"productId": "1", "price": 19.99}`},
		{name: "malformed json", body: `{"productId": `},
		{name: "negative price", body: `{"productId": "1", "name": "Peluche", "price": -1}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv()
			rec := env.do(t, http.MethodPost, "/api/v1/cart/items", "application/json", strings.NewReader(tc.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func Test_HealthCheck(t *testing.T) {
	env := newTestEnv()
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
