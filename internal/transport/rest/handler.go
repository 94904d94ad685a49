// Package rest provides the browser-facing HTTP handlers of the storefront.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/visushop/storefront/internal/cart"
	"github.com/visushop/storefront/internal/catalog"
	"github.com/visushop/storefront/internal/search"
	"github.com/visushop/storefront/pkg/web"
)

const defaultRandomCount = 8

// Catalog is the slice of the backend client the handlers need.
type Catalog interface {
	RandomProducts(ctx context.Context, count int) ([]catalog.Product, error)
	Categories(ctx context.Context) ([]catalog.Category, error)
	Products(ctx context.Context, filters catalog.ProductFilters) (catalog.SearchResult, error)
	ProductByID(ctx context.Context, id catalog.ID) (*catalog.Product, error)
	ImageURL(imagePath string) string
}

// Searcher dispatches validated queries to the retrieval backend.
type Searcher interface {
	SearchText(ctx context.Context, query string) (catalog.SearchResult, error)
	SearchImage(ctx context.Context, img catalog.ImageFile) (catalog.SearchResult, error)
	SearchHybrid(ctx context.Context, img *catalog.ImageFile, query string) (catalog.SearchResult, error)
}

type Handler struct {
	catalog  Catalog
	searcher Searcher
	carts    *cart.Manager
	pageSize int
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates the storefront API handler.
func NewHandler(catalogClient Catalog, searcher Searcher, carts *cart.Manager, pageSize int, logger *slog.Logger) *Handler {
	if pageSize <= 0 {
		pageSize = search.DefaultPageSize
	}
	return &Handler{
		catalog:  catalogClient,
		searcher: searcher,
		carts:    carts,
		pageSize: pageSize,
		validate: validator.New(),
		logger:   logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the HTTP routes of the storefront API.
func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(web.SessionMiddleware)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.Products)
			r.Get("/random", h.RandomProducts)
			r.Get("/categories", h.Categories)
			r.Get("/{id}", h.ProductByID)
		})

		r.Route("/search", func(r chi.Router) {
			r.Get("/text", h.SearchText)
			r.Post("/image", h.SearchImage)
			r.Post("/hybrid", h.SearchHybrid)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.Cart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddCartItem)
			r.Delete("/items/{id}", h.RemoveCartItem)
		})
	})

	r.Get("/healthz", h.HealthCheck)
}

// RandomProducts serves the home view's catalog sample.
func (h *Handler) RandomProducts(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	count, ok := web.ParseOptionalGt(r, w, mLogger, "count", 0, defaultRandomCount)
	if !ok {
		return
	}
	products, err := h.catalog.RandomProducts(r.Context(), count)
	if err != nil {
		h.respondBackendError(w, r, mLogger, err, "Failed to fetch random products")
		return
	}
	h.decorate(products)
	web.RespondJSON(w, mLogger, http.StatusOK, map[string]any{
		"products": products,
		"count":    len(products),
	})
}

// Categories serves the category strip, one representative image each.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	categories, err := h.catalog.Categories(r.Context())
	if err != nil {
		h.respondBackendError(w, r, mLogger, err, "Failed to fetch categories")
		return
	}
	for i := range categories {
		categories[i].ImageURL = h.catalog.ImageURL(categories[i].ImagePath)
	}
	web.RespondJSON(w, mLogger, http.StatusOK, map[string]any{
		"categories": categories,
		"count":      len(categories),
	})
}

// Products proxies the filtered catalog listing. Filtering happens backend
// side here; the local pipeline only applies to search results.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	limit, ok := web.ParseOptionalGt(r, w, mLogger, "limit", 0, 0)
	if !ok {
		return
	}
	offset, ok := web.ParseOptionalGte(r, w, mLogger, "offset", 0, 0)
	if !ok {
		return
	}
	q := r.URL.Query()
	filters := catalog.ProductFilters{
		Category: q.Get("category"),
		MinPrice: q.Get("min_price"),
		MaxPrice: q.Get("max_price"),
		Brand:    q.Get("brand"),
		Color:    q.Get("color"),
		Limit:    limit,
		Offset:   offset,
	}
	result, err := h.catalog.Products(r.Context(), filters)
	if err != nil {
		h.respondBackendError(w, r, mLogger, err, "Failed to fetch products")
		return
	}
	h.decorate(result.Results)
	web.RespondJSON(w, mLogger, http.StatusOK, result)
}

// ProductByID serves the product detail page data.
func (h *Handler) ProductByID(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	product, err := h.catalog.ProductByID(r.Context(), catalog.ID(id))
	if err != nil {
		h.respondBackendError(w, r, mLogger, err, fmt.Sprintf("Failed to fetch product %s", id))
		return
	}
	product.ImageURL = h.catalog.ImageURL(product.ImagePath)
	web.RespondJSON(w, mLogger, http.StatusOK, product)
}

// cartItemDto is the add-to-cart request body: the denormalized snapshot of
// the product being added.
type cartItemDto struct {
	ProductID string          `json:"productId" validate:"required"`
	Name      string          `json:"name"      validate:"required"`
	Price     decimal.Decimal `json:"price"`
	ImagePath string          `json:"image_path"`
}

// Cart returns the session cart with its derived count and total.
func (h *Handler) Cart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	store, ok := h.sessionCart(w, r, mLogger)
	if !ok {
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, store.Snapshot())
}

// AddCartItem adds a product to the session cart, incrementing the quantity
// of an existing line instead of duplicating it.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	store, ok := h.sessionCart(w, r, mLogger)
	if !ok {
		return
	}

	var dto cartItemDto
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			errorResponse := make(map[string]string)
			for _, fieldErr := range validationErrors {
				errorResponse[fieldErr.Field()] = "failed on rule: " + fieldErr.Tag()
			}
			mLogger.WarnContext(r.Context(), "Validation errors occurred", "errors", errorResponse)
			web.RespondJSON(w, mLogger, http.StatusBadRequest, map[string]any{"validation_errors": errorResponse})
			return
		}
		mLogger.ErrorContext(r.Context(), "Error validating request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if dto.Price.IsNegative() {
		web.RespondError(w, mLogger, http.StatusBadRequest, "Price must not be negative")
		return
	}

	quantity, err := store.Add(r.Context(), cart.Line{
		ProductID: catalog.ID(dto.ProductID),
		Name:      dto.Name,
		Price:     dto.Price,
		ImagePath: dto.ImagePath,
	})
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error persisting cart", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to update cart")
		return
	}
	mLogger.InfoContext(r.Context(), "Product added to cart", "product_id", dto.ProductID, "quantity", quantity)
	web.RespondJSON(w, mLogger, http.StatusOK, map[string]any{
		"productId": dto.ProductID,
		"quantity":  quantity,
		"count":     store.Count(),
	})
}

// RemoveCartItem deletes a cart line. Removing an absent product is a no-op.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	store, ok := h.sessionCart(w, r, mLogger)
	if !ok {
		return
	}
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	if err := store.Remove(r.Context(), catalog.ID(id)); err != nil {
		mLogger.ErrorContext(r.Context(), "Error persisting cart", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to update cart")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, store.Snapshot())
}

// ClearCart empties the session cart unconditionally.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	store, ok := h.sessionCart(w, r, mLogger)
	if !ok {
		return
	}
	if err := store.Clear(r.Context()); err != nil {
		mLogger.ErrorContext(r.Context(), "Error persisting cart", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to clear cart")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, store.Snapshot())
}

// HealthCheck is a simple health check endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// sessionCart resolves the cart store of the current session.
func (h *Handler) sessionCart(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*cart.Store, bool) {
	sessionID, ok := web.GetSessionID(r.Context())
	if !ok || sessionID == "" {
		logger.ErrorContext(r.Context(), "Missing session ID in request context")
		web.RespondError(w, logger, http.StatusInternalServerError, "Session not initialized")
		return nil, false
	}
	return h.carts.ForOwner(r.Context(), sessionID), true
}

// decorate resolves image URLs in place.
func (h *Handler) decorate(products []catalog.Product) {
	for i := range products {
		products[i].ImageURL = h.catalog.ImageURL(products[i].ImagePath)
	}
}

// respondBackendError maps client-wrapper errors onto HTTP statuses: backend
// APIErrors are relayed with their own status, timeouts become 504, other
// transport failures 502.
func (h *Handler) respondBackendError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, fallback string) {
	var apiErr *catalog.APIError
	if errors.As(err, &apiErr) {
		logger.WarnContext(r.Context(), "Backend returned an error", "status", apiErr.Status, "error", apiErr.Message)
		web.RespondError(w, logger, apiErr.Status, apiErr.Message)
		return
	}
	var timeoutErr *catalog.TimeoutError
	if errors.As(err, &timeoutErr) {
		logger.ErrorContext(r.Context(), "Backend request timed out", "error", err)
		web.RespondError(w, logger, http.StatusGatewayTimeout, "The request to the catalog backend timed out")
		return
	}
	var netErr *catalog.NetworkError
	if errors.As(err, &netErr) {
		logger.ErrorContext(r.Context(), "Backend unreachable", "error", err)
		web.RespondError(w, logger, http.StatusBadGateway, "The catalog backend is unreachable")
		return
	}
	logger.ErrorContext(r.Context(), fallback, "error", err)
	web.RespondError(w, logger, http.StatusInternalServerError, fallback)
}

// loggerWithReqID creates a logger with the request ID from the context.
func (h *Handler) loggerWithReqID(r *http.Request) *slog.Logger {
	reqID := middleware.GetReqID(r.Context())
	return h.logger.With("request_id", reqID)
}
