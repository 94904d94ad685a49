// Package app contains the application setup for the storefront.
package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/visushop/storefront/internal/cart"
	"github.com/visushop/storefront/internal/catalog"
	"github.com/visushop/storefront/internal/config"
	"github.com/visushop/storefront/internal/search"
	"github.com/visushop/storefront/internal/transport/rest"
	"github.com/visushop/storefront/pkg/server"
)

type Dependencies struct {
	Catalog    *catalog.Client
	Dispatcher *search.Dispatcher
	Carts      *cart.Manager
	PageSize   int
	Logger     *slog.Logger
}

func SetupDependencies(redisClient *redis.Client, cfg *config.Config, logger *slog.Logger) *Dependencies {
	catalogClient := catalog.NewClient(cfg.Backend, logger)
	return &Dependencies{
		Catalog:    catalogClient,
		Dispatcher: search.NewDispatcher(catalogClient, cfg.Search, logger),
		Carts:      cart.NewManager(cart.NewRedisPersister(redisClient), logger),
		PageSize:   cfg.Search.PageSize,
		Logger:     logger,
	}
}

// SetupHttpHandler initializes the router and routes of the storefront API.
// Used by tests to exercise the full HTTP surface without a listener.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	wireRoutes(mux, deps)
	return mux
}

// wireRoutes sets up the HTTP routes of the storefront API.
func wireRoutes(mux *chi.Mux, deps *Dependencies) {
	handler := rest.NewHandler(deps.Catalog, deps.Dispatcher, deps.Carts, deps.PageSize, deps.Logger)
	handler.RegisterRoutes(mux)
}

// SetupHttpServer creates and configures the storefront HTTP server.
func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {
	mux := SetupHttpHandler(deps)

	httpCfg := server.HTTPConfig{
		Port:           cfg.HTTPServer.Port,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		ReadTimeout:    cfg.HTTPServer.Timeout.Read,
		WriteTimeout:   cfg.HTTPServer.Timeout.Write,
		IdleTimeout:    cfg.HTTPServer.Timeout.Idle,
		ReadHeader:     cfg.HTTPServer.Timeout.ReadHeader,
	}

	return server.NewHTTPServer(httpCfg, mux)
}
