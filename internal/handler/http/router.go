package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/middleware"
)

// RouterConfig collects the dependencies for the HTTP router.
type RouterConfig struct {
	CartService     *service.CartService
	CheckoutService *service.CheckoutService
	OrderService    *service.OrderService
	ProductService  *service.ProductService
	HealthHandler   *health.Handler
	Logger          *slog.Logger
	RateLimitRPS    int
	RateLimitBurst  int
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.PrometheusMetrics("storefront"))
	r.Use(middleware.Tracing("storefront"))
	r.Use(middleware.RequestLogger(cfg.Logger))
	if cfg.RateLimitRPS > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.Logger))
	}

	// Health check endpoints
	r.Get("/health/live", cfg.HealthHandler.LivenessHandler())
	r.Get("/health/ready", cfg.HealthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	cartHandler := NewCartHandler(cfg.CartService, cfg.Logger)
	orderHandler := NewOrderHandler(cfg.OrderService, cfg.CheckoutService, cfg.Logger)
	productHandler := NewProductHandler(cfg.ProductService, cfg.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		// Catalog endpoints are public.
		r.Route("/products", func(r chi.Router) {
			r.Get("/", productHandler.ListProducts)
			r.Get("/{productID}", productHandler.GetProduct)
			r.Post("/", productHandler.CreateProduct)
		})

		// Cart and order endpoints need an authenticated user.
		r.Group(func(r chi.Router) {
			r.Use(UserIDFromHeader)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartHandler.GetCart)
				r.Delete("/", cartHandler.ClearCart)

				r.Post("/items", cartHandler.AddItem)
				r.Put("/items/{productID}", cartHandler.UpdateItemQuantity)
				r.Delete("/items/{productID}", cartHandler.RemoveItem)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", orderHandler.ListOrders)
				r.Post("/", orderHandler.Checkout)
				r.Get("/{orderID}", orderHandler.GetOrder)
			})
		})
	})

	return r
}
