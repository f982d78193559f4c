package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/addresses"
	"github.com/angelmondragon/storefront-backend/internal/auth"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/auth/session"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type shippingMethods interface {
	ListActive(ctx context.Context) ([]models.ShippingMethod, error)
}

// Dependencies carries everything the HTTP surface calls into.
type Dependencies struct {
	DB          pinger
	Redis       pinger
	Idempotency pkgredis.IdempotencyStore
	RateLimits  middleware.RateLimitStore
	Sessions    session.AccessSessionChecker
	Metrics     prometheus.Gatherer

	Auth      auth.Service
	Products  products.Service
	Inventory inventory.Service
	Shipping  shippingMethods
	Cart      cart.Service
	GuestCart controllers.GuestCartStore
	Checkout  checkoutsvc.Service
	Orders    orders.Service
	Addresses addresses.Service
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
		middleware.Logging(logg),
	)

	idempotent := middleware.Idempotency(deps.Idempotency, middleware.IdempotencyConfig{
		CheckoutTTL: cfg.Checkout.IdempotencyTTL,
	}, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg,
			controllers.Dependency{Name: "database", Pinger: deps.DB},
			controllers.Dependency{Name: "redis", Pinger: deps.Redis},
		))
	})

	if deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	loginLimit := middleware.RateLimit(middleware.RateLimitPolicy{
		Name:       "login",
		Window:     cfg.RateLimit.LoginWindow,
		IPLimit:    cfg.RateLimit.LoginIPLimit,
		EmailLimit: cfg.RateLimit.LoginEmailLimit,
	}, deps.RateLimits, logg)
	registerLimit := middleware.RateLimit(middleware.RateLimitPolicy{
		Name:       "register",
		Window:     cfg.RateLimit.RegisterWindow,
		IPLimit:    cfg.RateLimit.RegisterIPLimit,
		EmailLimit: cfg.RateLimit.RegisterEmailLimit,
	}, deps.RateLimits, logg)

	guestCarts := controllers.GuestCarts(deps.GuestCart)
	userCarts := controllers.UserCarts(deps.Cart)

	r.Route("/api/public/v1", func(r chi.Router) {
		r.Use(middleware.GuestSession(logg))

		r.Get("/products", controllers.ProductsList(deps.Products, logg))
		r.Get("/products/{id}", controllers.ProductGet(deps.Products, logg))
		r.Get("/shipping-methods", controllers.ShippingMethodsList(deps.Shipping, logg))

		r.Route("/cart", func(r chi.Router) {
			mountCart(r, guestCarts, logg)
		})

		r.Route("/auth", func(r chi.Router) {
			r.With(registerLimit).Post("/register", controllers.AuthRegister(deps.Auth, logg))
			r.Post("/confirm", controllers.AuthConfirm(deps.Auth, logg))
			r.With(loginLimit).Post("/login", controllers.AuthLogin(deps.Auth, logg))
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))

		r.Route("/cart", func(r chi.Router) {
			mountCart(r, userCarts, logg)
		})
		r.With(idempotent).Post("/checkout", controllers.Checkout(deps.Checkout, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.OrdersList(deps.Orders, logg))
			r.Get("/{id}", controllers.OrderGet(deps.Orders, logg))
		})

		r.Route("/addresses", func(r chi.Router) {
			r.Get("/", controllers.AddressesList(deps.Addresses, logg))
			r.Post("/", controllers.AddressCreate(deps.Addresses, logg))
			r.Post("/{id}/default-shipping", controllers.AddressSetDefault(deps.Addresses, false, logg))
			r.Post("/{id}/default-billing", controllers.AddressSetDefault(deps.Addresses, true, logg))
		})

		r.Post("/auth/logout", controllers.AuthLogout(deps.Auth, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
		r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))

		r.Patch("/products/{id}", controllers.AdminProductUpdate(deps.Products, logg))
		r.With(idempotent).Put("/products/{id}/stock", controllers.AdminProductStock(deps.Inventory, logg))
		r.With(idempotent).Post("/orders/{id}/status", controllers.AdminOrderStatus(deps.Orders, logg))
	})

	return r
}

func mountCart(r chi.Router, resolve controllers.CartResolver, logg *logger.Logger) {
	r.Get("/", controllers.CartFetch(resolve, logg))
	r.Delete("/", controllers.CartClear(resolve, logg))
	r.Post("/items", controllers.CartAddItem(resolve, logg))
	r.Put("/items/{productId}", controllers.CartSetItem(resolve, logg))
	r.Delete("/items/{productId}", controllers.CartRemoveItem(resolve, logg))
}
