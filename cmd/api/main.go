package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/addresses"
	"github.com/angelmondragon/storefront-backend/internal/auth"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/cartmerge"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/shipping"
	"github.com/angelmondragon/storefront-backend/internal/users"
	"github.com/angelmondragon/storefront-backend/pkg/auth/session"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	"github.com/angelmondragon/storefront-backend/pkg/security"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.LogFormat == "console",
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	deps, err := buildDependencies(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "api server shutting down gracefully")
}

func buildDependencies(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (routes.Dependencies, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	gdb := dbClient.DB()
	events := outbox.NewService(outbox.NewRepository(gdb), logg)
	productRepo := products.NewRepository(gdb)
	inventoryRepo := inventory.NewRepository(gdb)
	cartRepo := cart.NewRepository(gdb)
	ordersRepo := orders.NewRepository(gdb)
	shippingRepo := shipping.NewRepository(gdb)

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("session manager: %w", err)
	}

	productService, err := products.NewService(productRepo, logg)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("products service: %w", err)
	}

	inventoryService, err := inventory.NewService(inventoryRepo, dbClient, events, logg)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("inventory service: %w", err)
	}

	addressService, err := addresses.NewService(addresses.NewRepository(gdb), dbClient)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("addresses service: %w", err)
	}

	cartService, err := cart.NewService(cart.ServiceParams{
		Repo:      cartRepo,
		Inventory: inventoryRepo,
		Tx:        dbClient,
		Metrics:   checkoutMetrics,
		Logger:    logg,
	})
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("cart service: %w", err)
	}

	guestCarts, err := cart.NewGuestStore(redisClient, productRepo, cfg.Cart.GuestCartTTL)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("guest cart store: %w", err)
	}

	merger, err := cartmerge.NewService(cartmerge.ServiceParams{
		Pending:    cartmerge.NewPendingRepository(gdb),
		Cart:       cartService,
		Tx:         dbClient,
		PendingTTL: cfg.Cart.PendingCartTTL,
		Metrics:    checkoutMetrics,
		Logger:     logg,
	})
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("cart merge service: %w", err)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		Users:          users.NewRepository(gdb),
		Hasher:         security.NewHasher(cfg.Password),
		SessionManager: sessionManager,
		GuestCarts:     guestCarts,
		Merger:         merger,
		Tokens:         redisClient,
		Mailer:         auth.NewLogMailer(logg),
		JWTConfig:      cfg.JWT,
		AuthConfig:     cfg.Auth,
		Logger:         logg,
	})
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("auth service: %w", err)
	}

	threshold, err := decimal.NewFromString(cfg.Checkout.FreeShippingThreshold)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("free shipping threshold: %w", err)
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Tx:                    dbClient,
		Addresses:             addressService,
		Shipping:              shippingRepo,
		Cart:                  cartRepo,
		Products:              productRepo,
		Inventory:             inventoryRepo,
		Orders:                ordersRepo,
		Events:                events,
		Metrics:               checkoutMetrics,
		Logger:                logg,
		FreeShippingThreshold: threshold,
		Timeout:               cfg.Checkout.TxTimeout,
	})
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("checkout service: %w", err)
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:      ordersRepo,
		Inventory: inventoryRepo,
		Tx:        dbClient,
		Events:    events,
		Logger:    logg,
	})
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("orders service: %w", err)
	}

	return routes.Dependencies{
		DB:          dbClient,
		Redis:       redisClient,
		Idempotency: redisClient,
		RateLimits:  redisClient,
		Sessions:    sessionManager,
		Metrics:     registry,
		Auth:        authService,
		Products:    productService,
		Inventory:   inventoryService,
		Shipping:    shippingRepo,
		Cart:        cartService,
		GuestCart:   guestCarts,
		Checkout:    checkoutService,
		Orders:      ordersService,
		Addresses:   addressService,
	}, nil
}
