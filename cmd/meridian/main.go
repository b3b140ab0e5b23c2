package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/auth"
	"github.com/meridian-erp/meridian-erp/internal/customers"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/invoices"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/orders"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/supplychain"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	validate := validator.New()
	auditLogger := shared.NewAuditLogger(pool)
	metrics := observability.NewMetrics()

	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	authService := auth.NewService(auth.NewRepository(pool), issuer)
	authHandler := auth.NewHandler(logger, authService)
	authMiddleware := auth.Middleware{Issuer: issuer}
	rbacMiddleware := rbac.Middleware{Logger: logger}

	engine := inventory.NewEngine()
	lowStockCache := inventory.NewLowStockCache(redisClient, cfg.LowStockCacheTTL)

	inventoryService := inventory.NewService(inventory.NewRepository(pool), engine, lowStockCache, auditLogger, logger)
	inventoryHandler := inventory.NewHandler(inventoryService, validate, rbacMiddleware, logger)

	customersService := customers.NewService(customers.NewRepository(pool), auditLogger, logger)
	customersHandler := customers.NewHandler(customersService, validate, rbacMiddleware, logger)

	ordersService := orders.NewService(orders.NewRepository(pool), engine, auditLogger, logger)

	invoicesService := invoices.NewService(invoices.NewRepository(pool), auditLogger, logger)
	invoicesHandler := invoices.NewHandler(invoicesService, validate, rbacMiddleware, logger)

	ordersHandler := orders.NewHandler(ordersService, invoicesService, validate, rbacMiddleware, logger)

	supplyChainService := supplychain.NewService(supplychain.NewRepository(pool), engine, ordersService, auditLogger, logger)
	supplyChainHandler := supplychain.NewHandler(supplyChainService, validate, rbacMiddleware, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthMiddleware:     authMiddleware,
		AuthHandler:        authHandler,
		CustomersHandler:   customersHandler,
		InventoryHandler:   inventoryHandler,
		OrdersHandler:      ordersHandler,
		InvoicesHandler:    invoicesHandler,
		SupplyChainHandler: supplyChainHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
