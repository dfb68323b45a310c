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

	"github.com/ikkim/storefront-backend/config"
	"github.com/ikkim/storefront-backend/internal/app/controller"
	"github.com/ikkim/storefront-backend/internal/app/repository"
	"github.com/ikkim/storefront-backend/internal/app/service"
	"github.com/ikkim/storefront-backend/internal/db"
	"github.com/ikkim/storefront-backend/internal/events"
	"github.com/ikkim/storefront-backend/internal/middleware"
	"github.com/ikkim/storefront-backend/internal/router"
	"github.com/ikkim/storefront-backend/internal/scheduler"
	"github.com/ikkim/storefront-backend/internal/storage"
	"github.com/ikkim/storefront-backend/pkg/carrier"
	"github.com/ikkim/storefront-backend/pkg/idempotency"
	"github.com/ikkim/storefront-backend/pkg/logger"
	"github.com/ikkim/storefront-backend/pkg/mailer"
	"github.com/ikkim/storefront-backend/pkg/payment/razorpay"
	"github.com/ikkim/storefront-backend/pkg/redis"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}

	// Initialize logger
	logLevel := "info"
	logFormat := "json"
	if cfg.Server.Environment == "development" {
		logLevel = "debug"
		logFormat = "console"
	}
	logger.Initialize(logger.Config{
		Level:       logLevel,
		Format:      logFormat,
		EnableColor: true,
	})

	logger.Info("Starting storefront backend", map[string]interface{}{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"log_level":   logLevel,
	})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize database
	if err := db.Initialize(&cfg.Database); err != nil {
		logger.Fatal("Failed to initialize database", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", err)
		}
	}()

	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	conn := db.GetDB()

	// Initialize repositories
	userRepo := repository.NewUserRepository(conn)
	productRepo := repository.NewProductRepository(conn)
	orderRepo := repository.NewOrderRepository(conn)
	couponRepo := repository.NewCouponRepository(conn)
	paymentRepo := repository.NewPaymentRepository(conn)
	shippingRepo := repository.NewShippingRepository(conn)
	returnRepo := repository.NewReturnRepository(conn)

	// External integrations. Each one is optional outside production.
	var gateway service.PaymentGateway
	rzp, err := razorpay.NewClient(razorpay.Config{
		KeyID:         cfg.Payment.Razorpay.KeyID,
		KeySecret:     cfg.Payment.Razorpay.KeySecret,
		WebhookSecret: cfg.Payment.Razorpay.WebhookSecret,
		Currency:      cfg.Payment.Razorpay.Currency,
		Timeout:       cfg.Payment.Razorpay.Timeout,
	})
	if err != nil {
		logger.Warn("Razorpay not configured; payment endpoints will fail", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		gateway = rzp
	}

	var shipmentCarrier service.ShipmentCarrier
	courier, err := carrier.NewClient(carrier.Config{
		Name:           cfg.Carrier.Name,
		BaseURL:        cfg.Carrier.BaseURL,
		APIToken:       cfg.Carrier.APIToken,
		PickupLocation: cfg.Carrier.PickupLocation,
		Timeout:        cfg.Carrier.Timeout,
	})
	if err != nil {
		logger.Warn("Carrier not configured; shipments and pickups stay pending", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		shipmentCarrier = courier
	}

	var notifier mailer.Notifier = mailer.LogNotifier{}
	if cfg.SMTP.Enabled() {
		notifier = mailer.NewSMTPNotifier(mailer.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			Timeout:  cfg.SMTP.Timeout,
		})
	}

	var claims idempotency.Store = idempotency.NewMemoryStore(24*time.Hour, time.Hour)
	if cfg.Redis.Enabled() {
		if err := redis.Init(&cfg.Redis); err != nil {
			logger.Warn("Redis unavailable; webhook claims kept in memory", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			claims = redis.NewClaimStore(redis.GetClient(), "storefront:webhook:")
			defer func() {
				if err := redis.Close(); err != nil {
					logger.Error("Failed to close Redis connection", err)
				}
			}()
		}
	}

	bus := events.NewBus()
	defer func() {
		if err := bus.Close(); err != nil {
			logger.Error("Failed to close event bus", err)
		}
	}()

	// Initialize services
	authService := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	couponService := service.NewCouponService(couponRepo, orderRepo)
	orderService := service.NewOrderService(conn, orderRepo, productRepo, couponService, bus, cfg.Pricing)
	paymentService := service.NewPaymentService(conn, paymentRepo, orderRepo, productRepo, couponRepo,
		orderService, gateway, claims, bus, notifier)
	shipmentService := service.NewShipmentService(conn, shippingRepo, orderRepo, shipmentCarrier)
	returnService := service.NewReturnService(conn, returnRepo, orderRepo, paymentRepo, orderService,
		couponService, gateway, shipmentCarrier, notifier, cfg.Returns)

	if err := bus.SubscribeOrderConfirmed(ctx, shipmentService.HandleOrderConfirmed); err != nil {
		logger.Fatal("Failed to subscribe to order events", err)
	}

	trackingScheduler := scheduler.NewTrackingScheduler(shipmentService, cfg.Scheduler.TrackingSpec, cfg.Scheduler.TrackingBatchSize)
	if err := trackingScheduler.Start(); err != nil {
		logger.Fatal("Failed to start tracking scheduler", err)
	}
	defer trackingScheduler.Stop()

	photoStorage := storage.NewS3Storage(ctx, cfg.S3)

	// Initialize controllers
	controllers := router.Controllers{
		Auth:     controller.NewAuthController(authService),
		Order:    controller.NewOrderController(orderService, paymentService, shipmentService),
		Payment:  controller.NewPaymentController(paymentService),
		Coupon:   controller.NewCouponController(couponService, orderService),
		Return:   controller.NewReturnController(returnService),
		Upload:   controller.NewUploadController(photoStorage),
		Shipment: controller.NewShipmentController(shipmentService, cfg.Scheduler.TrackingBatchSize),
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	engine := router.NewRouter(controllers, authMiddleware, cfg).Setup()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server started successfully", map[string]interface{}{
			"address": srv.Addr,
			"pid":     os.Getpid(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", err)
	}
	stop()

	logger.Info("Server stopped successfully")
}
