package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"turf-booking/config"
	"turf-booking/handlers"
	"turf-booking/monitoring"
	"turf-booking/security"
	"turf-booking/services"
	"turf-booking/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"

	_ "turf-booking/migrations"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Initialize PubNub
	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	pn := pubnub.NewPubNub(pnConfig)

	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize services. LockService consults BookingService on every lock
	// attempt so a confirmed booking always wins over a new lock.
	bookingService := services.NewBookingService(app, cfg)
	lockService := services.NewLockService(redisClient, cfg, bookingService)
	notificationService := services.NewNotificationService(app, pn)
	reservationService := services.NewReservationService(app, cfg, lockService, bookingService, notificationService)
	paymentService := services.NewPaymentService(redisClient, pn, cfg, reservationService, lockService)

	// Initialize handlers
	slotHandler := handlers.NewSlotHandler(lockService, cfg)
	bookingHandler := handlers.NewBookingHandler(bookingService, reservationService, paymentService)
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	adminHandler := handlers.NewAdminHandler(app, lockService, redisClient)

	rateLimiter := security.NewRateLimiter(redisClient)
	lockLimit := rateLimiter.Limit("slot-lock", cfg.LockRateLimit, cfg.LockRateWindow)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Expiry sweep on a fixed schedule. The cron removes lapsed locks; reads
	// already treat them as available before the sweep gets there.
	app.Cron().MustAdd("slotLockSweep", cfg.SweepCron, func() {
		sweepCtx, sweepCancel := context.WithTimeout(context.Background(), cfg.SweepInterval)
		defer sweepCancel()

		if _, err := lockService.SweepExpired(sweepCtx); err != nil {
			slog.Error("lock sweep failed", "error", err)
		}
	})

	// Start background tasks
	go paymentService.SubscribeToPaymentNotifications()
	if cfg.EnableMetrics {
		monitoring.NewMonitor(redisClient)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Slot lock endpoints
		e.Router.POST("/api/v1/slots/lock", lockLimit(slotHandler.Lock))
		e.Router.DELETE("/api/v1/slots/unlock/{lockId}", slotHandler.Unlock)
		e.Router.POST("/api/v1/slots/status", slotHandler.Status)
		e.Router.GET("/api/v1/slots/my-locks", slotHandler.MyLocks)
		e.Router.DELETE("/api/v1/slots/release-all", slotHandler.ReleaseAll)
		e.Router.POST("/api/v1/slots/cleanup", slotHandler.Cleanup)
		e.Router.PATCH("/api/v1/slots/confirm/{lockId}", bookingHandler.Confirm)

		// Booking endpoints
		e.Router.POST("/api/v1/bookings/create-order", bookingHandler.CreateOrder)
		e.Router.GET("/api/v1/bookings/my-bookings", bookingHandler.MyBookings)
		e.Router.POST("/api/v1/bookings/cancel", bookingHandler.Cancel)
		e.Router.GET("/api/v1/turfs/{turfId}/slot-status", bookingHandler.TurfSlotStatus)

		// Payment endpoints
		e.Router.POST("/api/v1/bookings/payment-webhook", paymentHandler.Webhook)
		if cfg.Environment == "development" {
			e.Router.POST("/api/v1/test/simulate-payment", paymentHandler.Simulate)
		}

		// Admin endpoints
		e.Router.GET("/api/v1/admin/lock-dashboard", adminHandler.LockDashboard)
		e.Router.POST("/api/v1/admin/force-sweep", adminHandler.ForceSweep)

		if cfg.EnableMetrics {
			e.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		setupTurfHooks(app)

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

func setupTurfHooks(app *pocketbase.PocketBase) {
	// Deleting a turf orphans its status documents; drop them alongside.
	app.OnRecordDeleteRequest("turfs").BindFunc(func(e *core.RecordRequestEvent) error {
		records, err := e.App.FindRecordsByFilter(
			"slot_status",
			"turf_id = {:turfId}",
			"", 0, 0,
			map[string]any{"turfId": e.Record.Id},
		)
		if err != nil {
			slog.Error("Failed to list slot status for deleted turf", "turfID", e.Record.Id, "error", err)
			return e.Next()
		}
		for _, record := range records {
			if err := e.App.Delete(record); err != nil {
				slog.Error("Failed to delete slot status", "turfID", e.Record.Id, "error", err)
			}
		}
		return e.Next()
	})

	app.OnRecordUpdateRequest("turfs").BindFunc(func(e *core.RecordRequestEvent) error {
		if e.Record.GetBool("suspended") {
			slog.Info("Turf suspended", "turfID", e.Record.Id)
		}
		return e.Next()
	})
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
