package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/onurcolak/bulk-dispatch-service/environments"
	"github.com/onurcolak/bulk-dispatch-service/handlers"
	"github.com/onurcolak/bulk-dispatch-service/internal/dispatcher"
	"github.com/onurcolak/bulk-dispatch-service/internal/gateway"
	"github.com/onurcolak/bulk-dispatch-service/internal/middlewares"
	"github.com/onurcolak/bulk-dispatch-service/internal/repository"
	"github.com/onurcolak/bulk-dispatch-service/internal/service"
	"github.com/onurcolak/bulk-dispatch-service/pkg/database"
	"github.com/onurcolak/bulk-dispatch-service/pkg/directory"
	"github.com/onurcolak/bulk-dispatch-service/pkg/logger"
	"github.com/onurcolak/bulk-dispatch-service/pkg/redis"
	"github.com/onurcolak/bulk-dispatch-service/pkg/sms"
	"github.com/onurcolak/bulk-dispatch-service/pkg/storage"
	"github.com/onurcolak/bulk-dispatch-service/pkg/validator"
	"github.com/onurcolak/bulk-dispatch-service/pkg/webhook"
	"github.com/onurcolak/bulk-dispatch-service/pkg/whatsapp"
	"github.com/onurcolak/bulk-dispatch-service/routes"

	_ "github.com/onurcolak/bulk-dispatch-service/docs" // swagger docs
)

// @title Bulk Dispatch Service API
// @version 1.0
// @description Bulk WhatsApp, email and SMS dispatch with relay reconciliation and directory contacts
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email onur.colak@example.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @schemes http https
func main() {
	// Load config
	cfg := environments.Load()

	logger.Init(cfg.Log.Level)

	// Hard-fail if required secrets are missing
	if cfg.Auth.MessagesAPIKey == "" {
		logger.Fatalf("MESSAGES_API_KEY is required but not set")
	}
	if cfg.Auth.CallbackAPIKey == "" {
		logger.Fatalf("CALLBACK_API_KEY is required but not set")
	}
	if cfg.Auth.DispatcherAPIKey == "" {
		logger.Fatalf("DISPATCHER_API_KEY is required but not set")
	}
	if cfg.Relay.WhatsAppURL == "" && cfg.Relay.EmailURL == "" {
		logger.Warnf("No relay URL configured, relay batches will fail at dispatch")
	}

	logger.Infof("Starting Bulk Dispatch Service...")

	// Init DB
	db, err := database.Open(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.RunMigrations(db); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	// Seed data
	if os.Getenv("SEED_DATA") == "true" {
		if err := database.SeedTestData(db); err != nil {
			logger.Warnf("Failed to seed test data: %v", err)
		}
	}

	// Init cache. Contacts are read from the directory on every listing
	// when valkey is unavailable.
	var (
		redisClient  *redis.Client
		contactCache service.ContactCache
		healthCache  interface{ Ping(context.Context) error }
	)
	redisClient, err = redis.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Warnf("Redis not available, contacts cache disabled: %v", err)
		redisClient = nil
	} else {
		contactCache = redisClient
		healthCache = redisClient
	}

	// Storage
	store, err := storage.NewLocalStore(cfg.Upload)
	if err != nil {
		logger.Fatalf("Failed to prepare upload dir: %v", err)
	}

	// Provider clients
	relayClient := webhook.NewRelayClient(cfg.Relay)
	smsClient := sms.NewClient(cfg.SMS)
	whatsappClient := whatsapp.NewClient(cfg.WhatsApp)
	tokens := directory.NewTokenManager(cfg.Directory)
	directoryClient := directory.NewClient(cfg.Directory, tokens)

	if !smsClient.IsConfigured() {
		logger.Warnf("SMS provider not configured")
	}
	if !whatsappClient.CanSend() {
		logger.Warnf("WhatsApp API not configured for sending templates")
	}

	// Gateways
	whatsappRelay := gateway.NewWhatsAppRelay(relayClient, cfg.Relay.WhatsAppURL)
	emailRelay := gateway.NewEmailRelay(relayClient, cfg.Relay.EmailURL, cfg.Relay.DefaultSubject)
	smsGateway := gateway.NewSMSGateway(smsClient, gateway.NewLimiter(cfg.SMS.RatePerSecond))
	templateGateway := gateway.NewTemplateGateway(whatsappClient, gateway.NewLimiter(cfg.WhatsApp.RatePerSecond))

	// Initialize repository
	logRepo := repository.NewMessageLogRepository(db)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize dispatcher
	dispatch := dispatcher.NewDispatcher(cfg.Dispatch, cfg.Alert)
	if err := dispatch.Start(ctx); err != nil {
		logger.Fatalf("Failed to start dispatcher: %v", err)
	}

	// Initialize services
	dispatchService := service.NewDispatchService(logRepo, dispatch, whatsappRelay, emailRelay, store, cfg.Relay)
	smsService := service.NewSMSService(logRepo, smsGateway, smsClient)
	templateService := service.NewTemplateService(logRepo, templateGateway, whatsappClient)
	contactService := service.NewContactService(directoryClient, tokens, contactCache, cfg.Directory.ContactsCacheTTL)
	historyService := service.NewHistoryService(logRepo)
	uploadService := service.NewUploadService(store, cfg.Upload.RetentionDays)

	cleanup, err := uploadService.ScheduleCleanup(cfg.Upload.CleanupCron)
	if err != nil {
		logger.Fatalf("Failed to schedule upload cleanup: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = validator.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(bodyLimit(cfg.Upload.MaxFileSizeMB)))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			middlewares.APIKeyHeader,
		},
	}))

	// Setup routes
	routes.RegisterRoutes(e, routes.Handlers{
		Health:     handlers.NewHealthHandler(db, healthCache, dispatch),
		Messages:   handlers.NewMessageHandler(dispatchService, uploadService),
		WhatsApp:   handlers.NewWhatsAppHandler(templateService),
		SMS:        handlers.NewSMSHandler(smsService),
		Contacts:   handlers.NewContactHandler(contactService),
		History:    handlers.NewHistoryHandler(historyService),
		Dispatcher: handlers.NewDispatcherHandler(dispatch),
	}, cfg)

	// Start server in goroutine
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Infof("Server starting on http://localhost%s", addr)
		logger.Infof("Swagger docs available at http://localhost%s/swagger/index.html", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("Shutting down gracefully...")

	// Cancel context to signal all goroutines to stop
	cancel()

	// Stop accepting requests first so no new batches are queued.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Infof("Shutting down HTTP server...")
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	} else {
		logger.Infof("HTTP server stopped successfully")
	}

	<-cleanup.Stop().Done()

	// Drain the dispatcher. Relay calls may take minutes, so the wait is
	// bounded by the relay timeout.
	logger.Infof("Draining dispatcher...")
	done := make(chan error, 1)
	go func() {
		done <- dispatch.Stop()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Errorf("Error stopping dispatcher: %v", err)
		} else {
			logger.Infof("Dispatcher stopped successfully")
		}
	case <-time.After(cfg.Relay.Timeout + 30*time.Second):
		logger.Warnf("Dispatcher drain timeout, pending rows stay pending")
	}

	// Close database connection
	logger.Infof("Closing database connection...")
	if err := db.Close(); err != nil {
		logger.Errorf("Error closing database: %v", err)
	}

	// Close Redis connection
	if redisClient != nil {
		logger.Infof("Closing Redis connection...")
		if err := redisClient.Close(); err != nil {
			logger.Errorf("Error closing Redis: %v", err)
		}
	}

	logger.Infof("Graceful shutdown completed")
}

// bodyLimit leaves room for multipart overhead on top of the per-file limit.
func bodyLimit(maxFileSizeMB int) string {
	if maxFileSizeMB <= 0 {
		maxFileSizeMB = 15
	}
	return strconv.Itoa(maxFileSizeMB*4) + "M"
}
