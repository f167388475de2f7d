package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/webclipper/clipper-api/config"
	"github.com/webclipper/clipper-api/internal/cache"
	"github.com/webclipper/clipper-api/internal/database/postgres"
	"github.com/webclipper/clipper-api/internal/handlers"
	"github.com/webclipper/clipper-api/internal/middleware"
	"github.com/webclipper/clipper-api/internal/registry"
	"github.com/webclipper/clipper-api/internal/services"
	"github.com/webclipper/clipper-api/pkg/airtable"
	"github.com/webclipper/clipper-api/pkg/db"
	"github.com/webclipper/clipper-api/pkg/httpclient"
	"github.com/webclipper/clipper-api/pkg/logger"
	"github.com/webclipper/clipper-api/pkg/ratelimit"
	"github.com/webclipper/clipper-api/pkg/tracing"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// registerAPIRoutes wires the v1 surface. Every route goes through the general
// rate limiter and token auth; the heavier limits guard the endpoints that
// reach out to Airtable.
func registerAPIRoutes(
	v1 *gin.RouterGroup,
	generalRateLimiter, outboundRateLimiter *middleware.RateLimiter,
	sendHandler *handlers.SendHandler,
	destinationHandler *handlers.DestinationHandler,
	webhookHandler *handlers.WebhookHandler,
	airtableHandler *handlers.AirtableHandler,
	attachmentHandler *handlers.AttachmentHandler,
	exportHandler *handlers.ExportHandler,
) {
	general := generalRateLimiter.Middleware()
	outbound := outboundRateLimiter.Middleware()

	v1.POST("/send", outbound, sendHandler.Send)

	v1.GET("/destinations", general, destinationHandler.List)
	v1.GET("/destinations/menu", general, destinationHandler.Menu)
	v1.GET("/destinations/last-used", general, destinationHandler.LastUsed)
	v1.GET("/destinations/:id", general, destinationHandler.Get)

	v1.POST("/webhooks", general, webhookHandler.Create)
	v1.PUT("/webhooks/:id", general, webhookHandler.Update)
	v1.DELETE("/webhooks/:id", general, webhookHandler.Delete)
	v1.POST("/webhooks/:id/templates", general, webhookHandler.AddTemplate)
	v1.DELETE("/webhooks/:id/templates/:name", general, webhookHandler.DeleteTemplate)

	v1.POST("/airtable", general, airtableHandler.Create)
	v1.PUT("/airtable/:id", general, airtableHandler.Update)
	v1.DELETE("/airtable/:id", general, airtableHandler.Delete)
	v1.POST("/airtable/validate", general, airtableHandler.ValidateCredentials)
	v1.POST("/airtable/:id/connect", outbound, airtableHandler.Connect)
	v1.POST("/airtable/:id/tables/:tableId/fields", outbound, airtableHandler.LoadTableFields)
	v1.PUT("/airtable/:id/tables/:tableId/config", general, airtableHandler.SetTableConfig)
	v1.GET("/airtable/:id/tables/:tableId/collaborators", outbound, airtableHandler.Collaborators)

	v1.POST("/attachments", general, attachmentHandler.Add)
	v1.GET("/attachments/:sessionId", general, attachmentHandler.List)
	v1.DELETE("/attachments/:sessionId", general, attachmentHandler.Clear)
	v1.DELETE("/attachments/:sessionId/:name", general, attachmentHandler.Remove)

	v1.GET("/config/export", general, exportHandler.Export)
	v1.POST("/config/import", general, exportHandler.Import)
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	err = logger.Initialize(logger.Config{
		Level:       cfg.Logging.Level,
		LogDir:      cfg.Logging.Dir,
		Environment: cfg.Server.AppEnv,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Clipper API",
		zap.String("version", cfg.Observability.ServiceVersion),
		zap.String("environment", cfg.Server.AppEnv),
	)

	// Initialize distributed tracing (no-op when no endpoint is configured)
	tracerShutdown, err := tracing.InitTracer(
		cfg.Observability.ServiceName,
		cfg.Observability.ServiceVersion,
		cfg.Server.AppEnv,
		cfg.Observability.ExporterEndpoint,
	)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tracerShutdown(ctx); shutdownErr != nil {
			logger.Error("Failed to shutdown tracer", zap.Error(shutdownErr))
		}
	}()

	// Initialize PostgreSQL connection pool
	pool, err := db.NewPool(context.Background(), db.PoolConfig{
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		logger.Fatal("Failed to initialize database connection pool", zap.Error(err))
	}

	// NOTE: Database migrations run separately via the migrate command

	store := postgres.NewClient(pool)
	defer store.Close()

	// Per-base outbound limiter for the Airtable API
	airtableLimiter := ratelimit.NewWithLimit(cfg.Airtable.RateLimit, cfg.RateWindow())
	defer airtableLimiter.Close()

	httpClient := httpclient.NewStandardClient()
	airtableClient := airtable.NewClient(httpClient, airtableLimiter, cfg.Airtable.BaseURL)
	collaboratorCache := cache.NewCollaboratorCache(cfg.CollaboratorTTL())
	attachmentStore := services.NewAttachmentStore(cfg.AttachmentTTL(), cfg.Limits.AttachmentTotalBytes)

	reg := registry.New(store)
	dispatcher := services.NewDispatcher(reg, airtableClient, attachmentStore, httpClient,
		cfg.EventTriggers.ClipSentTriggerURL)

	// Initialize handlers
	sendHandler := handlers.NewSendHandler(dispatcher)
	destinationHandler := handlers.NewDestinationHandler(reg, airtableLimiter)
	webhookHandler := handlers.NewWebhookHandler(reg)
	airtableHandler := handlers.NewAirtableHandler(reg, airtableClient, collaboratorCache)
	attachmentHandler := handlers.NewAttachmentHandler(attachmentStore)
	exportHandler := handlers.NewExportHandler(reg)
	healthHandler := handlers.NewHealthHandler(func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return store.Ping(ctx) == nil
	})

	// Set up Gin router
	gin.SetMode(cfg.Server.GinMode)
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Observability.ServiceName))
	router.Use(middleware.ObservabilityMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.BodySizeLimitMiddleware(cfg.Limits.MaxBodyBytes))
	router.Use(middleware.TokenAuthMiddleware(cfg.Auth.APIToken))

	// CORS: extension clients send no Origin header; the allow list only
	// matters when a configured web UI talks to the API
	if len(cfg.Server.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.Server.AllowedOrigins,
			AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-Api-Token", "traceparent", "tracestate"},
			ExposeHeaders: []string{"Content-Length", "Content-Disposition"},
			MaxAge:        12 * time.Hour,
		}))
	}

	// Inbound rate limits: the outbound limiter guards endpoints that spend
	// Airtable API budget, the general one everything else
	generalRateLimiter := middleware.NewRateLimiter(50, 100)
	outboundRateLimiter := middleware.NewRateLimiter(10, 20)
	defer generalRateLimiter.Stop()
	defer outboundRateLimiter.Stop()

	// Operational endpoints
	api := router.Group("/api")
	api.GET("/healthcheck", generalRateLimiter.Middleware(), healthHandler.Healthcheck)
	api.GET("/metrics", generalRateLimiter.Middleware(), gin.WrapH(promhttp.Handler()))
	api.GET("/debug/ratelimit/:baseId", generalRateLimiter.Middleware(), destinationHandler.LimiterStatus)

	// API v1 routes
	v1 := router.Group("/api/v1")
	registerAPIRoutes(v1, generalRateLimiter, outboundRateLimiter,
		sendHandler, destinationHandler, webhookHandler, airtableHandler,
		attachmentHandler, exportHandler)

	// The API is a local companion service; loopback binding keeps it off the
	// network unless explicitly exposed
	srv := &http.Server{
		Addr:              "127.0.0.1:" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info("Server started", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
