package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	_ "github.com/noah-isme/slotbook-api/api/swagger"
	"github.com/noah-isme/slotbook-api/internal/calendar"
	"github.com/noah-isme/slotbook-api/internal/handler"
	internalmiddleware "github.com/noah-isme/slotbook-api/internal/middleware"
	"github.com/noah-isme/slotbook-api/internal/models"
	"github.com/noah-isme/slotbook-api/internal/notification"
	"github.com/noah-isme/slotbook-api/internal/repository"
	"github.com/noah-isme/slotbook-api/internal/service"
	"github.com/noah-isme/slotbook-api/pkg/cache"
	"github.com/noah-isme/slotbook-api/pkg/captoken"
	"github.com/noah-isme/slotbook-api/pkg/config"
	"github.com/noah-isme/slotbook-api/pkg/database"
	"github.com/noah-isme/slotbook-api/pkg/export"
	"github.com/noah-isme/slotbook-api/pkg/jobs"
	"github.com/noah-isme/slotbook-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/slotbook-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/slotbook-api/pkg/middleware/requestid"
	"github.com/noah-isme/slotbook-api/pkg/telemetry"
)

// @title Slotbook API
// @version 1.0.0
// @description Availability browsing and conflict-safe booking for hosted event types.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.Telemetry)
	if err != nil {
		logr.Fatal("failed to init tracing", zap.Error(err))
	}

	db, err := database.NewPostgres(ctx, cfg.Database, cfg.ServiceName)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	rdb, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching and rate limiting disabled", zap.Error(err))
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	bookingRepo := repository.NewBookingRepository(db, cfg.Booking.SerializableTx)
	eventTypeRepo := repository.NewEventTypeRepository(db)
	connectionRepo := repository.NewCalendarConnectionRepository(db)

	var cacheSvc *service.CacheService
	if rdb != nil {
		cacheRepo := repository.NewCacheRepository(rdb, cfg.ServiceName, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metrics, cfg.Booking.PolicyCacheTTL, logr, true)
	}
	policies := service.NewPolicyService(eventTypeRepo, cacheSvc, cfg.Booking.PolicyCacheTTL, logr)

	var (
		busy   calendar.BusyTimeProvider
		writer calendar.EventWriter
	)
	if cfg.Calendar.Enabled {
		router := calendar.NewRouter(connectionRepo, map[string]calendar.Factory{
			models.ProviderGoogle: calendar.NewGoogleFactory(cfg.Calendar),
			models.ProviderCalDAV: calendar.NewCalDAVFactory(otelhttp.NewTransport(http.DefaultTransport)),
		}, logr)
		busy, writer = router, router
	}
	events := calendar.NewBestEffort(busy, writer, cfg.Calendar.Timeout, logr, metrics)
	resolver := service.NewConflictResolver(events)

	publisher := publisherFor(cfg, logr)
	if closer, ok := publisher.(interface{ Close() error }); ok {
		defer closer.Close() //nolint:errcheck
	}
	dispatcher := notification.NewQueueDispatcher(publisher, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})
	// Outlives the signal; stopped after srv.Shutdown.
	dispatcher.Start(context.WithoutCancel(ctx))
	defer dispatcher.Stop()

	availabilitySvc := service.NewAvailabilityService(policies, bookingRepo, resolver, metrics, validate, service.AvailabilityConfig{
		MaxDays:      cfg.Booking.MaxBrowseDays,
		StoreTimeout: cfg.Booking.StoreTimeout,
	}, logr)

	bookingSvc := service.NewBookingService(policies, bookingRepo, resolver, events, captoken.NewIssuer(0), dispatcher, metrics, validate,
		service.BookingServiceConfig{StoreTimeout: cfg.Booking.StoreTimeout}, logr)
	exportSvc := service.NewExportService(bookingSvc, logr, export.NewCSVExporter(), export.NewPDFExporter())
	authSvc := service.NewAuthService(logr, service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics, readinessChecks(db, rdb))
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	var limiter gin.HandlerFunc
	if cfg.RateLimit.Enabled && rdb != nil {
		limiter = internalmiddleware.NewRateLimiter(rdb, cfg.RateLimit.Limit, cfg.RateLimit.Window, cfg.ServiceName+":rl", cfg.RateLimit.FailOpen, logr).Middleware()
	}

	registerRoutes(r.Group(cfg.APIPrefix), routeDeps{
		availability: handler.NewAvailabilityHandler(availabilitySvc),
		bookings:     handler.NewBookingHandler(bookingSvc, exportSvc),
		auth:         authSvc,
		limiter:      limiter,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           otelhttp.NewHandler(r, cfg.ServiceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	dispatcher.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logr.Warn("tracer shutdown failed", zap.Error(err))
	}
}

type routeDeps struct {
	availability *handler.AvailabilityHandler
	bookings     *handler.BookingHandler
	auth         *service.AuthService
	limiter      gin.HandlerFunc
}

func registerRoutes(api *gin.RouterGroup, deps routeDeps) {
	public := func(handlers ...gin.HandlerFunc) []gin.HandlerFunc {
		if deps.limiter == nil {
			return handlers
		}
		return append([]gin.HandlerFunc{deps.limiter}, handlers...)
	}
	requireHost := internalmiddleware.JWT(deps.auth)

	api.GET("/event-types/:id/availability", public(deps.availability.List)...)
	api.POST("/event-types/:id/bookings", public(deps.bookings.Create)...)
	api.POST("/bookings/:id/cancel", public(internalmiddleware.OptionalJWT(deps.auth), deps.bookings.Cancel)...)

	api.POST("/bookings/:id/reschedule", requireHost, deps.bookings.Reschedule)
	api.GET("/bookings/:id", requireHost, deps.bookings.Get)
	api.GET("/hosts/me/bookings", requireHost, deps.bookings.List)
	api.GET("/hosts/me/bookings/export", requireHost, deps.bookings.Export)
}

func publisherFor(cfg *config.Config, logr *zap.Logger) notification.Publisher {
	if len(cfg.Notifications.Brokers) == 0 {
		logr.Info("no kafka brokers configured, notifications are logged only")
		return notification.NewLogPublisher(logr)
	}
	return notification.NewKafkaPublisher(cfg.Notifications.Brokers, cfg.Notifications.TopicPrefix)
}

func readinessChecks(db *sqlx.DB, rdb *redis.Client) map[string]handler.Pinger {
	checks := map[string]handler.Pinger{"postgres": db}
	if rdb != nil {
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	return checks
}
