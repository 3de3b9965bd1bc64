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

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/subsync/internal/bridge"
	"github.com/therealutkarshpriyadarshi/subsync/internal/cache"
	"github.com/therealutkarshpriyadarshi/subsync/internal/config"
	"github.com/therealutkarshpriyadarshi/subsync/internal/database"
	"github.com/therealutkarshpriyadarshi/subsync/internal/logging"
	"github.com/therealutkarshpriyadarshi/subsync/internal/metrics"
	"github.com/therealutkarshpriyadarshi/subsync/internal/middleware"
	"github.com/therealutkarshpriyadarshi/subsync/internal/queue"
	"github.com/therealutkarshpriyadarshi/subsync/internal/scheduler"
	"github.com/therealutkarshpriyadarshi/subsync/internal/search"
	"github.com/therealutkarshpriyadarshi/subsync/internal/session"
	"github.com/therealutkarshpriyadarshi/subsync/internal/sites"
	"github.com/therealutkarshpriyadarshi/subsync/internal/storage"
	"github.com/therealutkarshpriyadarshi/subsync/internal/tracing"
)

const (
	pageDataQuota       = 30
	pageDataQuotaWindow = time.Minute
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger = logger.WithField("service", "api")

	// Initialize JWT secret from config
	middleware.SetJWTSecret(cfg.Auth.JWTSecret)

	_, tracerCloser, err := tracing.InitTracer(cfg.Tracing.Enabled, cfg.Tracing.ServiceName, cfg.Tracing.JaegerEndpoint)
	if err != nil {
		logger.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer tracerCloser.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	repo := database.NewRepository(db)

	// Initialize cache
	redisCache, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatalf("Failed to connect to redis: %v", err)
	}
	defer redisCache.Close()

	// Initialize storage
	stor, err := storage.New(cfg.Storage)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	// Initialize queue
	q, err := queue.New(cfg.Queue, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()

	catalog := sites.DefaultCatalog()
	searcher := search.NewClient(cfg.Search, logger)
	snapshots := sites.NewSnapshotSource()

	// Sessions detect from the DOM the client reports; page-data lookups
	// fetch the page themselves
	sessionSites := sites.NewResolver(catalog, snapshots, logger,
		sites.WithRetries(cfg.Sync.DetectionMaxRetries, cfg.Sync.DetectionRetryDelay),
		sites.WithCache(redisCache, cfg.Redis.SiteTTL),
	)
	fetchedSites := sites.NewResolver(catalog, sites.NewHTTPPageSource(cfg.Sync.PageFetchTimeout), logger,
		sites.WithRetries(0, 0),
		sites.WithCache(redisCache, cfg.Redis.SiteTTL),
	)
	discovery := search.NewPageDataProvider(sessionSites, searcher, nil, 0, cfg.Sync.SearchLanguage, logger)
	pageData := search.NewPageDataProvider(fetchedSites, searcher, redisCache, cfg.Redis.SiteTTL, cfg.Sync.SearchLanguage, logger)

	archive := storage.NewSubtitleArchive(stor, cfg.Storage.URLExpiry, logger, q)

	sessions := session.NewManager(session.Options{
		Sync:      cfg.Sync,
		Hub:       bridge.NewHub(),
		Settings:  func(owner string) session.SettingsSource { return repo.ForOwner(owner) },
		Site:      sessionSites,
		Snapshots: snapshots,
		Searcher:  searcher,
		Discovery: discovery,
		Archive:   archive,
		Progress:  redisCache,
		Logger:    logger,
	})

	// Sessions whose token expired are closed in the background
	reaper := scheduler.NewReaper(sessions, time.Minute, logger)
	reaper.Start()

	checks := map[string]metrics.HealthCheck{
		"database": db.Health,
		"redis":    redisCache.Ping,
	}

	// Create API instance
	api := &API{
		sessions:   sessions,
		reaper:     reaper,
		settings:   repo,
		pageData:   pageData,
		catalog:    catalog,
		checks:     checks,
		sessionTTL: cfg.Auth.SessionTTL,
		logger:     logger,
	}

	rateLimiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	go rateLimiter.Cleanup(ctx, time.Minute)

	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Port, logger, checks)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.WithError(err).Error("metrics server stopped")
			}
		}()
		defer metricsServer.Shutdown(context.Background())
	}

	// Setup router
	gin.SetMode(gin.ReleaseMode)
	router := setupRouter(api, logger, rateLimiter, redisCache)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Cancel context for background workers
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	reaper.Stop()
	sessions.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server stopped")
}

func setupRouter(api *API, logger *logging.Logger, rateLimiter *middleware.RateLimiter, quota middleware.QuotaChecker) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	if rateLimiter != nil {
		router.Use(middleware.RateLimit(rateLimiter))
	}

	// Health check
	router.GET("/health", api.healthCheck)

	// Public routes
	public := router.Group("/api/v1")
	{
		public.GET("/sites", api.listSites)
		public.GET("/sites/check", api.checkSite)
		public.POST("/sessions", api.openSession)
	}

	// Session routes, the token must belong to the session in the path
	sess := router.Group("/api/v1/sessions/:id")
	sess.Use(middleware.JWTAuth(), middleware.SessionAuth("id"))
	{
		sess.GET("", api.getSession)
		sess.DELETE("", api.closeSession)
		sess.GET("/events", api.streamEvents)
		sess.POST("/page", api.reportPage)
		sess.POST("/request-subtitles", api.requestSubtitles)
		sess.POST("/synced-data", api.syncedData)
		sess.POST("/commands", api.handleCommand)
		sess.POST("/responses/:requestId", api.respond)
		sess.POST("/show", api.showPicker)
		sess.POST("/files", api.registerFile)
		sess.GET("/progress", api.getProgress)
	}

	// User routes
	user := router.Group("/api/v1")
	user.Use(middleware.JWTAuth())
	{
		user.GET("/settings", api.getSettings)
		user.PUT("/settings", api.updateSettings)
		user.POST("/settings/profiles", api.addProfile)
		user.DELETE("/settings/profiles/:name", api.removeProfile)
		user.GET("/history", api.listHistory)

		pageData := []gin.HandlerFunc{api.getPageData}
		if quota != nil {
			pageData = append([]gin.HandlerFunc{middleware.QuotaLimit(quota, "page-data", pageDataQuota, pageDataQuotaWindow)}, pageData...)
		}
		user.GET("/page-data", pageData...)
	}

	return router
}
