package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/therealutkarshpriyadarshi/subsync/internal/cache"
	"github.com/therealutkarshpriyadarshi/subsync/internal/config"
	"github.com/therealutkarshpriyadarshi/subsync/internal/database"
	"github.com/therealutkarshpriyadarshi/subsync/internal/logging"
	"github.com/therealutkarshpriyadarshi/subsync/internal/metrics"
	"github.com/therealutkarshpriyadarshi/subsync/internal/queue"
)

const (
	prefetchCount       = 10
	queueDepthInterval  = 15 * time.Second
	shutdownGracePeriod = 10 * time.Second
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
	logger = logger.WithField("service", "worker")

	// Create context with cancellation
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

	// Initialize queue
	q, err := queue.New(cfg.Queue, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()

	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Port, logger, map[string]metrics.HealthCheck{
			"database": db.Health,
			"redis":    redisCache.Ping,
		})
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.WithError(err).Error("metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
			defer shutdownCancel()
			metricsServer.Shutdown(shutdownCtx)
		}()
	}

	// Handle shutdown gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutting down worker gracefully...")
		cancel()
	}()

	rec := newRecorder(repo, redisCache, logger)

	// Start consuming events
	if err := q.ConsumeSubtitlesLoaded(ctx, prefetchCount, rec.handle); err != nil {
		logger.Fatalf("Failed to consume events: %v", err)
	}
	if err := q.ConsumeDLQ(ctx, rec.handleDeadLetter); err != nil {
		logger.Fatalf("Failed to consume dead letter queue: %v", err)
	}

	go reportQueueDepth(ctx, q, logger)

	logger.Info("Worker started, waiting for events...")

	// Wait for shutdown
	<-ctx.Done()
	logger.Info("Worker stopped")
}

// reportQueueDepth publishes the queue gauges until ctx is done
func reportQueueDepth(ctx context.Context, q *queue.Queue, logger *logging.Logger) {
	ticker := time.NewTicker(queueDepthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if depth, err := q.GetQueueDepth(); err != nil {
				logger.WithError(err).Warn("failed to read queue depth")
			} else {
				metrics.SetQueueDepth(queue.EventsQueueName, depth)
			}

			if depth, err := q.GetDLQDepth(); err != nil {
				logger.WithError(err).Warn("failed to read dead letter queue depth")
			} else {
				metrics.SetQueueDepth(queue.DeadLetterQueueName, depth)
			}
		}
	}
}
