package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tkhuang/riskcast/internal/api"
	"github.com/tkhuang/riskcast/internal/config"
	"github.com/tkhuang/riskcast/internal/logger"
	"github.com/tkhuang/riskcast/internal/oracle"
	"github.com/tkhuang/riskcast/internal/queue"
	"github.com/tkhuang/riskcast/internal/repository"
	"github.com/tkhuang/riskcast/internal/service"
	"github.com/tkhuang/riskcast/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewDefault()
	logger.SetDefaultLogger(log)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	jobRepo := repository.NewJobRepository(db)
	companyRepo := repository.NewCompanyRepository(db)
	predictionRepo := repository.NewPredictionRepository(db)
	scalingRepo := repository.NewScalingRepository(db)

	// Initialize queue broker
	broker, err := queue.NewRedisBroker(cfg.Redis.URL)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize queue broker")
	}
	collector := queue.NewCollector(broker, 0.3)

	// Initialize scoring oracle client
	oracleClient := oracle.NewClient(&oracle.Config{
		BaseURL: cfg.Oracle.BaseURL,
		APIKey:  cfg.Oracle.APIKey,
		Model:   cfg.Oracle.Model,
		Timeout: cfg.Oracle.Timeout,
	})

	// Initialize batch processor
	processor := service.NewBatchProcessor(
		jobRepo,
		companyRepo,
		predictionRepo,
		oracleClient,
		broker,
		collector,
		log,
		service.ProcessorConfig{
			Workers:      cfg.Batch.Workers,
			MinBatchSize: cfg.Batch.MinBatchSize,
			MaxBatchSize: cfg.Batch.MaxBatchSize,
			SoftTimeout:  cfg.Batch.SoftTimeout,
			HardTimeout:  cfg.Batch.HardTimeout,
		},
	)

	ctx := context.Background()

	// Optional payload archive (S3-compatible object storage)
	if cfg.Storage.Enabled {
		archive, err := storage.NewS3Store(&storage.S3Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
		})
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize payload archive")
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			log.WithError(err).Fatal("Failed to ensure archive bucket")
		}
		processor.WithArchive(archive)
	}

	// Initialize services
	jobService := service.NewJobService(jobRepo, processor, cfg.Batch.MaxRows)
	scalingEngine := service.NewScalingEngine(
		collector,
		service.NewPoolController(processor),
		scalingRepo,
		cfg.Scaling,
		log,
	)

	// Start background workers
	runCtx, stop := context.WithCancel(ctx)
	processor.Start(runCtx)
	if cfg.Scaling.Enabled {
		go scalingEngine.RunLoop(runCtx)
	}

	// Setup router
	router := api.SetupRouter(jobService, scalingEngine, db, broker, log, &cfg.Server)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown: stop accepting requests, then drain in-flight batches
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	stop()
	processor.Stop()

	log.Info("Server exited")
}
