package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tkhuang/riskcast/internal/config"
	"github.com/tkhuang/riskcast/internal/logger"
	"github.com/tkhuang/riskcast/internal/oracle"
	"github.com/tkhuang/riskcast/internal/queue"
	"github.com/tkhuang/riskcast/internal/repository"
	"github.com/tkhuang/riskcast/internal/service"
	"github.com/tkhuang/riskcast/internal/storage"
)

// Standalone worker: drains the shared queue without serving HTTP. Each
// worker process owns its own pool and scaling loop; queue depth comes from
// the shared broker, so fleet members converge on the same pressure signal.
func main() {
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewDefault()
	logger.SetDefaultLogger(log)
	defer logger.Sync()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}

	jobRepo := repository.NewJobRepository(db)
	companyRepo := repository.NewCompanyRepository(db)
	predictionRepo := repository.NewPredictionRepository(db)
	scalingRepo := repository.NewScalingRepository(db)

	broker, err := queue.NewRedisBroker(cfg.Redis.URL)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize queue broker")
	}
	collector := queue.NewCollector(broker, 0.3)

	oracleClient := oracle.NewClient(&oracle.Config{
		BaseURL: cfg.Oracle.BaseURL,
		APIKey:  cfg.Oracle.APIKey,
		Model:   cfg.Oracle.Model,
		Timeout: cfg.Oracle.Timeout,
	})

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

	scalingEngine := service.NewScalingEngine(
		collector,
		service.NewPoolController(processor),
		scalingRepo,
		cfg.Scaling,
		log,
	)

	runCtx, stop := context.WithCancel(ctx)
	processor.Start(runCtx)
	if cfg.Scaling.Enabled {
		go scalingEngine.RunLoop(runCtx)
	}

	log.WithField("workers", cfg.Batch.Workers).Info("Worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down worker...")
	stop()
	processor.Stop()
	log.Info("Worker exited")
}
