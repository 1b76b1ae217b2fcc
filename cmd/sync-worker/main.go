package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"blue-carbon/mrv-portal/mrv-portal-backend/internal/config"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/fieldops"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/notifications"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/registry"
)

// SyncWorker periodically drains the offline measurement queues of every
// device that has records waiting, so a field device that never comes back
// online still gets its uploads submitted.
type SyncWorker struct {
	measurements *fieldops.Service
	logger       *zap.Logger
	schedule     string
	cron         *cron.Cron
}

// NewSyncWorker creates the worker; schedule is a cron expression
func NewSyncWorker(measurements *fieldops.Service, schedule string, logger *zap.Logger) *SyncWorker {
	return &SyncWorker{
		measurements: measurements,
		logger:       logger,
		schedule:     schedule,
		cron:         cron.New(),
	}
}

// Start registers the drain job and runs until the context is cancelled
func (w *SyncWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting sync worker", zap.String("schedule", w.schedule))

	if _, err := w.cron.AddFunc(w.schedule, func() { w.drainAll(ctx) }); err != nil {
		return fmt.Errorf("failed to register sync job: %w", err)
	}

	// Drain once on startup; devices may have queued while the worker was down
	w.drainAll(ctx)

	w.cron.Start()
	<-ctx.Done()

	stopped := w.cron.Stop()
	<-stopped.Done()
	w.logger.Info("Sync worker stopped")
	return nil
}

func (w *SyncWorker) drainAll(ctx context.Context) {
	startTime := time.Now()

	reports, err := w.measurements.SyncAll(ctx)
	if err != nil {
		w.logger.Error("Sync run failed", zap.Error(err))
		return
	}

	var synced, failed int
	for _, report := range reports {
		synced += len(report.Synced)
		failed += len(report.Failed)
	}
	if synced == 0 && failed == 0 {
		return
	}

	w.logger.Info("Sync run complete",
		zap.Int("devices", len(reports)),
		zap.Int("synced", synced),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(startTime)))
}

func main() {
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	gormDB, err := gorm.Open(postgres.Open(cfg.Database.GetDatabaseURL()), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	bus := notifications.NewBus()

	registryService, statusGrant, _ := registry.NewService(
		registry.NewGormProjectRepository(gormDB),
		registry.NewGormStatusHistoryRepository(gormDB),
		registry.NewGormActivityRepository(gormDB),
		bus,
		logger,
	)

	measurementService := fieldops.NewService(
		fieldops.NewRedisQueue(redisClient),
		fieldops.NewGormMeasurementStore(gormDB),
		registryService,
		statusGrant,
		bus,
		cfg.Sync.BatchSize,
		logger,
	)

	worker := NewSyncWorker(measurementService, cfg.Sync.Schedule, logger)

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	if err := worker.Start(ctx); err != nil {
		logger.Fatal("Worker error", zap.Error(err))
	}
}
