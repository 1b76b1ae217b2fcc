package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"blue-carbon/mrv-portal/mrv-portal-backend/internal/config"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/dashboard"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/fieldops"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/identity"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/ledger"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/notifications"
	wshub "blue-carbon/mrv-portal/mrv-portal-backend/internal/notifications/websocket"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/platform/metrics"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/registry"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/verification"
)

func main() {
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg.Logging.Level)
	defer logger.Sync()

	// Postgres twice over: gorm for the domain stores, sqlx for the ledger
	gormDB, err := gorm.Open(postgres.Open(cfg.Database.GetDatabaseURL()), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := gormDB.AutoMigrate(
		&identity.User{}, &identity.Organization{}, &identity.Credential{}, &identity.Session{},
		&registry.Project{}, &registry.ProjectStatusHistory{}, &registry.ProjectActivity{},
		&fieldops.FieldMeasurement{},
		&verification.VerificationRecord{},
		&ledger.CarbonCreditToken{}, &ledger.TransactionRecord{}, &ledger.RetirementCertificate{},
	); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	sqlxDB, err := sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer sqlxDB.Close()
	sqlxDB.SetMaxOpenConns(cfg.Database.MaxConnections)
	sqlxDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	bus := notifications.NewBus()
	collectors := metrics.New()
	collectors.ObserveBus(bus)

	// identity
	identityStore := identity.NewGormStore(gormDB)
	identityService := identity.NewService(
		identityStore,
		identityStore.OrgStore(),
		identityStore.Credentials(),
		identityStore.Sessions(),
		[]byte(cfg.Security.JWTSecret),
		cfg.Security.SessionTTL,
		logger,
	)
	identityHandler := identity.NewHandler(identityService, logger)

	// project registry; the grants stay inside this function
	registryService, statusGrant, creditGrant := registry.NewService(
		registry.NewGormProjectRepository(gormDB),
		registry.NewGormStatusHistoryRepository(gormDB),
		registry.NewGormActivityRepository(gormDB),
		bus,
		logger,
	)
	registryHandler := registry.NewHandler(registryService, logger)

	// field measurements
	fieldopsService := fieldops.NewService(
		fieldops.NewRedisQueue(redisClient),
		fieldops.NewGormMeasurementStore(gormDB),
		registryService,
		statusGrant,
		bus,
		cfg.Sync.BatchSize,
		logger,
	)
	fieldopsHandler := fieldops.NewHandler(fieldopsService, logger)

	// credit ledger; minting reachable only through the verification workflow
	ledgerService := ledger.NewService(
		ledger.NewPostgresRepository(sqlxDB),
		registryService,
		creditGrant,
		bus,
		logger,
	)
	ledgerHandler := ledger.NewHandler(ledgerService, logger)

	// verification workflow
	verificationService := verification.NewService(
		verification.NewGormRepository(gormDB),
		registryService,
		statusGrant,
		ledgerService,
		bus,
		logger,
	)
	verificationHandler := verification.NewHandler(verificationService, logger)

	// read side
	dashboardService := dashboard.NewService(registryService, fieldopsService, verificationService, ledgerService, logger)
	dashboardHandler := dashboard.NewHandler(dashboardService, logger)

	hub := wshub.NewHub(bus, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(collectors.Middleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})
	router.GET("/metrics", collectors.Handler())

	api := router.Group("/api/v1")
	api.Use(identity.AuthMiddleware(identityService))

	identityHandler.RegisterRoutes(router, api)
	registryHandler.RegisterRoutes(api)
	fieldopsHandler.RegisterRoutes(api)
	verificationHandler.RegisterRoutes(api)
	ledgerHandler.RegisterRoutes(api)
	dashboardHandler.RegisterRoutes(api)
	api.GET("/ws", hub.Handle)

	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting portal API", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown", zap.Error(err))
	}
}

func newLogger(level string) *zap.Logger {
	if level == "debug" {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	logger, _ := zap.NewProduction()
	return logger
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
