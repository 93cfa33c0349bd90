package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gucbir/gucbirnest/internal/config"
	"github.com/Gucbir/gucbirnest/internal/erp"
	"github.com/Gucbir/gucbirnest/internal/middleware"
	"github.com/Gucbir/gucbirnest/internal/production/entity"
	"github.com/Gucbir/gucbirnest/internal/production/handler"
	"github.com/Gucbir/gucbirnest/internal/production/repository"
	"github.com/Gucbir/gucbirnest/internal/production/service"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting production tracking service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := entity.AutoMigrate(db); err != nil {
		zapLogger.Fatal("AutoMigrate failed", zap.Error(err))
	}

	rdb := initRedis(cfg.Redis)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		zapLogger.Warn("Redis unreachable, structure cache disabled", zap.Error(err))
		rdb = nil
	}

	erpClient, err := erp.NewClient(erp.Config{
		BaseURL:   cfg.SAP.BaseURL,
		CompanyDB: cfg.SAP.CompanyDB,
		Username:  cfg.SAP.Username,
		Password:  cfg.SAP.Password,
		Timeout:   cfg.SAP.Timeout,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to init ERP client", zap.Error(err))
	}

	repos := repository.NewRepositories(db)
	services := service.NewServices(db, repos, erpClient, rdb, cfg, zapLogger)
	handlers := handler.NewHandlers(services)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	registerRoutes(router, handlers, cfg)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	v1 := r.Group("/api/v1")
	authorized := v1.Group("")
	authorized.Use(middleware.JWTAuth(cfg.JWT.Secret))
	{
		orders := authorized.Group("/production/orders")
		{
			orders.POST("", h.Order.Create)
			orders.GET("", h.Order.List)
			orders.GET("/:id", h.Order.Get)
			orders.POST("/import/:docNum", h.Order.ImportFromOrder)
			orders.POST("/:id/backfill-units", h.Order.BackfillUnits)
			orders.POST("/:id/first-route-issue", h.Order.FirstRouteIssue)
		}

		operations := authorized.Group("/production/operations")
		{
			operations.POST("/:operationId/units/:unitId/start", h.Stage.Start)
			operations.POST("/:operationId/units/:unitId/pause", h.Stage.Pause)
			operations.POST("/:operationId/units/:unitId/resume", h.Stage.Resume)
			operations.POST("/:operationId/units/:unitId/finish", h.Stage.Finish)
			operations.POST("/:operationId/units/:unitId/alternative", h.Stage.SelectAlternative)
		}

		stages := authorized.Group("/production/stages")
		{
			stages.GET("/:stage/queue", h.Stage.Queue)
		}

		units := authorized.Group("/production/units")
		{
			units.GET("/:serialNo/history", h.Stage.UnitHistory)
		}

		materials := authorized.Group("/materials")
		{
			materials.POST("/check", h.Material.Check)
			materials.POST("/shortage-runs", h.Material.CreateRun)
			materials.POST("/stock-sync", h.Material.SyncStocks)
			materials.GET("/bom/:itemCode", h.Material.GetStructure)
		}

		procurement := authorized.Group("/procurement/requests")
		{
			procurement.POST("", h.Procurement.CreateFromRun)
			procurement.GET("", h.Procurement.List)
			procurement.GET("/:id", h.Procurement.Get)
		}

		settings := authorized.Group("/settings")
		{
			settings.GET("/production-serial", h.Setting.GetSerialCounter)
			settings.PUT("/production-serial", middleware.RequireRole("production_admin"), h.Setting.UpdateSerialCounter)
		}
	}
}
