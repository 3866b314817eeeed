package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/steelfab/oms/internal/config"
	"github.com/steelfab/oms/internal/handler"
	"github.com/steelfab/oms/internal/middleware"
	"github.com/steelfab/oms/internal/model/entity"
	"github.com/steelfab/oms/internal/notify"
	"github.com/steelfab/oms/internal/repository"
	"github.com/steelfab/oms/internal/service"
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
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting oms service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := entity.AutoMigrate(db); err != nil {
		zapLogger.Fatal("Failed to auto-migrate tables", zap.Error(err))
	}
	zapLogger.Info("Database migration completed")

	// Redis（事件通知用，不可用时降级为空操作）
	rdb := initRedis(cfg.Redis, zapLogger)
	notifier := notify.New(rdb, cfg.Redis.Channel, zapLogger)

	// 依赖装配
	repos := repository.NewRepositories(db)
	services := service.NewServices(db, repos, notifier, cfg.Numbering.CustomSeries, zapLogger)
	handlers := handler.NewHandlers(services)

	// 注册定制件编号序列
	if err := repos.Sequence.Ensure(context.Background(), &entity.NumberSequence{
		Series:    cfg.Numbering.CustomSeries,
		Prefix:    cfg.Numbering.CustomPrefix,
		NextValue: cfg.Numbering.CustomStart,
		Padding:   cfg.Numbering.Padding,
	}); err != nil {
		zapLogger.Fatal("Failed to register number sequence", zap.Error(err))
	}

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, handlers, zapLogger)

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	if rdb != nil {
		rdb.Close()
	}

	zapLogger.Info("Server exited")
}

func setupRouter(cfg *config.Config, handlers *handler.Handlers, zapLogger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// 健康检查
	router.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "oms"})
	})
	router.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "oms"})
	})

	// 版本信息
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":    "oms",
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	v1 := router.Group("/api/v1")
	v1.Use(middleware.JWTAuth(cfg.JWT.Secret))
	{
		// 产品目录
		catalog := v1.Group("/catalog")
		{
			catalog.GET("/categories", handlers.Catalog.ListCategories)
			catalog.POST("/categories", handlers.Catalog.CreateCategory)
			catalog.GET("/assemblies", handlers.Catalog.ListAssemblies)
			catalog.POST("/assemblies", handlers.Catalog.CreateAssembly)
			catalog.GET("/assemblies/:id", handlers.Catalog.GetAssembly)
			catalog.POST("/assemblies/:id/components", handlers.Catalog.AddComponent)
			catalog.GET("/assemblies/:id/expand", handlers.Catalog.Expand)
			catalog.GET("/parts", handlers.Catalog.ListParts)
			catalog.POST("/parts", handlers.Catalog.CreatePart)
		}

		// 配置规则
		rules := v1.Group("/rules")
		{
			rules.GET("", handlers.Order.ListRules)
			rules.POST("", middleware.RequireRole("engineering"), handlers.Order.CreateRule)
			rules.PUT("/:id", middleware.RequireRole("engineering"), handlers.Order.UpdateRule)
		}

		// 订单
		orders := v1.Group("/orders")
		{
			orders.GET("", handlers.Order.List)
			orders.POST("", handlers.Order.Create)
			orders.GET("/:id", handlers.Order.Get)
			orders.POST("/:id/items", handlers.Order.AddItem)
			orders.POST("/:id/transition", handlers.Order.Transition)
			orders.GET("/:id/history", handlers.Order.History)
			orders.GET("/:id/production-tasks", handlers.Order.ProductionTasks)
			orders.GET("/:id/qc-checklist", handlers.Order.QCChecklist)
		}

		// 订单行
		items := v1.Group("/order-items")
		{
			items.GET("/:id/configurations", handlers.Order.ListConfigurationVersions)
		}

		// 配置
		configs := v1.Group("/configurations")
		{
			configs.GET("/:id", handlers.Order.GetConfiguration)
			configs.PUT("/:id", handlers.Order.UpdateConfiguration)
			configs.POST("/:id/revise", handlers.Order.ReviseConfiguration)
			configs.POST("/:id/validate", handlers.Order.ValidateConfiguration)
			configs.POST("/:id/bom", handlers.BOM.Generate)
			configs.GET("/:id/boms", handlers.BOM.ListVersions)
		}

		// BOM
		boms := v1.Group("/boms")
		{
			boms.GET("/:id", handlers.BOM.Get)
			boms.GET("/:id/export", handlers.BOM.Export)
		}
	}

	return router
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
		Logger: logger.Default.LogMode(logger.Info),
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

func initRedis(cfg config.RedisConfig, zapLogger *zap.Logger) *redis.Client {
	if cfg.Host == "" {
		zapLogger.Warn("Redis not configured, event notifications disabled")
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		zapLogger.Warn("Redis unreachable, event notifications disabled", zap.Error(err))
	}
	return rdb
}
