package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/framevault/internal/auth"
	"github.com/framevault/internal/cache"
	"github.com/framevault/internal/config"
	"github.com/framevault/internal/files"
	"github.com/framevault/internal/jobs"
	"github.com/framevault/internal/middleware"
	"github.com/framevault/internal/models"
	"github.com/framevault/internal/objectstore"
	"github.com/framevault/internal/quota"
	"github.com/framevault/internal/storage"
	"github.com/framevault/internal/transcode"
	"github.com/framevault/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg)

	// 数据库
	driver := "postgres"
	if cfg.Database.Type == "sqlite" {
		driver = "sqlite3"
	}
	db, err := sql.Open(driver, cfg.GetDSN())
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}
	logger.Infof("Connected to %s", cfg.Database.Type)

	// Redis：转码任务队列与令牌吊销名单
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.Redis.Address,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	logger.Info("Connected to Redis")

	// 对象存储
	objects, err := objectstore.NewService(cfg)
	if err != nil {
		logger.Fatalf("Failed to create object store: %v", err)
	}
	if err := objects.EnsureBucket(context.Background()); err != nil {
		logger.Fatalf("Failed to ensure bucket: %v", err)
	}
	logger.Info("Object store initialized")

	// 核心组件装配
	userCache := cache.New[*models.User](cfg.Cache.Memory.TTL, cfg.Cache.Memory.MaxSize)
	ledger := quota.NewLedger(db, cfg.Quota.UserStorageLimit, userCache, logger)
	fileStore := files.NewStore(db)
	originalStore := files.NewOriginalStore(db)
	userRepo := users.NewRepository(db)

	storageService := storage.NewService(objects, fileStore, originalStore, ledger, cfg, logger)
	authService := auth.NewService(userRepo, userCache, rdb, cfg, logger)

	// 转码工作进程
	queue := jobs.NewQueue(rdb)
	worker := jobs.NewWorker(queue, transcode.NewFFmpeg(cfg, logger), storageService, logger)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	go func() {
		if err := worker.Run(workerCtx); err != nil && err != context.Canceled {
			logger.WithError(err).Error("worker stopped")
		}
	}()

	// 路由
	gin.SetMode(cfg.GetGINMode())
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.CORSMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/register", handleRegister(authService))
		authGroup.POST("/login", handleLogin(authService))

		authed := authGroup.Group("", middleware.AuthMiddleware(authService))
		authed.GET("/me", handleGetMe(authService))
		authed.POST("/logout", handleLogout(authService))
		authed.PATCH("/loop-delay", handleUpdateLoopDelay(authService))
	}

	fileGroup := router.Group("/api/files")
	fileGroup.Use(middleware.AuthMiddleware(authService))
	{
		fileGroup.POST("/upload", handleUpload(storageService, queue, cfg, logger))
		fileGroup.POST("/upload-with-original", handleUploadWithOriginal(storageService))
		fileGroup.GET("", handleListFiles(fileStore, storageService, authService, logger))
		fileGroup.GET("/:id", handleFileDetails(fileStore))

		fileGroup.PATCH("/:id/archive", handleTransition(fileStore, fileStore.Archive))
		fileGroup.PATCH("/:id/unarchive", handleTransition(fileStore, fileStore.Unarchive))
		fileGroup.PATCH("/:id/trash", handleTransition(fileStore, fileStore.Trash))
		fileGroup.PATCH("/:id/restore", handleTransition(fileStore, fileStore.Restore))

		fileGroup.POST("/bulk/archive", handleBulkTransition(fileStore.ArchiveMany))
		fileGroup.POST("/bulk/unarchive", handleBulkTransition(fileStore.UnarchiveMany))
		fileGroup.POST("/bulk/trash", handleBulkTransition(fileStore.TrashMany))
		fileGroup.POST("/bulk/restore", handleBulkTransition(fileStore.RestoreMany))

		fileGroup.POST("/bulk-delete", handleBulkDelete(storageService))
		fileGroup.DELETE("/trash", handleEmptyTrash(storageService))
		fileGroup.DELETE("/trash/:id", handleDeleteTrashed(storageService))

		fileGroup.GET("/originals", handleListOriginals(originalStore))
		fileGroup.DELETE("/originals/:id", handleDeleteOriginal(storageService))
		fileGroup.POST("/originals/bulk-delete", handleBulkDeleteOriginals(storageService))
	}

	srv := &http.Server{
		Addr:           cfg.Server.Address,
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Infof("Starting server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stopWorker()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" || cfg.IsProduction() {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	return logger
}
