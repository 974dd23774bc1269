// twok/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"twok/auth"
	"twok/config"
	"twok/database"
	"twok/handlers"
	"twok/models"
	"twok/posting"
	"twok/utils"
)

type Application struct {
	db           *database.DatabaseService
	auth         *auth.Service
	posting      *posting.Pipeline
	broker       *models.ReplyBroker
	rateLimiter  *models.RateLimiter
	storage      models.StorageService
	logger       *slog.Logger
	uploadDir    string
	pollInterval time.Duration
	trustProxy   bool
}

// Methods to satisfy the handlers.App interface
func (a *Application) DB() *database.DatabaseService     { return a.db }
func (a *Application) Auth() *auth.Service               { return a.auth }
func (a *Application) Posting() *posting.Pipeline        { return a.posting }
func (a *Application) Broker() *models.ReplyBroker       { return a.broker }
func (a *Application) RateLimiter() *models.RateLimiter  { return a.rateLimiter }
func (a *Application) Storage() models.StorageService    { return a.storage }
func (a *Application) Logger() *slog.Logger              { return a.logger }
func (a *Application) UploadDir() string                 { return a.uploadDir }
func (a *Application) StreamPollInterval() time.Duration { return a.pollInterval }
func (a *Application) TrustProxyHeaders() bool           { return a.trustProxy }

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: utils.LogLevel(utils.GetEnv("TWOK_LOG_LEVEL", "info")),
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	utils.BackupDir = cfg.BackupDir
	if err := utils.EnsureDir(utils.BackupDir); err != nil {
		logger.Error("FATAL: Could not create backup directory", "path", utils.BackupDir, "error", err)
		os.Exit(1)
	}

	dbService, err := database.InitDB(cfg.DatabaseURL, logger, database.Options{
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnectAttempts: cfg.ConnectAttempts,
		ConnectDelay:    cfg.ConnectDelay,
		PageSize:        cfg.ItemsPerPage,
		AdminUsername:   cfg.AdminUsername,
		AdminPassword:   cfg.AdminPassword,
	})
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbService.DB.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	// Cancelled on shutdown so open event streams return.
	baseCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// --- Storage Service Init ---
	var storageService models.StorageService
	uploadDir := ""
	if cfg.S3.Enabled {
		s3, err := utils.NewS3Storage(baseCtx, cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey,
			cfg.S3.Bucket, cfg.S3.Region, cfg.S3.PublicURL, cfg.S3.UseSSL)
		if err != nil {
			logger.Error("Failed to initialize S3 storage", "error", err)
			os.Exit(1)
		}
		storageService = s3
		logger.Info("S3 Storage initialized", "endpoint", cfg.S3.Endpoint, "bucket", cfg.S3.Bucket)
	} else {
		if err := utils.EnsureDir(cfg.UploadDir); err != nil {
			logger.Error("FATAL: Could not create uploads directory", "path", cfg.UploadDir, "error", err)
			os.Exit(1)
		}
		uploadDir = cfg.UploadDir
		storageService = &utils.LocalStorage{UploadDir: uploadDir}
		logger.Info("Local Storage initialized", "dir", uploadDir)
	}

	broker := models.NewReplyBroker()
	rateLimiter := models.NewRateLimiter(cfg.UploadRateEvery, cfg.UploadRateBurst, cfg.RateLimitPrune, cfg.RateLimitExpire)
	defer rateLimiter.Close()

	app := &Application{
		db:           dbService,
		auth:         auth.NewService(dbService.Users, cfg.JWTSecret),
		posting:      posting.New(dbService, broker, cfg.PostTimeLimit, logger),
		broker:       broker,
		rateLimiter:  rateLimiter,
		storage:      storageService,
		logger:       logger,
		uploadDir:    uploadDir,
		pollInterval: cfg.StreamPollInterval,
		trustProxy:   cfg.TrustProxyHeaders,
	}

	// --- Graceful Shutdown ---
	// No WriteTimeout: event streams stay open for as long as the client listens.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.SetupRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("twok server started successfully",
		"version", config.AppVersion,
		"address", "http://localhost:"+cfg.Port,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("Server exiting")
}
