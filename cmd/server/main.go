package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"lessonscope/docs"
	"lessonscope/internal/auth"
	"lessonscope/internal/cache"
	"lessonscope/internal/config"
	"lessonscope/internal/db"
	"lessonscope/internal/gemini"
	"lessonscope/internal/handler"
	"lessonscope/internal/logging"
	"lessonscope/internal/metrics"
	"lessonscope/internal/middleware"
	"lessonscope/internal/repository"
	"lessonscope/internal/router"
	"lessonscope/internal/service"
	"lessonscope/internal/storage"
	"lessonscope/internal/wechat"
	"lessonscope/internal/worker"
)

// @title Lesson Recording Analysis API
// @version 1.0
// @description Backend for the lesson recording mini-program: WeChat login, audio upload, transcription and teaching analysis reports.
// @host localhost:8080
// @BasePath /api
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the session token.
func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	started := time.Now()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(os.Stdout, cfg.Server.Env)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gormDB, err := db.NewMySQL(cfg.MySQL)
	if err != nil {
		return fmt.Errorf("database init: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}
	defer sqlDB.Close()

	if cfg.MySQL.MigrateOnStart {
		if cfg.MySQL.ResetOnStart {
			logger.Warn("RESET_DB=true detected, dropping all tables")
		}
		if err := db.Migrate(ctx, gormDB, cfg.MySQL.ResetOnStart); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("database migrations completed")
	}

	cacheClient := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer cacheClient.Close()
	if err := cacheClient.Ping(ctx); err != nil {
		logger.Warn("redis unavailable, caching disabled until it recovers", "error", err)
	}

	objectStore, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("storage init: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.RegisterCollectors(registry)

	store := repository.NewStore(gormDB)
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.SessionTTL)
	sessionCache := auth.NewSessionCache(cacheClient)
	wechatClient := wechat.NewClient(cfg.WeChat)
	geminiClient := gemini.NewClient(cfg.Gemini, cfg.Storage.MaxUploadBytes)

	pool := worker.New(worker.Config{
		Workers:   cfg.Pipeline.Workers,
		QueueSize: cfg.Pipeline.QueueSize,
	}, logger)

	// Initialize services
	authService := service.NewAuthService(store, jwtService, sessionCache, wechatClient)
	userService := service.NewUserService(store.Users(), cacheClient)
	pipeline := service.NewPipeline(store, geminiClient, geminiClient, objectStore, service.PipelineOptions{
		SignedURLTTL: cfg.Storage.SignedURLTTL,
		StepTimeout:  cfg.Pipeline.StepTimeout,
	}, logger)
	// Jobs do not survive a restart; release whatever the last process left processing.
	staleRecordings, staleReports, err := pipeline.FailInterrupted(ctx)
	if err != nil {
		return err
	}
	if staleRecordings > 0 || staleReports > 0 {
		logger.Warn("failed jobs interrupted by the previous shutdown", "recordings", staleRecordings, "reports", staleReports)
	}
	recordingService := service.NewRecordingService(store, objectStore, pool, pipeline, logger)
	reportService := service.NewReportService(store)
	adminService := service.NewAdminService(store)

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	janitorDone := make(chan struct{})
	janitor := service.NewSessionJanitor(authService, cfg.Sessions.SweepInterval, logger)
	go func() {
		defer close(janitorDone)
		janitor.Run(janitorCtx)
	}()

	// Initialize handlers
	handlers := router.Handlers{
		Auth:      handler.NewAuthHandler(authService),
		User:      handler.NewUserHandler(userService),
		Upload:    handler.NewUploadHandler(objectStore, storage.NewUploadPolicy(cfg.Storage.MaxUploadBytes, nil)),
		Recording: handler.NewRecordingHandler(recordingService),
		Report:    handler.NewReportHandler(reportService),
		Admin:     handler.NewAdminHandler(adminService),
		Health:    handler.NewHealthHandler(started),
	}

	e := echo.New()
	router.Register(e, handlers, router.Options{
		Logger:            logger,
		JWTSecret:         jwtService.Secret(),
		Sessions:          authService,
		Users:             userService,
		LoginLimiter:      middleware.NewKeyedRateLimiter(cfg.RateLimit.LoginRPS, cfg.RateLimit.LoginBurst, 10*time.Minute),
		TranscribeLimiter: middleware.NewKeyedRateLimiter(cfg.RateLimit.TranscribeRPS, cfg.RateLimit.TranscribeBurst, 10*time.Minute),
		MaxUploadBytes:    cfg.Storage.MaxUploadBytes,
		Gatherer:          registry,
		ExposeErrors:      !cfg.Server.IsProduction(),
	})

	if cfg.SwaggerHost != "" {
		docs.SwaggerInfo.Host = strings.TrimPrefix(strings.TrimPrefix(cfg.SwaggerHost, "https://"), "http://")
	}
	logger.Info("swagger documentation available", "url", "http://"+docs.SwaggerInfo.Host+"/swagger/index.html")

	serverErr := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Info("server listening", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("server start", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Error("pipeline pool shutdown", "error", err)
	}
	stopJanitor()
	<-janitorDone

	logger.Info("server stopped")
	return nil
}
