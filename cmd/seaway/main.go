package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"

	"github.com/seaway-erp/seaway-erp/internal/app"
	"github.com/seaway-erp/seaway-erp/internal/export"
	exporthttp "github.com/seaway-erp/seaway-erp/internal/export/http"
	"github.com/seaway-erp/seaway-erp/internal/files"
	"github.com/seaway-erp/seaway-erp/internal/orgs"
	"github.com/seaway-erp/seaway-erp/internal/platform/db"
	"github.com/seaway-erp/seaway-erp/internal/sources"
	"github.com/seaway-erp/seaway-erp/internal/subjects"
	"github.com/seaway-erp/seaway-erp/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	minioClient, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		logger.Error("connect object store", slog.Any("error", err))
		os.Exit(1)
	}

	registrar := files.NewRegistrar(minioClient, cfg.MinioBucket, pool)
	if err := registrar.EnsureBucket(ctx); err != nil {
		logger.Error("ensure bucket", slog.Any("error", err))
		os.Exit(1)
	}

	queueClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	orgResolver := orgs.NewResolver(orgs.NewRepository(pool))
	subjectsCache := subjects.NewCache(redisClient, cfg.SubjectsCacheTTL)
	subjectsResolver := subjects.NewResolver(subjects.NewRepository(pool), subjectsCache)

	exportService := export.NewService(export.ServiceConfig{
		Tasks:     export.NewRepository(pool),
		Scopes:    orgResolver,
		Configs:   subjectsResolver,
		Records:   sources.NewRepository(pool),
		Registrar: registrar,
		Queue:     queueClient,
		Logger:    logger,
	})

	exportHandler := exporthttp.NewHandler(logger, exportService, registrar)
	jobHandler := jobs.NewHandler(asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr}), logger)

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		ExportHandler: exportHandler,
		JobHandler:    jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server run", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
