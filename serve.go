package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/face-service/internal/config"
	"github.com/example/face-service/internal/handlers"
	"github.com/example/face-service/internal/repository"
	"github.com/example/face-service/internal/usecase"
)

func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	startCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	backend, err := newFaceBackend(startCtx, cfg, logger)
	if err != nil {
		logger.Error("failed to load face backend", zap.Error(err), zap.String("backend", cfg.Face.Backend))
		return err
	}
	defer backend.Close()

	extractor, comparator := newCore(backend, cfg)
	info := backend.Info()
	logger.Info("face model ready",
		zap.String("backend", cfg.Face.Backend),
		zap.String("model", info.Name),
		zap.Int("dimension", info.Dimension),
		zap.Float64("threshold", comparator.Threshold()),
	)

	opts := handlers.Options{MaxUploadBytes: cfg.HTTP.MaxUploadBytes, Logger: logger}
	if cfg.Metrics.Enabled {
		opts.MetricsHandler = promhttp.Handler()
	}

	var recorder usecase.OutcomeRecorder = usecase.NopRecorder{}
	if cfg.Audit.Enabled() {
		outcomes, closeAudit, err := initAudit(startCtx, cfg.Audit, logger)
		if err != nil {
			return err
		}
		defer closeAudit()
		recorder = outcomes
		opts.Outcomes = outcomes
	}

	uc := usecase.NewFaceUseCase(extractor, comparator, recorder, logger)

	gin.SetMode(cfg.HTTP.GinMode)
	r := gin.New()
	r.MaxMultipartMemory = cfg.HTTP.MaxUploadBytes
	handlers.RegisterRoutes(r, uc, opts)

	server := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTP.Addr, err)
	}
	logger.Info("face service listening", zap.String("addr", lis.Addr().String()))
	if err := serveHTTP(ctx, server, lis, cfg.HTTP.ShutdownTimeout, logger); err != nil {
		logger.Error("server failed", zap.Error(err))
		return err
	}
	return nil
}

// initAudit connects the outcome store and, when configured, its cache.
func initAudit(ctx context.Context, cfg config.AuditConfig, logger *zap.Logger) (*usecase.OutcomeService, func(), error) {
	db, err := initDatabase(ctx, cfg.DatabaseDSN, logger)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("access db handle: %w", err)
	}
	closers := []func(){func() { sqlDB.Close() }}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	repo := repository.NewOutcomeRepository(db, logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("auto migrate failed: %w", err)
	}

	var cache usecase.Cache
	if cfg.RedisAddr != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		defer redisCancel()
		client, err := initRedis(redisCtx, cfg.RedisAddr, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { client.Close() })
		cache = usecase.NewRedisCache(client)
	}

	logger.Info("outcome audit enabled", zap.Bool("cache", cache != nil))
	return usecase.NewOutcomeService(repo, cache, cfg.CacheTTL, logger), closeAll, nil
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Error("failed to connect to database", zap.Error(err))
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access db handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Error("database ping failed", zap.Error(err))
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Error("redis connection failed", zap.Error(err), zap.String("addr", addr))
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// serveHTTP serves on lis until ctx is done, then gives in-flight
// requests shutdownTimeout to finish.
func serveHTTP(ctx context.Context, server *http.Server, lis net.Listener, shutdownTimeout time.Duration, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		err := server.Serve(lis)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("stopping face service", zap.Duration("shutdown_timeout", shutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return <-errCh
	}
}
