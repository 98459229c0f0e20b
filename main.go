package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/aerofindr/internal/auth"
	"github.com/example/aerofindr/internal/config"
	"github.com/example/aerofindr/internal/events"
	"github.com/example/aerofindr/internal/handlers"
	"github.com/example/aerofindr/internal/logging"
	"github.com/example/aerofindr/internal/lookup"
	"github.com/example/aerofindr/internal/photos"
	"github.com/example/aerofindr/internal/usecase"
)

func main() {
	configPath := flag.String("config", getEnv("AEROFINDR_CONFIG", ""), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := lookup.New(cfg.Lookup.Provider, lookup.Options{
		BaseURL:    cfg.Lookup.BaseURL,
		APIKey:     cfg.Lookup.APIKey,
		Username:   cfg.Lookup.Username,
		Password:   cfg.Lookup.Password,
		RadiusKm:   cfg.Lookup.RadiusKm,
		LiveWindow: cfg.Lookup.LiveWindow,
		Timeout:    cfg.Lookup.Timeout,
		MaxPages:   cfg.Lookup.MaxPages,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create flight lookup client", zap.Error(err))
	}

	store := initPhotoStore(ctx, cfg.Minio, cfg.Photos, logger)

	opts := []usecase.Option{usecase.WithSessionIdleTTL(cfg.Server.SessionIdleTTL)}
	if cfg.Redis.Enabled {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		redisClient := initRedis(redisCtx, cfg.Redis, logger)
		redisCancel()
		defer redisClient.Close()

		stateCache := usecase.NewStateCache(usecase.NewRedisCache(redisClient), cfg.Redis.StateTTL, logger)
		opts = append(opts, usecase.WithObservers(stateCache), usecase.WithStateReader(stateCache))
	}
	if cfg.RabbitMQ.Enabled {
		publisher, closeAMQP, err := events.DialAMQP(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger)
		if err != nil {
			logger.Fatal("failed to connect to rabbitmq", zap.Error(err))
		}
		defer closeAMQP() //nolint:errcheck
		opts = append(opts, usecase.WithObservers(publisher))
	}

	uc := usecase.NewFlightLookupUseCase(client, store, logger, opts...)

	r := gin.Default()
	r.MaxMultipartMemory = cfg.Server.MaxUploadBytes

	authMiddleware := auth.JWTMiddleware(cfg.Auth.JWTSecret, cfg.Auth.JWTAudience)

	handlers.RegisterRoutes(r, uc, store, authMiddleware, handlers.Options{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		WaitTimeout:    cfg.Server.WaitTimeout,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	logger.Info("AeroFindr API listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("provider", cfg.Lookup.Provider),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.Bool("rabbitmq", cfg.RabbitMQ.Enabled),
		zap.Bool("minio", cfg.Minio.Enabled),
	)
	if err := serveHTTPServer(server, cfg.Server.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
	uc.Drain()
}

func initPhotoStore(ctx context.Context, cfg config.Minio, mem config.Photos, zapLogger *zap.Logger) photos.Store {
	if !cfg.Enabled {
		zapLogger.Info("minio disabled, keeping photos in memory",
			zap.Duration("ttl", mem.MemoryTTL),
			zap.Int("max_items", mem.MemoryMaxItems),
		)
		return photos.NewMemoryStore(photos.WithTTL(mem.MemoryTTL), photos.WithMaxItems(mem.MemoryMaxItems))
	}
	store, err := photos.NewMinioStore(ctx, photos.MinioOptions{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Bucket:    cfg.Bucket,
		Secure:    cfg.Secure,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to initialise photo store", zap.Error(err))
	}
	return store
}

func initRedis(ctx context.Context, cfg config.Redis, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
