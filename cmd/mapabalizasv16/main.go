package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aislen404/mapabalizasv16/common/database"
	logpkg "github.com/aislen404/mapabalizasv16/common/logger"
	commonmqtt "github.com/aislen404/mapabalizasv16/common/mqtt"
	commonredis "github.com/aislen404/mapabalizasv16/common/redis"
	"github.com/aislen404/mapabalizasv16/internal/config"
	"github.com/aislen404/mapabalizasv16/internal/feed"
	httpapi "github.com/aislen404/mapabalizasv16/internal/http"
	"github.com/aislen404/mapabalizasv16/internal/metrics"
	"github.com/aislen404/mapabalizasv16/internal/notify"
	"github.com/aislen404/mapabalizasv16/internal/service"
	"github.com/aislen404/mapabalizasv16/internal/store"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "mapabalizasv16")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, balizasRepo, historyRepo := openStorage(ctx, cfg, logger)

	// Snapshot cache backend and change stream
	var (
		redisClient *redis.Client
		kv          store.KV = store.NewMemoryKV(time.Now)
		sinks       []notify.Notifier
	)
	if cfg.RedisEnabled {
		c := commonredis.NewRedisClient(&cfg.Redis)
		if err := commonredis.Ping(ctx, c); err == nil {
			redisClient = c
			kv = store.NewRedisKV(c)
			sinks = append(sinks, notify.NewStreamNotifier(c, cfg.Notify.Stream, cfg.Notify.StreamMaxLen))
			logger.Info("Redis enabled", zap.String("addr", cfg.Redis.Addr))
		} else {
			logger.Warn("Redis enabled but unreachable, using in-memory cache", zap.Error(err))
			_ = commonredis.Close(c)
		}
	}

	var mqttClient *commonmqtt.Client
	if cfg.MQTT.Enabled {
		if c, err := commonmqtt.NewClient(&cfg.MQTT.Broker); err == nil {
			mqttClient = c
			sinks = append(sinks, notify.NewMQTTNotifier(c, cfg.MQTT.TopicPrefix))
			logger.Info("MQTT enabled", zap.String("broker", cfg.MQTT.Broker.Broker))
		} else {
			logger.Warn("MQTT enabled but connection failed, change events not published over MQTT", zap.Error(err))
		}
	}

	source := feed.NewBreakerSource(newSource(cfg), uint32(cfg.Feed.BreakerFailures), cfg.Feed.BreakerOpen, logger)
	provider := feed.NewProvider(source, logger)
	cache := service.NewSnapshotCache(kv, cfg.Cache.Key, cfg.Cache.TTL, time.Now, logger)

	balizas := service.NewBalizaService(provider, cache, balizasRepo, notify.NewMulti(logger, sinks...), logger)
	analytics := service.NewAnalyticsService(balizasRepo, historyRepo, logger)

	router := httpapi.NewRouter(logger)
	router.RegisterBalizaRoutes(httpapi.NewBalizaHandler(balizas, logger))
	router.RegisterAdminRoutes(httpapi.NewAdminHandler(balizas, analytics, cfg.ExportLimit, logger))
	if cfg.Metrics.Enabled {
		router.HandleHandler("/metrics", metrics.Handler())
	}

	go service.NewPoller(balizas, cfg.Poll.Interval, logger).Run(ctx)

	srv := service.NewServer(cfg.HTTP.Addr, router, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("HTTP server error", zap.Error(err))
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", zap.Error(err))
	}
	if mqttClient != nil {
		mqttClient.Disconnect()
	}
	if redisClient != nil {
		_ = commonredis.Close(redisClient)
	}
	_ = database.Close(db)

	logger.Info("Service stopped")
}

func newSource(cfg *config.Config) feed.Source {
	opts := feed.ClientOptions{Timeout: cfg.Feed.Timeout, RetryCount: cfg.Feed.RetryCount}
	if cfg.Feed.Source == config.FeedSourceDGT3 {
		return feed.NewDGTSource(cfg.Feed.APIURL, cfg.Feed.APIToken, opts)
	}
	return feed.NewDatex2Source(cfg.Feed.Datex2URL, opts)
}
