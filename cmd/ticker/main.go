package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mdalvi/mc-broker-api/cmd/ticker/internal/coordinator"
	"github.com/mdalvi/mc-broker-api/pkg/auth"
	"github.com/mdalvi/mc-broker-api/pkg/config"
	"github.com/mdalvi/mc-broker-api/pkg/kite"
	"github.com/mdalvi/mc-broker-api/pkg/queue"
	"github.com/mdalvi/mc-broker-api/pkg/store"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger, cfg.App.Env)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	ctrl := store.NewRedisControl(rdb)

	accessToken, err := auth.DecryptToken(cfg.Kite.FernetKey, cfg.Kite.AccessToken)
	if err != nil {
		logger.Fatal("Failed to decrypt access token", zap.Error(err))
	}

	// Make sure the task topic exists before the first batch is forwarded
	creator := queue.NewTopicCreator(logger, &queue.RealKafkaDialer{Dialer: kafka.DefaultDialer}, queue.RealClock{})
	creator.Create(cfg.Kafka.Brokers, queue.TaskCacheTicks)

	writer := queue.NewWriter(cfg.Kafka.Brokers)
	publisher := queue.NewKafkaPublisher(writer, logger)
	defer publisher.Close()

	ticker := kite.NewTicker(cfg.Kite.WSURL, cfg.Kite.APIKey, accessToken, logger)
	coord := coordinator.New(ticker, ctrl, publisher, logger)

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping ticker...")
		cancel()
	}()

	logger.Info("Ticker Started", zap.String("ws_url", cfg.Kite.WSURL))
	if err := coord.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatal("Coordinator exited with error", zap.Error(err))
	}

	if err := ctrl.Close(); err != nil {
		logger.Error("Error closing Redis", zap.Error(err))
	}
	logger.Info("Ticker exited cleanly")
}
