package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mdalvi/mc-broker-api/cmd/cacher/internal/cacher"
	"github.com/mdalvi/mc-broker-api/pkg/config"
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

	creator := queue.NewTopicCreator(logger, &queue.RealKafkaDialer{Dialer: kafka.DefaultDialer}, queue.RealClock{})
	creator.Create(cfg.Kafka.Brokers, queue.TaskCacheTicks)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    queue.TaskCacheTicks,
		GroupID:  cfg.Kafka.GroupID,
		MinBytes: 200,
		MaxBytes: 10e6,
		MaxWait:  200 * time.Millisecond,
		// Auto-commit for throughput; cache writes are idempotent so
		// reprocessing after a crash is harmless
		CommitInterval: 1,
		// Rebalancing: 3s heartbeat, 10s session timeout for responsive scaling
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    10 * time.Second,
	})

	c := cacher.New(logger, ctrl, reader, cfg.Cacher.NumWorkers)

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := c.Run(ctx); err != nil {
		logger.Error("Cacher exited with error", zap.Error(err))
	}

	logger.Info("Closing Kafka Reader...")
	if err := reader.Close(); err != nil {
		logger.Error("Error closing reader", zap.Error(err))
	}

	logger.Info("Closing Redis...")
	if err := ctrl.Close(); err != nil {
		logger.Error("Error closing Redis", zap.Error(err))
	}

	logger.Info("Cacher exited cleanly")
}
