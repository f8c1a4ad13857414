package cacher

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// KafkaReader abstracts the input stream
type KafkaReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// CacheStore is the slice of the control store the cacher writes to.
type CacheStore interface {
	SetLastPrice(ctx context.Context, token uint32, price float64) error
	AppendTickLog(ctx context.Context, token uint32, payload []byte) error
	SetSnapshot(ctx context.Context, payload []byte) error
	AppendBatchLog(ctx context.Context, payload []byte) error
}
