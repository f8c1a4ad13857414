package testutils

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/segmentio/kafka-go"
)

type MockKafkaReader struct {
	Messages []kafka.Message
	Index    int
	Mu       sync.Mutex
	// Closed simulates a closed connection or end of stream
	Closed bool
}

func (m *MockKafkaReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if m.Closed {
		return kafka.Message{}, io.EOF
	}

	if m.Index >= len(m.Messages) {
		// Returning DeadlineExceeded is a clean way to stop the read loop in tests
		return kafka.Message{}, context.DeadlineExceeded
	}

	msg := m.Messages[m.Index]
	m.Index++
	return msg, nil
}

func (m *MockKafkaReader) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	return nil
}

// FloodKafkaReader returns the same message on every call, and keeps
// delivering for a bounded number of reads after the context is cancelled,
// the way a consumer with buffered fetches does.
type FloodKafkaReader struct {
	Message     kafka.Message
	AfterCancel int
	Mu          sync.Mutex
}

func (r *FloodKafkaReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if ctx.Err() != nil {
		r.Mu.Lock()
		defer r.Mu.Unlock()
		if r.AfterCancel <= 0 {
			return kafka.Message{}, ctx.Err()
		}
		r.AfterCancel--
	}
	return r.Message, nil
}

func (r *FloodKafkaReader) Close() error { return nil }

// MockCacheStore records writes; per-method error hooks simulate a store
// going away mid-batch.
type MockCacheStore struct {
	Mu         sync.Mutex
	LastPrices map[uint32]float64
	TickLogs   map[uint32][]string
	Snapshots  []string
	BatchLogs  []string

	LastPriceErr error
	TickLogErr   error
}

func NewMockCacheStore() *MockCacheStore {
	return &MockCacheStore{
		LastPrices: make(map[uint32]float64),
		TickLogs:   make(map[uint32][]string),
	}
}

func (m *MockCacheStore) SetLastPrice(_ context.Context, token uint32, price float64) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.LastPriceErr != nil {
		return m.LastPriceErr
	}
	m.LastPrices[token] = price
	return nil
}

func (m *MockCacheStore) AppendTickLog(_ context.Context, token uint32, payload []byte) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.TickLogErr != nil {
		return m.TickLogErr
	}
	m.TickLogs[token] = append(m.TickLogs[token], string(payload))
	return nil
}

func (m *MockCacheStore) SetSnapshot(_ context.Context, payload []byte) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Snapshots = append(m.Snapshots, string(payload))
	return nil
}

func (m *MockCacheStore) AppendBatchLog(_ context.Context, payload []byte) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.BatchLogs = append(m.BatchLogs, string(payload))
	return nil
}

func (m *MockCacheStore) String() string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return fmt.Sprintf("MockCacheStore(prices=%d, logs=%d)", len(m.LastPrices), len(m.TickLogs))
}
