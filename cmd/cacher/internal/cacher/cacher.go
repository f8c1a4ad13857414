// Package cacher drains forwarded tick batches from the task topic and
// persists them into the shared store: last price and an ordered tick log
// per instrument, plus a global snapshot and batch log. Writes are
// independent and idempotent, so at-least-once redelivery reproduces the
// same final state.
package cacher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/mdalvi/mc-broker-api/pkg/models"
)

type Cacher struct {
	logger     *zap.Logger
	store      CacheStore
	reader     KafkaReader
	numWorkers int
}

func New(logger *zap.Logger, store CacheStore, reader KafkaReader, numWorkers int) *Cacher {
	return &Cacher{
		logger:     logger,
		store:      store,
		reader:     reader,
		numWorkers: numWorkers,
	}
}

func (c *Cacher) Run(ctx context.Context) error {
	workerChans := make([]chan []byte, c.numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < c.numWorkers; i++ {
		workerChans[i] = make(chan []byte, 100)
		wg.Add(1)
		go c.worker(i, workerChans[i], &wg)
	}

	// The reader goroutine is the only sender on the worker channels, so it
	// must be the one that stops before they close. readerDone marks its exit.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		c.logger.Info("Cacher Started", zap.Int("workers", c.numWorkers))

		// Batches are independent units; round-robin is enough since
		// inter-batch ordering is best-effort by contract.
		next := 0
		for {
			m, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				c.logger.Error("Kafka Read Error", zap.Error(err))
				if ctx.Err() != nil {
					return
				}
				continue
			}

			select {
			case workerChans[next] <- m.Value:
			case <-ctx.Done():
				return
			}
			next = (next + 1) % c.numWorkers
		}
	}()

	<-ctx.Done()
	c.logger.Info("Shutdown signal received, stopping cacher...")
	<-readerDone

	for _, ch := range workerChans {
		close(ch)
	}
	c.logger.Info("Waiting for workers to drain...")
	wg.Wait()

	return nil
}

func (c *Cacher) worker(id int, batches <-chan []byte, wg *sync.WaitGroup) {
	defer wg.Done()
	// Background context so an in-flight batch finishes its writes
	ctx := context.Background()

	for payload := range batches {
		c.cacheBatch(ctx, id, payload)
	}
}

// cacheBatch applies one forwarded batch. Failures are logged per write and
// the rest of the batch still goes through: the updates are idempotent, so
// redelivery heals any holes.
func (c *Cacher) cacheBatch(ctx context.Context, workerID int, payload []byte) {
	var ticks []models.Tick
	if err := json.Unmarshal(payload, &ticks); err != nil {
		c.logger.Error("JSON Unmarshal Error", zap.Error(err), zap.Int("worker_id", workerID))
		return
	}

	for _, tick := range ticks {
		if err := c.store.SetLastPrice(ctx, tick.InstrumentToken, tick.LastPrice); err != nil {
			c.logger.Error("Last price write failed", zap.Uint32("token", tick.InstrumentToken), zap.Error(err))
		}

		serialized, err := json.Marshal(tick)
		if err != nil {
			c.logger.Error("Tick serialization failed", zap.Uint32("token", tick.InstrumentToken), zap.Error(err))
			continue
		}
		if err := c.store.AppendTickLog(ctx, tick.InstrumentToken, serialized); err != nil {
			c.logger.Error("Tick log append failed", zap.Uint32("token", tick.InstrumentToken), zap.Error(err))
		}
	}

	if err := c.store.SetSnapshot(ctx, payload); err != nil {
		c.logger.Error("Snapshot write failed", zap.Error(err))
	}
	if err := c.store.AppendBatchLog(ctx, payload); err != nil {
		c.logger.Error("Batch log append failed", zap.Error(err))
	}

	c.logger.Debug("Batch cached", zap.Int("ticks", len(ticks)), zap.Int("worker_id", workerID))
}
