// Package coordinator owns the streaming session: the subscription set, the
// liveness marker, and the stop/resubscribe control protocol driven through
// the shared store. Session events are handled strictly one at a time, so
// the handlers see the same sequencing the venue guarantees on its own
// callback thread.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/mdalvi/mc-broker-api/pkg/kite"
	"github.com/mdalvi/mc-broker-api/pkg/models"
	"github.com/mdalvi/mc-broker-api/pkg/queue"
	"github.com/mdalvi/mc-broker-api/pkg/store"
)

type Coordinator struct {
	client    StreamClient
	store     ControlStore
	publisher queue.Publisher
	logger    *zap.Logger

	defaults []uint32
	state    State
}

func New(client StreamClient, ctrl ControlStore, publisher queue.Publisher, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		client:    client,
		store:     ctrl,
		publisher: publisher,
		logger:    logger,
		defaults:  DefaultSubscriptions,
		state:     StateIdle,
	}
}

// State returns the session state as of the last handled event.
func (c *Coordinator) State() State { return c.state }

// Run connects the streaming session and processes its events until the
// session closes or an operation fails. Subscribe/SetMode failures are not
// retried here: they surface to the caller, which is expected to be under
// process-level supervision.
func (c *Coordinator) Run(ctx context.Context) error {
	c.state = StateConnecting
	if err := c.client.Connect(ctx); err != nil {
		c.state = StateClosed
		return fmt.Errorf("coordinator: connect: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Context cancelled, closing session")
			c.client.Close()
			c.drainUntilClosed()
			c.state = StateClosed
			return ctx.Err()

		case ev, ok := <-c.client.Events():
			if !ok {
				c.state = StateClosed
				return nil
			}
			if err := c.handle(ctx, ev); err != nil {
				return err
			}
			if c.state == StateClosed {
				return nil
			}
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, ev kite.SessionEvent) error {
	switch ev.Kind {
	case kite.EventOpened:
		c.logger.Info("kt:on_open: completed")

	case kite.EventConnected:
		if err := c.resubscribe(ctx, "on_connect"); err != nil {
			return err
		}
		c.state = StateStreaming

	case kite.EventTicksReceived:
		return c.handleTicks(ctx, ev.Ticks)

	case kite.EventOrderUpdated:
		if err := c.store.SetFlag(ctx, store.FlagOrderUpdate, true); err != nil {
			return err
		}
		c.logger.Info("kt:on_order_update: completed")

	case kite.EventReconnectAttempted:
		c.state = StateReconnecting
		c.logger.Warn("kt:on_reconnect: attempt completed", zap.Int("attempt", ev.Attempt))

	case kite.EventReconnectGaveUp:
		c.logger.Warn("kt:on_noreconnect: completed")

	case kite.EventError:
		c.logger.Warn("kt:on_error: completed", zap.Int("code", ev.Code), zap.String("reason", ev.Reason))

	case kite.EventClosed:
		c.logger.Info("kt:on_close: completed", zap.Int("code", ev.Code), zap.String("reason", ev.Reason))
		c.state = StateClosed
	}
	return nil
}

// handleTicks forwards the batch first, so a stop request never loses the
// batch that delivered it.
func (c *Coordinator) handleTicks(ctx context.Context, ticks []models.Tick) error {
	payload, err := json.Marshal(ticks)
	if err != nil {
		return fmt.Errorf("coordinator: encoding tick batch: %w", err)
	}
	if err := c.publisher.Submit(ctx, queue.TaskCacheTicks, payload); err != nil {
		return fmt.Errorf("coordinator: forwarding tick batch: %w", err)
	}

	stop, err := c.store.GetFlag(ctx, store.FlagStop)
	if err != nil {
		return err
	}
	if stop {
		c.logger.Info("Stop flag set, closing session")
		return c.client.Close()
	}

	if err := c.store.SetLiveness(ctx, LivenessTTL); err != nil {
		return err
	}

	changed, err := c.store.GetFlag(ctx, store.FlagSubscriptionsUpdate)
	if err != nil {
		return err
	}
	if changed {
		if err := c.resubscribe(ctx, "on_ticks"); err != nil {
			return err
		}
		if err := c.store.SetFlag(ctx, store.FlagSubscriptionsUpdate, false); err != nil {
			return err
		}
	}

	c.logger.Debug("kt:on_ticks: completed", zap.Int("batch_size", len(ticks)))
	return nil
}

// resubscribe sends the full merged list every time. The venue treats
// subscribe/set_mode as idempotent unions, so resending is safe.
func (c *Coordinator) resubscribe(ctx context.Context, origin string) error {
	dynamic, err := c.store.ReadSet(ctx, store.KeySubscriptions)
	if err != nil {
		return err
	}
	merged := mergeSubscriptions(c.defaults, dynamic)

	if err := c.client.Subscribe(merged); err != nil {
		return fmt.Errorf("coordinator: subscribe: %w", err)
	}
	if err := c.client.SetMode(models.ModeFull, merged); err != nil {
		return fmt.Errorf("coordinator: set mode: %w", err)
	}
	c.state = StateSubscribed

	c.logger.Info(fmt.Sprintf("kt:%s: subscribed", origin), zap.Int("instruments", len(merged)))
	return nil
}

// mergeSubscriptions unions the fixed defaults with the dynamic set,
// preserving order and dropping duplicates.
func mergeSubscriptions(defaults, dynamic []uint32) []uint32 {
	seen := make(map[uint32]struct{}, len(defaults)+len(dynamic))
	merged := make([]uint32, 0, len(defaults)+len(dynamic))
	for _, tok := range defaults {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		merged = append(merged, tok)
	}
	for _, tok := range dynamic {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		merged = append(merged, tok)
	}
	return merged
}

// drainUntilClosed consumes remaining events after a close request so the
// transport goroutine can exit.
func (c *Coordinator) drainUntilClosed() {
	for ev := range c.client.Events() {
		if ev.Kind == kite.EventClosed {
			return
		}
	}
}
