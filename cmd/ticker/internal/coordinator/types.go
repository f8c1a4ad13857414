package coordinator

import (
	"context"
	"time"

	"github.com/mdalvi/mc-broker-api/pkg/kite"
)

// State of the streaming session.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateSubscribed   State = "subscribed"
	StateStreaming    State = "streaming"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

// DefaultSubscriptions are always streamed regardless of the dynamic set:
// NIFTY 50, NIFTY BANK and INDIA VIX.
var DefaultSubscriptions = []uint32{256265, 260105, 264969}

// LivenessTTL bounds the quiet interval between tick batches under normal
// market activity; external monitors treat an expired key as a dead session.
const LivenessTTL = 3 * time.Second

// StreamClient abstracts the venue's streaming connection
type StreamClient interface {
	Connect(ctx context.Context) error
	Subscribe(tokens []uint32) error
	SetMode(mode string, tokens []uint32) error
	Close() error
	Events() <-chan kite.SessionEvent
}

// ControlStore is the slice of the shared store the coordinator reads and
// writes.
type ControlStore interface {
	GetFlag(ctx context.Context, name string) (bool, error)
	SetFlag(ctx context.Context, name string, value bool) error
	SetLiveness(ctx context.Context, ttl time.Duration) error
	ReadSet(ctx context.Context, name string) ([]uint32, error)
}
