package kite

import (
	"encoding/json"

	"github.com/mdalvi/mc-broker-api/pkg/models"
)

// EventKind identifies a streaming session event.
type EventKind string

const (
	EventOpened             EventKind = "opened"
	EventConnected          EventKind = "connected"
	EventTicksReceived      EventKind = "ticks"
	EventOrderUpdated       EventKind = "order_update"
	EventReconnectAttempted EventKind = "reconnect"
	EventReconnectGaveUp    EventKind = "noreconnect"
	EventError              EventKind = "error"
	EventClosed             EventKind = "closed"
)

// SessionEvent is one typed event from the streaming session. The transport
// delivers events strictly in order on a single channel, so consumers see
// the same sequencing the venue's callback API would give them.
type SessionEvent struct {
	Kind EventKind

	Ticks   []models.Tick   // EventTicksReceived
	Order   json.RawMessage // EventOrderUpdated
	Attempt int             // EventReconnectAttempted
	Code    int             // EventClosed, EventError
	Reason  string          // EventClosed, EventError
}
