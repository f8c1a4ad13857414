package kite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultReconnectTries = 50
	defaultReconnectDelay = 2 * time.Second
	writeTimeout          = 5 * time.Second
	eventBuffer           = 256
)

// Ticker is the streaming client for the venue's websocket feed. It owns
// the transport (dialing, reading, reconnecting) and surfaces everything
// else as SessionEvents; session-level policy lives with the consumer.
type Ticker struct {
	wsURL       string
	apiKey      string
	accessToken string
	logger      *zap.Logger

	reconnectTries int
	reconnectDelay time.Duration

	events chan SessionEvent

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// TickerOption configures a Ticker.
type TickerOption func(*Ticker)

// WithReconnect overrides the reconnect attempt ceiling and delay.
func WithReconnect(tries int, delay time.Duration) TickerOption {
	return func(t *Ticker) {
		t.reconnectTries = tries
		t.reconnectDelay = delay
	}
}

func NewTicker(wsURL, apiKey, accessToken string, logger *zap.Logger, opts ...TickerOption) *Ticker {
	t := &Ticker{
		wsURL:          wsURL,
		apiKey:         apiKey,
		accessToken:    accessToken,
		logger:         logger,
		reconnectTries: defaultReconnectTries,
		reconnectDelay: defaultReconnectDelay,
		events:         make(chan SessionEvent, eventBuffer),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Events returns the session event channel. It is closed when the session
// reaches its terminal state.
func (t *Ticker) Events() <-chan SessionEvent {
	return t.events
}

// Connect performs the websocket handshake and starts the read loop.
func (t *Ticker) Connect(ctx context.Context) error {
	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	t.conn = conn
	t.writeMu.Unlock()

	t.events <- SessionEvent{Kind: EventOpened}
	t.events <- SessionEvent{Kind: EventConnected}

	go t.readLoop()
	return nil
}

func (t *Ticker) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(t.wsURL)
	if err != nil {
		return nil, newError(KindInput, 0, "invalid websocket url", err)
	}
	q := u.Query()
	q.Set("api_key", t.apiKey)
	q.Set("access_token", t.accessToken)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), http.Header{
		"X-Kite-Version": []string{kiteHeaderVersion},
	})
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		if status == http.StatusForbidden || status == http.StatusUnauthorized {
			return nil, newError(KindToken, status, "websocket handshake rejected", err)
		}
		return nil, newError(KindNetwork, status, "websocket dial failed", err)
	}
	return conn, nil
}

// Subscribe asks the venue to start streaming the given tokens. The venue
// treats repeated subscriptions as a union, so resending a full list is safe.
func (t *Ticker) Subscribe(tokens []uint32) error {
	return t.sendCommand(map[string]interface{}{"a": "subscribe", "v": tokens})
}

// SetMode switches the streaming detail level for the given tokens.
func (t *Ticker) SetMode(mode string, tokens []uint32) error {
	return t.sendCommand(map[string]interface{}{"a": "mode", "v": []interface{}{mode, tokens}})
}

func (t *Ticker) sendCommand(cmd map[string]interface{}) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return newError(KindInput, 0, "encoding command", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.conn == nil {
		return newError(KindNetwork, 0, "not connected", nil)
	}
	t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := t.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return newError(KindNetwork, 0, "writing command", err)
	}
	return nil
}

// Close terminates the session. The read loop observes the closure and
// emits the terminal Closed event.
func (t *Ticker) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.conn == nil {
		return nil
	}
	t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client shutdown"))
	return t.conn.Close()
}

func (t *Ticker) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Ticker) readLoop() {
	defer close(t.events)

	for {
		msgType, payload, err := t.conn.ReadMessage()
		if err != nil {
			if t.isClosed() {
				t.events <- SessionEvent{Kind: EventClosed, Code: websocket.CloseNormalClosure, Reason: "client shutdown"}
				return
			}

			code, reason := closeDetails(err)
			t.events <- SessionEvent{Kind: EventError, Code: code, Reason: reason}

			if !t.reconnect() {
				t.events <- SessionEvent{Kind: EventClosed, Code: code, Reason: reason}
				return
			}
			continue
		}

		switch msgType {
		case websocket.BinaryMessage:
			// Single-byte heartbeats carry no packets.
			if len(payload) <= 1 {
				continue
			}
			if ticks := parseBinary(payload); len(ticks) > 0 {
				t.events <- SessionEvent{Kind: EventTicksReceived, Ticks: ticks}
			}

		case websocket.TextMessage:
			t.routeText(payload)
		}
	}
}

// reconnect re-dials with a fixed delay up to the attempt ceiling. Returns
// false when the session should go terminal instead.
func (t *Ticker) reconnect() bool {
	for attempt := 1; attempt <= t.reconnectTries; attempt++ {
		if t.isClosed() {
			return false
		}

		t.events <- SessionEvent{Kind: EventReconnectAttempted, Attempt: attempt}
		time.Sleep(t.reconnectDelay)

		conn, err := t.dial(context.Background())
		if err != nil {
			t.logger.Warn("Reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		t.writeMu.Lock()
		t.conn = conn
		t.writeMu.Unlock()

		t.events <- SessionEvent{Kind: EventConnected}
		return true
	}

	t.events <- SessionEvent{Kind: EventReconnectGaveUp}
	return false
}

func (t *Ticker) routeText(payload []byte) {
	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.logger.Debug("Unparseable text frame", zap.ByteString("payload", payload))
		return
	}

	switch msg.Type {
	case "order":
		t.events <- SessionEvent{Kind: EventOrderUpdated, Order: msg.Data}
	case "error":
		t.events <- SessionEvent{Kind: EventError, Reason: string(msg.Data)}
	default:
		t.logger.Debug("Ignoring text frame", zap.String("type", msg.Type))
	}
}

func closeDetails(err error) (int, string) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code, closeErr.Text
	}
	return websocket.CloseAbnormalClosure, fmt.Sprintf("transport error: %v", err)
}
