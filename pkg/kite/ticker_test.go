package kite

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// fakeVenueServer upgrades websocket connections and records commands.
type fakeVenueServer struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conn     *websocket.Conn
	commands []map[string]interface{}
}

func newFakeVenueServer(t *testing.T) (*fakeVenueServer, *httptest.Server) {
	fv := &fakeVenueServer{t: t}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") == "" {
			t.Error("Expected api_key in handshake query")
		}
		conn, err := fv.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fv.mu.Lock()
		fv.conn = conn
		fv.mu.Unlock()

		for {
			msgType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType == websocket.TextMessage {
				var cmd map[string]interface{}
				if err := json.Unmarshal(payload, &cmd); err == nil {
					fv.mu.Lock()
					fv.commands = append(fv.commands, cmd)
					fv.mu.Unlock()
				}
			}
		}
	}))
	return fv, srv
}

func (fv *fakeVenueServer) send(msgType int, payload []byte) {
	deadline := time.Now().Add(time.Second)
	for {
		fv.mu.Lock()
		conn := fv.conn
		fv.mu.Unlock()
		if conn != nil {
			conn.WriteMessage(msgType, payload)
			return
		}
		if time.Now().After(deadline) {
			fv.t.Fatal("Server never accepted a connection")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func collectEvents(ticker *Ticker, want EventKind, timeout time.Duration) (SessionEvent, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ticker.Events():
			if !ok {
				return SessionEvent{}, false
			}
			if ev.Kind == want {
				return ev, true
			}
		case <-deadline:
			return SessionEvent{}, false
		}
	}
}

func TestTicker_ConnectEmitsOpenedAndConnected(t *testing.T) {
	_, srv := newFakeVenueServer(t)
	defer srv.Close()

	ticker := NewTicker(wsURL(srv), "key", "secret", zap.NewNop(), WithReconnect(1, 10*time.Millisecond))
	if err := ticker.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ticker.Close()

	if ev := <-ticker.Events(); ev.Kind != EventOpened {
		t.Errorf("Expected opened first, got %s", ev.Kind)
	}
	if ev := <-ticker.Events(); ev.Kind != EventConnected {
		t.Errorf("Expected connected second, got %s", ev.Kind)
	}
}

func TestTicker_SubscribeSendsCommand(t *testing.T) {
	fv, srv := newFakeVenueServer(t)
	defer srv.Close()

	ticker := NewTicker(wsURL(srv), "key", "secret", zap.NewNop())
	if err := ticker.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ticker.Close()

	if err := ticker.Subscribe([]uint32{256265, 408065}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := ticker.SetMode("full", []uint32{256265, 408065}); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}

	// Commands arrive on the server's read loop
	deadline := time.Now().Add(time.Second)
	for {
		fv.mu.Lock()
		n := len(fv.commands)
		fv.mu.Unlock()
		if n >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	fv.mu.Lock()
	defer fv.mu.Unlock()
	if len(fv.commands) != 2 {
		t.Fatalf("Expected 2 commands, got %d", len(fv.commands))
	}
	if fv.commands[0]["a"] != "subscribe" {
		t.Errorf("Expected subscribe action, got %v", fv.commands[0])
	}
	if fv.commands[1]["a"] != "mode" {
		t.Errorf("Expected mode action, got %v", fv.commands[1])
	}
}

func TestTicker_BinaryMessageBecomesTicks(t *testing.T) {
	fv, srv := newFakeVenueServer(t)
	defer srv.Close()

	ticker := NewTicker(wsURL(srv), "key", "secret", zap.NewNop())
	if err := ticker.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ticker.Close()

	fv.send(websocket.BinaryMessage, wrapMessage(ltpPacket(408065, 152050)))

	ev, ok := collectEvents(ticker, EventTicksReceived, time.Second)
	if !ok {
		t.Fatal("Expected ticks event")
	}
	if len(ev.Ticks) != 1 || ev.Ticks[0].InstrumentToken != 408065 {
		t.Errorf("Bad tick batch: %+v", ev.Ticks)
	}
}

func TestTicker_HeartbeatIgnored(t *testing.T) {
	fv, srv := newFakeVenueServer(t)
	defer srv.Close()

	ticker := NewTicker(wsURL(srv), "key", "secret", zap.NewNop())
	if err := ticker.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ticker.Close()

	fv.send(websocket.BinaryMessage, []byte{0x00})
	fv.send(websocket.BinaryMessage, wrapMessage(ltpPacket(123, 100)))

	ev, ok := collectEvents(ticker, EventTicksReceived, time.Second)
	if !ok {
		t.Fatal("Expected the real batch after the heartbeat")
	}
	if len(ev.Ticks) != 1 {
		t.Errorf("Heartbeat must not produce ticks, got %d", len(ev.Ticks))
	}
}

func TestTicker_OrderUpdateRouted(t *testing.T) {
	fv, srv := newFakeVenueServer(t)
	defer srv.Close()

	ticker := NewTicker(wsURL(srv), "key", "secret", zap.NewNop())
	if err := ticker.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ticker.Close()

	fv.send(websocket.TextMessage, []byte(`{"type":"order","data":{"order_id":"X1","status":"COMPLETE"}}`))

	ev, ok := collectEvents(ticker, EventOrderUpdated, time.Second)
	if !ok {
		t.Fatal("Expected order update event")
	}
	var data map[string]string
	if err := json.Unmarshal(ev.Order, &data); err != nil || data["order_id"] != "X1" {
		t.Errorf("Order payload mangled: %s", ev.Order)
	}
}

func TestTicker_CloseEmitsTerminalEvent(t *testing.T) {
	_, srv := newFakeVenueServer(t)
	defer srv.Close()

	ticker := NewTicker(wsURL(srv), "key", "secret", zap.NewNop())
	if err := ticker.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := ticker.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, ok := collectEvents(ticker, EventClosed, time.Second); !ok {
		t.Fatal("Expected terminal closed event")
	}

	// Channel must close after the terminal event
	select {
	case _, open := <-ticker.Events():
		if open {
			t.Error("Expected event channel to be closed")
		}
	case <-time.After(time.Second):
		t.Error("Event channel never closed")
	}
}

func TestTicker_DialFailure(t *testing.T) {
	ticker := NewTicker("ws://127.0.0.1:1", "key", "secret", zap.NewNop())
	err := ticker.Connect(context.Background())
	if err == nil {
		t.Fatal("Expected dial failure")
	}
	if !IsTransient(err) {
		t.Errorf("Expected network-classified error, got %v", err)
	}
}
