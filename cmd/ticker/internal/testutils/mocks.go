package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/mdalvi/mc-broker-api/pkg/kite"
)

type ModeCall struct {
	Mode   string
	Tokens []uint32
}

// MockStream is an in-memory stand-in for the venue streaming client.
// Tests preload EventCh; Close emits the terminal Closed event the way the
// real transport does.
type MockStream struct {
	EventCh chan kite.SessionEvent

	ConnectErr   error
	SubscribeErr error
	SetModeErr   error

	Mu             sync.Mutex
	ConnectCount   int
	CloseCount     int
	SubscribeCalls [][]uint32
	SetModeCalls   []ModeCall

	closeOnce sync.Once
}

func NewMockStream(buffer int) *MockStream {
	return &MockStream{EventCh: make(chan kite.SessionEvent, buffer)}
}

func (m *MockStream) Connect(_ context.Context) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.ConnectCount++
	return m.ConnectErr
}

func (m *MockStream) Subscribe(tokens []uint32) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.SubscribeErr != nil {
		return m.SubscribeErr
	}
	m.SubscribeCalls = append(m.SubscribeCalls, append([]uint32(nil), tokens...))
	return nil
}

func (m *MockStream) SetMode(mode string, tokens []uint32) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.SetModeErr != nil {
		return m.SetModeErr
	}
	m.SetModeCalls = append(m.SetModeCalls, ModeCall{Mode: mode, Tokens: append([]uint32(nil), tokens...)})
	return nil
}

func (m *MockStream) Close() error {
	m.Mu.Lock()
	m.CloseCount++
	m.Mu.Unlock()

	m.closeOnce.Do(func() {
		m.EventCh <- kite.SessionEvent{Kind: kite.EventClosed, Code: 1000, Reason: "client shutdown"}
		close(m.EventCh)
	})
	return nil
}

func (m *MockStream) Events() <-chan kite.SessionEvent { return m.EventCh }

// Finish closes the event channel without emitting a Closed event, for
// tests that end the stream abruptly.
func (m *MockStream) Finish() {
	m.closeOnce.Do(func() { close(m.EventCh) })
}

// MockControl is an in-memory control store.
type MockControl struct {
	Mu           sync.Mutex
	Flags        map[string]bool
	Sets         map[string][]uint32
	LivenessTTLs []time.Duration

	GetFlagErr error
	SetFlagErr error
}

func NewMockControl() *MockControl {
	return &MockControl{
		Flags: make(map[string]bool),
		Sets:  make(map[string][]uint32),
	}
}

func (m *MockControl) GetFlag(_ context.Context, name string) (bool, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.GetFlagErr != nil {
		return false, m.GetFlagErr
	}
	return m.Flags[name], nil
}

func (m *MockControl) SetFlag(_ context.Context, name string, value bool) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.SetFlagErr != nil {
		return m.SetFlagErr
	}
	m.Flags[name] = value
	return nil
}

func (m *MockControl) SetLiveness(_ context.Context, ttl time.Duration) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.LivenessTTLs = append(m.LivenessTTLs, ttl)
	return nil
}

func (m *MockControl) ReadSet(_ context.Context, name string) ([]uint32, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return append([]uint32(nil), m.Sets[name]...), nil
}

type SubmitCall struct {
	Task    string
	Payload []byte
}

// MockPublisher records submitted tasks.
type MockPublisher struct {
	Mu        sync.Mutex
	Submitted []SubmitCall
	Err       error
}

func (m *MockPublisher) Submit(_ context.Context, task string, payload []byte) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Submitted = append(m.Submitted, SubmitCall{Task: task, Payload: append([]byte(nil), payload...)})
	return nil
}

func (m *MockPublisher) Close() error { return nil }
